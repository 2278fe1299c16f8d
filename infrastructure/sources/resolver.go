package sources

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-mqm/internal/ports"
)

const tracerName = "mqm-sources"

// Defaults for remote sources.
const (
	DefaultMaxRetries       = 2
	DefaultRetryBaseDelay   = 200 * time.Millisecond
	DefaultRetryMaxDelay    = 5 * time.Second
	DefaultBreakerFailures  = 5
	DefaultBreakerCooldown  = 30 * time.Second
	defaultRateLimiterBurst = 1
)

// ResolverConfig configures how Resolve builds remote sources.
type ResolverConfig struct {
	HTTPClient        *http.Client
	HTTPRatePerSecond float64
	Timeout           time.Duration
	MaxRetries        int
	Metrics           ports.MetricsCollector
	// GCS opens gs:// objects. When nil a Cloud Storage client is created on
	// first use with default credentials.
	GCS ObjectOpener
}

// Resolver turns source locations into ports.Source values. Paths become
// FileSources, http(s) URLs HTTPSources and gs:// URLs GCSSources. Remote
// sources share one rate limiter and get their own circuit breaker.
type Resolver struct {
	cfg       ResolverConfig
	rateLimit Middleware

	mu       sync.Mutex
	gcs      ObjectOpener
	breakers map[string]*CircuitBreaker
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	limit := rate.Inf
	if cfg.HTTPRatePerSecond > 0 {
		limit = rate.Limit(cfg.HTTPRatePerSecond)
	}
	return &Resolver{
		cfg:       cfg,
		rateLimit: RateLimit(limit, defaultRateLimiterBurst),
		gcs:       cfg.GCS,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Resolve returns a source for each location, in order.
func (r *Resolver) Resolve(ctx context.Context, locations ...string) ([]ports.Source, error) {
	out := make([]ports.Source, 0, len(locations))
	for _, loc := range locations {
		src, err := r.resolve(ctx, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, loc string) (ports.Source, error) {
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		return r.remote(NewHTTPSource(loc, r.cfg.HTTPClient)), nil
	case strings.HasPrefix(loc, GCSScheme):
		bucket, object, err := ParseGCSURL(loc)
		if err != nil {
			return nil, err
		}
		opener, err := r.gcsOpener(ctx)
		if err != nil {
			return nil, ports.NewSourceFetchError(loc, err)
		}
		return r.remote(NewGCSSource(opener, bucket, object)), nil
	default:
		return Chain(NewFileSource(loc), Tracing(tracerName), Metrics(r.cfg.Metrics)), nil
	}
}

// remote wraps src outermost-first: tracing, metrics, retry, breaker, rate
// limit, timeout.
func (r *Resolver) remote(src ports.Source) ports.Source {
	mws := []Middleware{Tracing(tracerName), Metrics(r.cfg.Metrics)}
	if r.cfg.MaxRetries > 0 {
		mws = append(mws, Retry(r.cfg.MaxRetries, DefaultRetryBaseDelay, DefaultRetryMaxDelay))
	}
	mws = append(mws, Breaker(r.breaker(src.Name())), r.rateLimit)
	if r.cfg.Timeout > 0 {
		mws = append(mws, Timeout(r.cfg.Timeout))
	}
	return Chain(src, mws...)
}

func (r *Resolver) breaker(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(DefaultBreakerFailures, DefaultBreakerCooldown)
		r.breakers[name] = cb
	}
	return cb
}

func (r *Resolver) gcsOpener(ctx context.Context) (ObjectOpener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gcs != nil {
		return r.gcs, nil
	}
	opener, err := NewStorageOpener(ctx)
	if err != nil {
		return nil, err
	}
	r.gcs = opener
	return opener, nil
}

// Close releases a Cloud Storage client the resolver created.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if so, ok := r.gcs.(*StorageOpener); ok && r.cfg.GCS == nil {
		return so.Close()
	}
	return nil
}

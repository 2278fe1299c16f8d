package sources

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-mqm/internal/ports"
)

// Middleware wraps a source with additional behavior.
type Middleware func(ports.Source) ports.Source

// Chain applies middleware so that the first one listed is the outermost.
func Chain(src ports.Source, mws ...Middleware) ports.Source {
	for i := len(mws) - 1; i >= 0; i-- {
		src = mws[i](src)
	}
	return src
}

// fetchFunc adapts a closure to ports.Source under the wrapped source's name.
type fetchFunc struct {
	name  string
	fetch func(ctx context.Context) (string, error)
}

func (f fetchFunc) Name() string                              { return f.name }
func (f fetchFunc) Fetch(ctx context.Context) (string, error) { return f.fetch(ctx) }

// RateLimit paces fetches with a token bucket shared by every source the
// returned middleware wraps.
func RateLimit(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next ports.Source) ports.Source {
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit: %w", err)
			}
			return next.Fetch(ctx)
		}}
	}
}

// Timeout bounds each fetch. An expired deadline is reported as
// ports.ErrTimeout.
func Timeout(d time.Duration) Middleware {
	return func(next ports.Source) ports.Source {
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			text, err := next.Fetch(tctx)
			if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) &&
				!errors.Is(err, ports.ErrTimeout) {
				err = ports.NewSourceFetchError(next.Name(), fmt.Errorf("%w after %s: %w", ports.ErrTimeout, d, err))
			}
			return text, err
		}}
	}
}

// Retry re-fetches after transient failures (rate limiting, unavailability,
// timeouts) with exponential backoff and jitter.
func Retry(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next ports.Source) ports.Source {
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				text, err := next.Fetch(ctx)
				if err == nil {
					return text, nil
				}
				lastErr = err

				if !retryable(err) || ctx.Err() != nil || attempt == maxRetries {
					break
				}

				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoff(attempt, baseDelay, maxDelay)):
				}
			}
			return "", lastErr
		}}
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrSourceUnavailable) ||
		errors.Is(err, ports.ErrTimeout)
}

func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	attempt = min(max(attempt, 0), 30)
	delay := base << uint(attempt) // #nosec G115 - attempt is clamped to [0, 30]

	// ±25% jitter.
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5) // #nosec G404
	delay = delay + jitter - delay/4

	return min(delay, maxDelay)
}

// Tracing runs each fetch in a span named "Source.Fetch".
func Tracing(tracerName string) Middleware {
	return func(next ports.Source) ports.Source {
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			ctx, span := otel.Tracer(tracerName).Start(ctx, "Source.Fetch",
				trace.WithAttributes(attribute.String("source.name", next.Name())))
			defer span.End()

			text, err := next.Fetch(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return "", err
			}
			span.SetAttributes(attribute.Int("source.bytes", len(text)))
			span.SetStatus(codes.Ok, "")
			return text, nil
		}}
	}
}

// Metrics reports every fetch to collector: a source_fetch counter labeled
// with its outcome and its latency.
func Metrics(collector ports.MetricsCollector) Middleware {
	return func(next ports.Source) ports.Source {
		if collector == nil {
			return next
		}
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			start := time.Now()
			text, err := next.Fetch(ctx)

			labels := map[string]string{"source": next.Name(), "status": fetchStatus(ctx, err)}
			collector.RecordLatency(ports.MetricSourceFetch, time.Since(start), labels)
			collector.RecordCounter(ports.MetricSourceFetch, 1, labels)
			return text, err
		}}
	}
}

func fetchStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrTimeout), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

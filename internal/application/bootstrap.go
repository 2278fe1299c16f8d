package application

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-mqm/internal/domain"
)

// Bootstrap defaults.
const (
	DefaultBootstrapSamples   = 1000
	DefaultBootstrapBatchSize = 200
	DefaultBootstrapMinDocs   = 5

	DefaultBootstrapBatchDelay = 200 * time.Millisecond
)

// DocScore is one document's normalized score and the number of scoring
// units it covers.
type DocScore struct {
	Score        float64 `json:"score"`
	ScoringUnits float64 `json:"scoringUnits"`
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// CIResult is the confidence interval of one system. Applicable is false
// when the system has too few documents to resample.
type CIResult struct {
	System     string   `json:"system"`
	Interval   Interval `json:"interval"`
	Applicable bool     `json:"applicable"`
}

// BootstrapConfig tunes the estimator.
type BootstrapConfig struct {
	// Samples is how many resampled scores are collected per system.
	Samples int
	// BatchSize is how many samples one Step draws per system.
	BatchSize int
	// MinDocs is the fewest documents a system needs to get an interval.
	MinDocs int
	// BatchDelay is how long Run pauses between batches.
	BatchDelay time.Duration
	// Seed makes sampling deterministic when non-zero.
	Seed uint64
}

// DefaultBootstrapConfig returns the standard 1000-sample configuration.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Samples:   DefaultBootstrapSamples,
		BatchSize: DefaultBootstrapBatchSize,
		MinDocs:   DefaultBootstrapMinDocs,
	}
}

func (c BootstrapConfig) withDefaults() BootstrapConfig {
	def := DefaultBootstrapConfig()
	if c.Samples <= 0 {
		c.Samples = def.Samples
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MinDocs <= 0 {
		c.MinDocs = def.MinDocs
	}
	return c
}

// PrepareDocScores aggregates every document of every system on its own.
func PrepareDocScores(bySystem map[string]*domain.StatsIndex, unit domain.ScoringUnit) map[string][]DocScore {
	out := make(map[string][]DocScore, len(bySystem))
	for sys, idx := range bySystem {
		docs := idx.Docs()
		scores := make([]DocScore, 0, len(docs))
		for _, doc := range docs {
			agg := domain.Aggregate(idx.DocSegments(doc), unit)
			scores = append(scores, DocScore{Score: agg.Score, ScoringUnits: agg.NumScoringUnits})
		}
		out[sys] = scores
	}
	return out
}

// BootstrapTask estimates per-system confidence intervals by resampling
// documents with replacement. It advances one batch per Step, which makes it
// possible to interleave it with other work and to abandon it between
// batches. A task is not safe for concurrent use.
type BootstrapTask struct {
	ID string

	cfg     BootstrapConfig
	docs    map[string][]DocScore
	systems []string
	samples map[string][]float64
	rng     *rand.Rand
}

// NewBootstrapTask prepares a task over the given document scores.
func NewBootstrapTask(docs map[string][]DocScore, cfg BootstrapConfig) *BootstrapTask {
	cfg = cfg.withDefaults()
	seed1, seed2 := cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15
	if cfg.Seed == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}
	t := &BootstrapTask{
		ID:      uuid.NewString(),
		cfg:     cfg,
		docs:    docs,
		samples: make(map[string][]float64),
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
	}
	for sys, d := range docs {
		if len(d) >= cfg.MinDocs {
			t.systems = append(t.systems, sys)
		}
	}
	slices.Sort(t.systems)
	return t
}

// Done reports whether every eligible system has all its samples.
func (t *BootstrapTask) Done() bool {
	for _, sys := range t.systems {
		if len(t.samples[sys]) < t.cfg.Samples {
			return false
		}
	}
	return true
}

// Step draws up to one batch of samples for every eligible system and
// reports whether the task is complete.
func (t *BootstrapTask) Step() bool {
	for _, sys := range t.systems {
		docs := t.docs[sys]
		n := min(t.cfg.BatchSize, t.cfg.Samples-len(t.samples[sys]))
		for range n {
			t.samples[sys] = append(t.samples[sys], t.sample(docs))
		}
	}
	return t.Done()
}

// sample draws len(docs) documents with replacement and returns their
// scoring-unit weighted mean score.
func (t *BootstrapTask) sample(docs []DocScore) float64 {
	var weighted, units float64
	for range docs {
		d := docs[t.rng.IntN(len(docs))]
		weighted += d.Score * d.ScoringUnits
		units += d.ScoringUnits
	}
	if units == 0 {
		return 0
	}
	return weighted / units
}

// Results returns the intervals. Systems with too few documents, and any
// system whose sampling has not finished, are reported not applicable.
func (t *BootstrapTask) Results() map[string]CIResult {
	out := make(map[string]CIResult, len(t.docs))
	for sys := range t.docs {
		out[sys] = CIResult{System: sys}
	}
	for _, sys := range t.systems {
		s := slices.Clone(t.samples[sys])
		if len(s) < t.cfg.Samples {
			continue
		}
		slices.Sort(s)
		lo := len(s) / 40
		hi := len(s) - lo - 1
		out[sys] = CIResult{System: sys, Interval: Interval{Lower: s[lo], Upper: s[hi]}, Applicable: true}
	}
	return out
}

// Run steps the task to completion, pausing BatchDelay between batches.
// Cancellation is checked at every batch boundary; a cancelled run returns
// ctx.Err() and no partial results.
func (t *BootstrapTask) Run(ctx context.Context) (map[string]CIResult, error) {
	var timer *time.Timer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.Step() {
			return t.Results(), nil
		}
		if t.cfg.BatchDelay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(t.cfg.BatchDelay)
			defer timer.Stop()
		} else {
			timer.Reset(t.cfg.BatchDelay)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// CIHandle tracks a bootstrap run in the background.
type CIHandle struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	results map[string]CIResult
	err     error
}

// StartBootstrap runs task in a new goroutine. Cancelling ctx or calling
// Cancel stops it at the next batch boundary.
func StartBootstrap(ctx context.Context, task *BootstrapTask) *CIHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &CIHandle{ID: task.ID, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		res, err := task.Run(ctx)
		h.mu.Lock()
		h.results, h.err = res, err
		h.mu.Unlock()
	}()
	return h
}

// Cancel stops the run. It is safe to call more than once.
func (h *CIHandle) Cancel() { h.cancel() }

// Done is closed when the run finishes or is cancelled.
func (h *CIHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is done.
func (h *CIHandle) Wait(ctx context.Context) (map[string]CIResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results, h.err
}

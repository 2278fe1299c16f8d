package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// Engine errors.
var (
	ErrNoData   = errors.New("no ratings loaded")
	ErrNoParser = errors.New("engine has no parser configured")
)

const tracerName = "mqm-engine"

// Engine owns the loaded State and the active settings, and serializes
// recomputations so that starting a new one cancels the confidence interval
// estimation of the previous one.
type Engine struct {
	mu       sync.Mutex
	state    *State
	settings *CompiledSettings
	pending  *CIHandle

	evaluator   ports.Evaluator
	parser      ports.Parser
	metrics     ports.MetricsCollector
	logger      *slog.Logger
	loader      *SettingsLoader
	bootstrap   BootstrapConfig
	concurrency int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithParser sets the parser Load uses.
func WithParser(p ports.Parser) EngineOption {
	return func(e *Engine) { e.parser = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithBootstrapConfig tunes confidence interval estimation.
func WithBootstrapConfig(cfg BootstrapConfig) EngineOption {
	return func(e *Engine) { e.bootstrap = cfg }
}

// WithSourceConcurrency bounds how many sources Load fetches at once.
func WithSourceConcurrency(n int) EngineOption {
	return func(e *Engine) { e.concurrency = n }
}

// WithSettings sets the initial compiled settings.
func WithSettings(s *CompiledSettings) EngineOption {
	return func(e *Engine) { e.settings = s }
}

// NewEngine creates an engine with default settings and no data.
func NewEngine(evaluator ports.Evaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		evaluator: evaluator,
		bootstrap: DefaultBootstrapConfig(),
		loader:    NewSettingsLoader(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.settings == nil {
		e.settings = MustCompileDefaults()
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Load fetches and parses sources and replaces the current State. On error
// the previous State stays active.
func (e *Engine) Load(ctx context.Context, sources ...ports.Source) (*LoadResult, error) {
	if e.parser == nil {
		return nil, ErrNoParser
	}
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Engine.Load")
	defer span.End()

	res, err := NewLoader(e.parser, e.concurrency, e.logger).Load(ctx, sources...)
	failed := sourceFailures(res, err, len(sources))
	e.metrics.RecordCounter(ports.MetricSourceFetch, float64(len(sources)-failed), map[string]string{"status": "ok"})
	e.metrics.RecordCounter(ports.MetricSourceFetch, float64(failed), map[string]string{"status": "error"})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := e.SetRecords(ctx, res.Records, res.RowErrors); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.metrics.RecordLatency("load", time.Since(start), nil)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func sourceFailures(res *LoadResult, err error, total int) int {
	if res != nil {
		return len(res.SourceErrors)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoSources) {
		return total
	}
	return 0
}

// SetRecords replaces the current State with one built from records. Any
// pending estimation is cancelled.
func (e *Engine) SetRecords(ctx context.Context, records []domain.Record, rowErrs []error) error {
	state, err := NewState(records, rowErrs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cancelPendingLocked()
	e.state = state
	e.mu.Unlock()

	e.metrics.RecordCounter(ports.MetricRecordsParsed, float64(len(records)), nil)
	e.metrics.RecordCounter(ports.MetricMalformedRows, float64(len(rowErrs)), nil)
	e.metrics.RecordGauge(ports.MetricRecordsLoaded, float64(len(state.Records)), nil)
	e.metrics.RecordGauge(ports.MetricSystems, float64(len(state.Systems)), nil)
	e.metrics.RecordGauge(ports.MetricRaters, float64(len(state.Raters)), nil)
	for _, rowErr := range rowErrs {
		e.logger.DebugContext(ctx, "skipped malformed row", "error", rowErr)
	}
	e.logger.InfoContext(ctx, "ratings loaded",
		"records", len(state.Records),
		"systems", len(state.Systems),
		"raters", len(state.Raters),
		"malformed_rows", len(rowErrs),
	)
	return nil
}

// State returns the current data set, or nil before the first load.
func (e *Engine) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Settings returns the active compiled settings.
func (e *Engine) Settings() *CompiledSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings validates and activates s. Invalid settings are rejected
// and the active settings are left unchanged.
func (e *Engine) UpdateSettings(ctx context.Context, s Settings) error {
	compiled, err := e.loader.Compile(ctx, s)
	if err != nil {
		e.logger.WarnContext(ctx, "settings rejected", "error", err)
		return err
	}
	e.SetSettings(compiled)
	return nil
}

// SetSettings activates already compiled settings.
func (e *Engine) SetSettings(s *CompiledSettings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.metrics.RecordCounter("settings_updated", 1, nil)
}

// Recompute runs q against the current State, cancels any estimation still
// running for a previous call and starts a new one for the returned results.
// The estimation outlives ctx's deadline but keeps its values; call Cancel
// on the handle, Close, or Recompute again to stop it.
func (e *Engine) Recompute(ctx context.Context, q Query) (*Results, *CIHandle, error) {
	runID := uuid.NewString()
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Engine.Recompute",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelPendingLocked()
	if e.state == nil {
		span.SetStatus(codes.Error, ErrNoData.Error())
		return nil, nil, ErrNoData
	}

	res, err := Recompute(ctx, e.state, q, e.settings, e.evaluator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("recompute %s: %w", runID, err)
	}
	e.metrics.RecordLatency("recompute", time.Since(start), nil)
	e.metrics.RecordGauge(ports.MetricRecordsFiltered, float64(len(res.Filtered)), nil)
	e.metrics.RecordHistogram(ports.MetricRecordsFiltered, float64(len(res.Filtered)), nil)
	if res.FilterErrors > 0 {
		e.metrics.RecordCounter(ports.MetricFilterErrors, float64(res.FilterErrors), nil)
		e.logger.WarnContext(ctx, "filter expression failed",
			"run_id", runID, "failures", res.FilterErrors, "error", res.FilterError)
	}

	docs := PrepareDocScores(res.Stats.BySystem, res.ScoringUnit)
	task := NewBootstrapTask(docs, e.bootstrap)
	ciCtx := context.WithoutCancel(ctx)
	e.pending = StartBootstrap(ciCtx, task)
	e.metrics.RecordGauge(ports.MetricCIPending, 1, nil)
	go e.observeCI(ciCtx, e.pending)

	span.SetAttributes(
		attribute.Int("records.filtered", len(res.Filtered)),
		attribute.Int("records.shown", len(res.Shown)),
		attribute.Int("systems", len(res.Systems)),
		attribute.String("ci.task_id", task.ID),
	)
	span.SetStatus(codes.Ok, "")
	e.logger.DebugContext(ctx, "recomputed",
		"run_id", runID,
		"filtered", len(res.Filtered),
		"shown", len(res.Shown),
		"ci_task_id", task.ID,
	)
	return res, e.pending, nil
}

// observeCI traces and logs one estimation until it ends.
func (e *Engine) observeCI(ctx context.Context, h *CIHandle) {
	start := time.Now()
	_, span := otel.Tracer(tracerName).Start(ctx, "Bootstrap.Run",
		trace.WithAttributes(attribute.String("ci.task_id", h.ID)))
	defer span.End()

	_, err := h.Wait(context.Background())
	e.metrics.RecordGauge(ports.MetricCIPending, 0, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.logger.DebugContext(ctx, "confidence intervals abandoned", "ci_task_id", h.ID, "error", err)
		return
	}
	e.metrics.RecordLatency("bootstrap", time.Since(start), nil)
	span.SetStatus(codes.Ok, "")
}

// Histogram compares two systems over the records matching q.
func (e *Engine) Histogram(ctx context.Context, q Query, sys1, sys2 string) (*Histogram, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Engine.Histogram",
		trace.WithAttributes(attribute.String("system1", sys1), attribute.String("system2", sys2)))
	defer span.End()

	res, err := e.Evaluate(ctx, q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return BuildHistogram(res.Stats.BySystem, sys1, sys2, res.ScoringUnit)
}

// ExportScores aggregates the records matching q at granularity g.
func (e *Engine) ExportScores(ctx context.Context, q Query, g Granularity) ([]ScoreExportRow, error) {
	res, err := e.Evaluate(ctx, q)
	if err != nil {
		return nil, err
	}
	return ExportScores(res.Stats, g, res.ScoringUnit), nil
}

// Evaluate runs q against the current State without touching the pending
// estimation. Exports and histograms use it.
func (e *Engine) Evaluate(ctx context.Context, q Query) (*Results, error) {
	e.mu.Lock()
	state, settings := e.state, e.settings
	e.mu.Unlock()
	if state == nil {
		return nil, ErrNoData
	}
	return Recompute(ctx, state, q, settings, e.evaluator)
}

// Close cancels any pending estimation.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelPendingLocked()
}

func (e *Engine) cancelPendingLocked() {
	if e.pending != nil {
		e.pending.Cancel()
		e.pending = nil
	}
}

// nopMetrics discards everything.
type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (nopMetrics) RecordCounter(string, float64, map[string]string) {}
func (nopMetrics) RecordGauge(string, float64, map[string]string) {}
func (nopMetrics) RecordHistogram(string, float64, map[string]string) {}

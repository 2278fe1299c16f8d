// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-mqm/internal/domain"
)

// Evaluator evaluates free-form boolean filter expressions against a set of
// named bindings. Implementations must be sandboxed: an expression can read
// its bindings and call the helper predicates the evaluator registers, but it
// cannot reach the filesystem, the network, or any state outside a single
// call.
type Evaluator interface {
	// Evaluate compiles (or reuses a compiled form of) expr and runs it with
	// bindings. It returns an error when the expression does not compile,
	// fails at runtime, or yields a non-boolean value; callers treat an
	// error as "no match".
	//
	// Bindings available to expressions include the record fields (system,
	// doc, docSegId, globalSegId, source, target, rater, category,
	// severity, metadata) and the record's segment aggregate (segment).
	Evaluate(expr string, bindings map[string]any) (bool, error)
}

// Source supplies raw rating rows in the tab-separated wire format.
// Implementations could read from files, HTTP endpoints, or memory.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Fetch returns the full text of the source.
	// It should honor ctx cancellation for slow reads.
	Fetch(ctx context.Context) (string, error)
}

// Parser turns wire-format text into records.
type Parser interface {
	// Parse returns the well-formed records in input order and one error
	// per skipped row. err is non-nil only when parsing could not proceed
	// at all, for example because ctx was cancelled.
	Parse(ctx context.Context, text string) (records []domain.Record, rowErrs []error, err error)
}

// RatingSink accepts ratings submitted by the annotation application.
// Submitted ratings are not visible to an already loaded engine; they become
// part of the data the next time it is loaded.
type RatingSink interface {
	// Submit persists one rating.
	Submit(ctx context.Context, record domain.Record) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like parsed rows and filter errors.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the number of loaded records.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Metric names reported through MetricsCollector.
const (
	MetricRecordsParsed = "records_parsed"
	MetricMalformedRows = "malformed_rows"
	MetricFilterErrors  = "filter_errors"
	MetricSourceFetch   = "source_fetch"

	// Gauges, reported with the "metric" label.
	MetricRecordsLoaded   = "records_loaded"
	MetricRecordsFiltered = "records_filtered"
	MetricSystems         = "systems"
	MetricRaters          = "raters"
	MetricCIPending       = "ci_pending"
)

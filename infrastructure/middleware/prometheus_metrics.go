// Package middleware provides cross-cutting concerns for the rating engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-mqm/internal/ports"
)

// namespace prefixes every metric this package registers.
const namespace = "mqm"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks ingestion volume, filter failures, operation
// latency, and the size of the loaded data set.
type PrometheusMetrics struct {
	recordsParsed     *prometheus.CounterVec
	malformedRows     *prometheus.CounterVec
	filterErrors      *prometheus.CounterVec
	sourceFetches     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	observations      *prometheus.HistogramVec
	operationCounter  *prometheus.CounterVec
	state             *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the metrics and registers them with reg.
// A nil reg uses the default Prometheus registry. Registering twice with the
// same registry returns a *ports.MetricsError naming the conflicting metric.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	// Collectors are built unregistered and registered below so a conflict
	// surfaces as an error.
	factory := promauto.With(nil)

	pm := &PrometheusMetrics{
		recordsParsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_parsed_total",
				Help:      "Total number of well-formed rating rows parsed.",
			},
			[]string{"source"},
		),
		malformedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_rows_total",
				Help:      "Total number of rows skipped for having too few fields.",
			},
			[]string{"source"},
		),
		filterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_errors_total",
				Help:      "Total number of records whose filter expression failed.",
			},
			[]string{},
		),
		sourceFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Source fetch attempts by outcome.",
			},
			[]string{"status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		observations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "observed_values",
				Help:      "Distribution of sizes observed by the engine.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"metric"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of other counted engine events.",
			},
			[]string{"operation"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current size of the loaded and filtered data set.",
			},
			[]string{"metric"},
		),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"records_parsed_total", pm.recordsParsed},
		{"malformed_rows_total", pm.malformedRows},
		{"filter_errors_total", pm.filterErrors},
		{"source_fetch_total", pm.sourceFetches},
		{"operation_duration_seconds", pm.operationDuration},
		{"observed_values", pm.observations},
		{"operations_total", pm.operationCounter},
		{"state", pm.state},
	}
	for _, c := range collectors {
		if err := reg.Register(c.c); err != nil {
			return nil, ports.NewMetricsError(namespace+"_"+c.name, "register", err)
		}
	}
	return pm, nil
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case ports.MetricRecordsParsed:
		pm.recordsParsed.WithLabelValues(labelOr(labels, "source", "all")).Add(value)
	case ports.MetricMalformedRows:
		pm.malformedRows.WithLabelValues(labelOr(labels, "source", "all")).Add(value)
	case ports.MetricFilterErrors:
		pm.filterErrors.WithLabelValues().Add(value)
	case ports.MetricSourceFetch:
		pm.sourceFetches.WithLabelValues(labelOr(labels, "status", "unknown")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.state.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	pm.observations.WithLabelValues(metric).Observe(value)
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

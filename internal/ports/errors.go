package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur while talking to sources and
// sinks.
var (
	// ErrRateLimited indicates that a source refused the request for rate reasons.
	ErrRateLimited = errors.New("rate limited")

	// ErrSourceUnavailable indicates that a source could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that a source returned an unusable response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrConfigNotFound indicates that a named configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration not found")
)

// SourceFetchError represents the failure of one ingestion source. Other
// sources in the same batch are still processed.
type SourceFetchError struct {
	// Source is the name of the source that failed.
	Source string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for SourceFetchError.
func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source error: source=%s, err=%v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceFetchError) Unwrap() error { return e.Err }

// IsRetryable returns true if the failure is transient.
func (e *SourceFetchError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrSourceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewSourceFetchError creates a new SourceFetchError.
func NewSourceFetchError(source string, err error) *SourceFetchError {
	return &SourceFetchError{Source: source, Err: err}
}

// MetricsError reports a metric that could not be set up, such as a
// collector whose name is already registered.
type MetricsError struct {
	Metric    string
	Operation string
	Err       error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError wraps err for the metric and operation that produced it.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{Metric: metric, Operation: operation, Err: err}
}

// ConfigError ties a configuration failure to the dotted key (or file path)
// that caused it.
type ConfigError struct {
	ConfigKey string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err for key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}

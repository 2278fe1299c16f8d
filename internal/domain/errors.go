package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while ingesting and scoring ratings.
var (
	// ErrMalformedRow indicates that an input row had too few fields to be a rating.
	ErrMalformedRow = errors.New("malformed row")

	// ErrFilterExpression indicates that a filter expression failed to compile or evaluate.
	ErrFilterExpression = errors.New("filter expression error")

	// ErrInvalidSettings indicates that a scoring settings update was rejected.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrNotSorted indicates that records sharing a segment were not contiguous.
	ErrNotSorted = errors.New("records not sorted")

	// ErrUnknownSystem indicates that a requested system has no ratings.
	ErrUnknownSystem = errors.New("unknown system")

	// ErrEmptyValue indicates that a required value is empty.
	ErrEmptyValue = errors.New("empty value")
)

// MalformedRowError reports an input row that could not be turned into a
// Record. The row is skipped and the rest of the batch is still processed.
type MalformedRowError struct {
	// Line is the 1-based line number of the row within its batch.
	Line int

	// Fields is the number of tab-separated fields found.
	Fields int

	// Row is the raw row text.
	Row string
}

// Error implements the error interface for MalformedRowError.
func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: want at least %d fields, got %d", e.Line, MinRowFields, e.Fields)
}

// Unwrap returns ErrMalformedRow so callers can match with errors.Is.
func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// NewMalformedRowError creates a new MalformedRowError.
func NewMalformedRowError(line, fields int, row string) *MalformedRowError {
	return &MalformedRowError{Line: line, Fields: fields, Row: row}
}

// FilterExpressionError reports a filter expression that could not be
// compiled or that failed while being evaluated against a record. A query
// carrying a broken expression matches nothing.
type FilterExpressionError struct {
	// Expr is the offending expression text.
	Expr string

	// Err is the underlying compiler or runtime error.
	Err error
}

// Error implements the error interface for FilterExpressionError.
func (e *FilterExpressionError) Error() string {
	return fmt.Sprintf("filter expression %q: %v", e.Expr, e.Err)
}

// Unwrap returns the underlying error.
func (e *FilterExpressionError) Unwrap() error { return e.Err }

// Is reports ErrFilterExpression as a match in addition to the wrapped error.
func (e *FilterExpressionError) Is(target error) bool { return target == ErrFilterExpression }

// NewFilterExpressionError creates a new FilterExpressionError.
func NewFilterExpressionError(expr string, err error) *FilterExpressionError {
	return &FilterExpressionError{Expr: expr, Err: err}
}

// SettingsValidationError collects every problem found in a rejected
// settings update.
type SettingsValidationError struct {
	Problems []string
}

// Error implements the error interface for SettingsValidationError.
func (e *SettingsValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid settings: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid settings: %s", strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidSettings.
func (e *SettingsValidationError) Unwrap() error { return ErrInvalidSettings }

// AddProblem records one more problem.
func (e *SettingsValidationError) AddProblem(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// HasProblems returns true if any problem was recorded.
func (e *SettingsValidationError) HasProblems() bool { return len(e.Problems) > 0 }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

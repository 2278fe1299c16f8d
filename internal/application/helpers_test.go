package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/domain"
)

// rating builds a record the way a parsed row would look. Source and target
// default to short texts so character scoring has something to count.
func rating(system, doc, docSegID, globalSegID, rater, severity, category string) domain.Record {
	return domain.NewRecord([]string{
		system, doc, docSegID, globalSegID, rater,
		"Hello world", "Hallo <v>Welt</v>", category, severity,
	})
}

// mustState builds a State and fails the test on error.
func mustState(t *testing.T, records ...domain.Record) *State {
	t.Helper()
	s, err := NewState(records, nil)
	require.NoError(t, err)
	return s
}

// funcEvaluator adapts a function to ports.Evaluator.
type funcEvaluator func(expr string, bindings map[string]any) (bool, error)

func (f funcEvaluator) Evaluate(expr string, bindings map[string]any) (bool, error) {
	return f(expr, bindings)
}

// fieldEquals understands expressions of the form `name == "value"` only,
// which is enough to drive the filter without a real expression language.
var fieldEquals = funcEvaluator(func(expr string, b map[string]any) (bool, error) {
	name, value, ok := strings.Cut(expr, "==")
	if !ok {
		return false, fmt.Errorf("unsupported expression %q", expr)
	}
	name = strings.TrimSpace(name)
	v, ok := b[name]
	if !ok {
		return false, fmt.Errorf("unknown name %q", name)
	}
	return fmt.Sprint(v) == strings.Trim(strings.TrimSpace(value), `"`), nil
})

// lineParser parses tab-separated lines without header handling.
type lineParser struct{}

func (lineParser) Parse(ctx context.Context, text string) ([]domain.Record, []error, error) {
	var (
		records []domain.Record
		rowErrs []error
	)
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < domain.MinRowFields {
			rowErrs = append(rowErrs, domain.NewMalformedRowError(i+1, len(fields), line))
			continue
		}
		records = append(records, domain.NewRecord(fields))
	}
	return records, rowErrs, ctx.Err()
}

// memSource is an in-memory ports.Source.
type memSource struct {
	name string
	text string
	err  error
}

func (s memSource) Name() string { return s.name }

func (s memSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.text, s.err
}

func tsvLine(fields ...string) string { return strings.Join(fields, "\t") + "\n" }

func posInf() float64 { return math.Inf(1) }

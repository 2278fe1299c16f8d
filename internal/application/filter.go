package application

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// ColumnFilters holds one case-insensitive regular expression per filterable
// record field. An empty pattern matches everything.
type ColumnFilters struct {
	System      string `json:"system,omitempty" yaml:"system,omitempty"`
	Doc         string `json:"doc,omitempty" yaml:"doc,omitempty"`
	DocSegID    string `json:"docSegId,omitempty" yaml:"doc_seg_id,omitempty"`
	GlobalSegID string `json:"globalSegId,omitempty" yaml:"global_seg_id,omitempty"`
	Rater       string `json:"rater,omitempty" yaml:"rater,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Severity    string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// ViewingConstraint restricts which filtered rows are shown to an explicit
// set of segments. It is used to drill down into a histogram bin and does
// not change the statistics, which still cover the whole filter result.
type ViewingConstraint struct {
	Description string                         `json:"description"`
	Color       string                         `json:"color,omitempty"`
	Keys        map[domain.SegmentKey]struct{} `json:"-"`
}

// NewViewingConstraint builds a constraint allowing exactly keys.
func NewViewingConstraint(description, color string, keys []domain.SegmentKey) *ViewingConstraint {
	set := make(map[domain.SegmentKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &ViewingConstraint{Description: description, Color: color, Keys: set}
}

// Allows reports whether records of segment key may be shown. A nil
// constraint allows everything.
func (c *ViewingConstraint) Allows(key domain.SegmentKey) bool {
	if c == nil {
		return true
	}
	_, ok := c.Keys[key]
	return ok
}

// Query is everything that selects which records are scored and shown.
type Query struct {
	Columns ColumnFilters `json:"columns"`
	// Expr is a boolean expression evaluated per record. Empty means true.
	Expr string `json:"expr,omitempty"`
	// Constraint optionally limits the displayed rows.
	Constraint *ViewingConstraint `json:"constraint,omitempty"`
	// Limit caps the number of displayed rows; zero shows all.
	Limit int `json:"limit,omitempty"`
}

type columnMatcher struct {
	re    *regexp.Regexp
	field func(domain.Record) string
}

// Filter is a compiled Query minus its viewing constraint.
type Filter struct {
	columns   []columnMatcher
	expr      string
	evaluator ports.Evaluator
}

// CompileFilter compiles the column patterns of q. A pattern that does not
// compile is reported as a *domain.FilterExpressionError.
func CompileFilter(q Query, evaluator ports.Evaluator) (*Filter, error) {
	f := &Filter{expr: strings.TrimSpace(q.Expr), evaluator: evaluator}
	specs := []struct {
		pattern string
		field   func(domain.Record) string
	}{
		{q.Columns.System, func(r domain.Record) string { return r.System }},
		{q.Columns.Doc, func(r domain.Record) string { return r.Doc }},
		{q.Columns.DocSegID, func(r domain.Record) string { return r.DocSegID }},
		{q.Columns.GlobalSegID, func(r domain.Record) string { return r.GlobalSegID }},
		{q.Columns.Rater, func(r domain.Record) string { return r.Rater }},
		{q.Columns.Category, func(r domain.Record) string { return r.Category }},
		{q.Columns.Severity, func(r domain.Record) string { return r.Severity }},
	}
	for _, s := range specs {
		if s.pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + s.pattern)
		if err != nil {
			return nil, domain.NewFilterExpressionError(s.pattern, err)
		}
		f.columns = append(f.columns, columnMatcher{re: re, field: s.field})
	}
	if f.expr != "" && evaluator == nil {
		return nil, domain.NewFilterExpressionError(f.expr, fmt.Errorf("no expression evaluator configured"))
	}
	return f, nil
}

// Match reports whether r passes every column pattern and the expression.
// Expression failures are returned alongside a false result.
func (f *Filter) Match(r domain.Record, seg *domain.SegmentAggregate) (bool, error) {
	for _, c := range f.columns {
		if !c.re.MatchString(c.field(r)) {
			return false, nil
		}
	}
	if f.expr == "" {
		return true, nil
	}
	ok, err := f.evaluator.Evaluate(f.expr, Bindings(r, seg))
	if err != nil {
		return false, domain.NewFilterExpressionError(f.expr, err)
	}
	return ok, nil
}

// Bindings returns the names visible to a filter expression for r.
// Segment ids are bound as integers when they are canonical integers so
// that numeric comparisons work; otherwise they are strings.
func Bindings(r domain.Record, seg *domain.SegmentAggregate) map[string]any {
	if seg == nil {
		seg = domain.NewSegmentAggregate()
	}
	return map[string]any{
		"system":      r.System,
		"doc":         r.Doc,
		"docSegId":    idValue(r.DocSegID),
		"globalSegId": idValue(r.GlobalSegID),
		"source":      r.MarkedSource(),
		"target":      r.MarkedTarget(),
		"rater":       r.Rater,
		"category":    r.Category,
		"severity":    r.Severity,
		"metadata":    metadataValue(r.Metadata),
		"segment":     seg.Sides(),
	}
}

func idValue(id string) any {
	if n, ok := domain.ParseID(id); ok {
		return n
	}
	return id
}

func metadataValue(m domain.Metadata) map[string]any {
	timing := make(map[string]any, len(m.Timing))
	for name, ev := range m.Timing {
		timing[name] = map[string]any{"count": ev.Count, "timeMS": ev.TimeMS}
	}
	return map[string]any{
		"timestamp": m.Timestamp,
		"note":      m.Note,
		"timing":    timing,
	}
}

package domain

import (
	"fmt"
	"slices"
)

// SegmentKey identifies one source sentence instance regardless of which
// system translated it.
type SegmentKey struct {
	Doc         string `json:"doc"`
	DocSegID    string `json:"docSegId"`
	GlobalSegID string `json:"globalSegId"`
}

// String renders the key as doc:docSegId/globalSegId.
func (k SegmentKey) String() string {
	return fmt.Sprintf("%s:%s/%s", k.Doc, k.DocSegID, k.GlobalSegID)
}

// Compare orders keys by doc, then docSegId, then globalSegId.
func (k SegmentKey) Compare(o SegmentKey) int {
	if c := CompareIDs(k.Doc, o.Doc); c != 0 {
		return c
	}
	if c := CompareIDs(k.DocSegID, o.DocSegID); c != 0 {
		return c
	}
	return CompareIDs(k.GlobalSegID, o.GlobalSegID)
}

// SegmentAggregate records, for one segment, every category, severity and
// severity/category pair that was reported, grouped by system and by rater.
// It is built once per data load and is read-only afterwards.
type SegmentAggregate struct {
	CatsBySystem    map[string][]string `json:"catsBySystem"`
	CatsByRater     map[string][]string `json:"catsByRater"`
	SevsBySystem    map[string][]string `json:"sevsBySystem"`
	SevsByRater     map[string][]string `json:"sevsByRater"`
	SevCatsBySystem map[string][]string `json:"sevcatsBySystem"`
	SevCatsByRater  map[string][]string `json:"sevcatsByRater"`
}

// NewSegmentAggregate returns an empty aggregate.
func NewSegmentAggregate() *SegmentAggregate {
	return &SegmentAggregate{
		CatsBySystem:    make(map[string][]string),
		CatsByRater:     make(map[string][]string),
		SevsBySystem:    make(map[string][]string),
		SevsByRater:     make(map[string][]string),
		SevCatsBySystem: make(map[string][]string),
		SevCatsByRater:  make(map[string][]string),
	}
}

// SevCat joins a severity and category the way aggregates and clauses
// expect: "severity/category", or the severity alone for an empty category.
func SevCat(severity, category string) string {
	if category == "" {
		return severity
	}
	return severity + "/" + category
}

// Add appends one record's category and severity to every side.
func (a *SegmentAggregate) Add(r Record) {
	sevcat := SevCat(r.Severity, r.Category)
	a.CatsBySystem[r.System] = append(a.CatsBySystem[r.System], r.Category)
	a.CatsByRater[r.Rater] = append(a.CatsByRater[r.Rater], r.Category)
	a.SevsBySystem[r.System] = append(a.SevsBySystem[r.System], r.Severity)
	a.SevsByRater[r.Rater] = append(a.SevsByRater[r.Rater], r.Severity)
	a.SevCatsBySystem[r.System] = append(a.SevCatsBySystem[r.System], sevcat)
	a.SevCatsByRater[r.Rater] = append(a.SevCatsByRater[r.Rater], sevcat)
}

// Sides exposes the aggregate under the names used in filter expressions.
func (a *SegmentAggregate) Sides() map[string]any {
	return map[string]any{
		"catsBySystem":    a.CatsBySystem,
		"catsByRater":     a.CatsByRater,
		"sevsBySystem":    a.SevsBySystem,
		"sevsByRater":     a.SevsByRater,
		"sevcatsBySystem": a.SevCatsBySystem,
		"sevcatsByRater":  a.SevCatsByRater,
	}
}

// HasError reports whether side[key] contains value.
func HasError(side map[string][]string, key, value string) bool {
	return slices.Contains(side[key], value)
}

// LacksError reports whether side has an entry for key that does not
// contain value. A key with no entry at all neither has nor lacks errors.
func LacksError(side map[string][]string, key, value string) bool {
	vals, ok := side[key]
	return ok && !slices.Contains(vals, value)
}

// BuildSegmentAggregates makes a single pass over sorted records and returns
// one shared aggregate per segment. Records of a segment must be contiguous;
// a segment that reappears after another one began yields ErrNotSorted.
func BuildSegmentAggregates(records []Record) (map[SegmentKey]*SegmentAggregate, error) {
	aggs := make(map[SegmentKey]*SegmentAggregate)
	var (
		current *SegmentAggregate
		lastKey SegmentKey
	)
	for i, r := range records {
		key := r.Key()
		if current == nil || key != lastKey {
			if _, seen := aggs[key]; seen {
				return nil, fmt.Errorf("segment %s at record %d: %w", key, i, ErrNotSorted)
			}
			current = NewSegmentAggregate()
			aggs[key] = current
			lastKey = key
		}
		current.Add(r)
	}
	return aggs, nil
}

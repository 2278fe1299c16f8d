package application

import (
	"fmt"
	"slices"

	"github.com/ahrav/go-mqm/internal/domain"
)

// State is the loaded data set: records in canonical order plus one shared
// aggregate per segment. A State is never mutated after NewState returns,
// so one value may back any number of concurrent recomputations.
type State struct {
	Records  []domain.Record
	Segments map[domain.SegmentKey]*domain.SegmentAggregate
	// Systems and Raters list the distinct names in canonical order.
	Systems []string
	Raters  []string
	// ParseErrors holds the rows that were skipped while loading.
	ParseErrors []error
}

// NewState sorts a copy of records and builds their segment aggregates.
func NewState(records []domain.Record, parseErrors []error) (*State, error) {
	sorted := slices.Clone(records)
	domain.SortRecords(sorted)

	aggs, err := domain.BuildSegmentAggregates(sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate segments: %w", err)
	}

	systems := make(map[string]struct{})
	raters := make(map[string]struct{})
	for _, r := range sorted {
		systems[r.System] = struct{}{}
		raters[r.Rater] = struct{}{}
	}
	return &State{
		Records:     sorted,
		Segments:    aggs,
		Systems:     sortedKeys(systems),
		Raters:      sortedKeys(raters),
		ParseErrors: parseErrors,
	}, nil
}

// Segment returns the aggregate of r's segment.
func (s *State) Segment(r domain.Record) *domain.SegmentAggregate {
	return s.Segments[r.Key()]
}

// ClauseBuilder returns a clause builder over this state's names.
func (s *State) ClauseBuilder() *ClauseBuilder {
	return NewClauseBuilder(s.Systems, s.Raters)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, domain.CompareIDs)
	return keys
}

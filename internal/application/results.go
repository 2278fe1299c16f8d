package application

import (
	"cmp"
	"context"
	"slices"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// ScoreRow is one line of the scores table.
type ScoreRow struct {
	Entity domain.Entity         `json:"entity"`
	Stats  domain.AggregateStats `json:"stats"`
	// NumDocs is the number of documents the entity was rated on.
	NumDocs int `json:"numDocs"`
}

// Results is everything one recomputation produces.
type Results struct {
	// Filtered holds every record passing the query, in canonical order.
	Filtered []domain.Record `json:"-"`
	// Shown is Filtered restricted by the viewing constraint and limit.
	Shown      []domain.Record    `json:"shown"`
	Constraint *ViewingConstraint `json:"constraint,omitempty"`

	Stats *Stats `json:"-"`

	Total   ScoreRow   `json:"total"`
	Systems []ScoreRow `json:"systems"`
	Raters  []ScoreRow `json:"raters"`

	Matrix *SystemRaterMatrix            `json:"matrix"`
	SevCat *SevCatTable                  `json:"sevcat"`
	Events map[string]domain.TimingEvent `json:"events,omitempty"`

	// WeightedFields and SliceFields name the rules with a non-zero Total
	// subscore, ordered by that subscore, largest first.
	WeightedFields []string `json:"weightedFields"`
	SliceFields    []string `json:"sliceFields"`

	// FilterError is the first expression failure seen; records whose
	// evaluation failed were excluded. FilterErrors counts all failures.
	FilterError  error `json:"-"`
	FilterErrors int   `json:"filterErrors"`

	ScoringUnit domain.ScoringUnit `json:"scoringUnit"`
	Sort        SortSpec           `json:"sort"`
}

// Recompute filters state with q, scores the result with settings, and
// assembles every table. It has no side effects: the same inputs always
// produce the same Results. ctx is checked periodically so that a caller
// can abandon a long pass.
func Recompute(
	ctx context.Context,
	state *State,
	q Query,
	settings *CompiledSettings,
	evaluator ports.Evaluator,
) (*Results, error) {
	filter, err := CompileFilter(q, evaluator)
	if err != nil {
		return nil, err
	}

	res := &Results{
		Constraint:  q.Constraint,
		ScoringUnit: settings.Settings.ScoringUnit,
		Sort:        settings.Settings.Sort,
	}
	for i, r := range state.Records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := filter.Match(r, state.Segment(r))
		if err != nil {
			if res.FilterError == nil {
				res.FilterError = err
			}
			res.FilterErrors++
			continue
		}
		if !ok {
			continue
		}
		res.Filtered = append(res.Filtered, r)
		if q.Constraint.Allows(r.Key()) && (q.Limit <= 0 || len(res.Shown) < q.Limit) {
			res.Shown = append(res.Shown, r)
		}
	}

	unit := settings.Settings.ScoringUnit
	res.Stats = Accumulate(res.Filtered, settings.Scorer)
	res.Events = res.Stats.Events
	res.Total = ScoreRow{
		Entity:  domain.Total(),
		Stats:   domain.Aggregate(res.Stats.Total.Segments(), unit),
		NumDocs: res.Stats.Total.NumDocs(),
	}
	res.Systems = scoreRows(res.Stats.BySystem, domain.System, unit, res.Sort)
	res.Raters = scoreRows(res.Stats.ByRater, domain.Rater, unit, res.Sort)
	res.WeightedFields = nonZeroFields(res.Total.Stats.Weighted)
	res.SliceFields = nonZeroFields(res.Total.Stats.Slices)
	res.Matrix = BuildSystemRaterMatrix(res.Stats, unit)
	res.SevCat = BuildSevCatTable(res.Stats)
	return res, nil
}

// SystemRow returns the score row of a system.
func (r *Results) SystemRow(name string) (ScoreRow, bool) {
	for _, row := range r.Systems {
		if row.Entity.Name == name {
			return row, true
		}
	}
	return ScoreRow{}, false
}

// RaterRow returns the score row of a rater.
func (r *Results) RaterRow(name string) (ScoreRow, bool) {
	for _, row := range r.Raters {
		if row.Entity.Name == name {
			return row, true
		}
	}
	return ScoreRow{}, false
}

func scoreRows(
	indices map[string]*domain.StatsIndex,
	entity func(string) domain.Entity,
	unit domain.ScoringUnit,
	sort SortSpec,
) []ScoreRow {
	rows := make([]ScoreRow, 0, len(indices))
	for name, idx := range indices {
		rows = append(rows, ScoreRow{
			Entity:  entity(name),
			Stats:   domain.Aggregate(idx.Segments(), unit),
			NumDocs: idx.NumDocs(),
		})
	}
	SortRows(rows, sort)
	return rows
}

// SortRows orders rows by the sort field, ascending unless reversed. Rows
// with equal values are ordered by name so the result is deterministic.
func SortRows(rows []ScoreRow, sort SortSpec) {
	field := cmp.Or(sort.Field, domain.ScoreField)
	slices.SortStableFunc(rows, func(a, b ScoreRow) int {
		c := cmp.Compare(a.Stats.Field(field), b.Stats.Field(field))
		if c == 0 {
			c = domain.CompareIDs(a.Entity.Name, b.Entity.Name)
		}
		if sort.Reverse {
			return -c
		}
		return c
	})
}

func nonZeroFields(values map[string]float64) []string {
	var names []string
	for name, v := range values {
		if v != 0 {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(values[b], values[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return names
}

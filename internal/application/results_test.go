package application

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/domain"
)

func TestRecompute_NoErrorVersusMajorAccuracy(t *testing.T) {
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "", "no-error"),
		rating("B", "D1", "1", "1", "r1", "Major", "Accuracy/Mistranslation"),
	)
	settings, err := Settings{
		Weights: []WeightRule{{Name: "AccMaj", Pattern: "major:.*accuracy", Weight: 10}},
	}.Compile()
	require.NoError(t, err)

	res, err := Recompute(context.Background(), state, Query{}, settings, nil)
	require.NoError(t, err)

	a, ok := res.SystemRow("A")
	require.True(t, ok)
	b, ok := res.SystemRow("B")
	require.True(t, ok)

	assert.Equal(t, 0.0, a.Stats.Score)
	assert.Equal(t, 10.0, b.Stats.Score)
	assert.Equal(t, 10.0, b.Stats.Field(domain.WeightedField("AccMaj")))
	assert.Equal(t, 10.0, b.Stats.Slices["Accuracy"])

	assert.Equal(t, []string{"A", "B"}, []string{res.Systems[0].Entity.Name, res.Systems[1].Entity.Name})
	assert.True(t, res.Total.Entity.IsTotal())
	assert.Equal(t, 5.0, res.Total.Stats.Score, "total averages both systems' entries on the shared segment")
	assert.Equal(t, []string{"AccMaj"}, res.WeightedFields)
	assert.Equal(t, []string{"Accuracy"}, res.SliceFields)

	assert.Equal(t, 1, b.Stats.NumWithErrors)
	assert.Equal(t, 4.0, b.Stats.AvgErrorSpan())
	assert.Zero(t, a.Stats.NumWithErrors, "no-error ratings do not count spans")
}

func TestRecompute_AveragesRatersPerSegment(t *testing.T) {
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("A", "D1", "1", "1", "r2", "Minor", "Fluency"),
		rating("A", "D1", "2", "2", "r1", "", "no-error"),
	)

	res, err := Recompute(context.Background(), state, Query{}, MustCompileDefaults(), nil)
	require.NoError(t, err)

	row, ok := res.SystemRow("A")
	require.True(t, ok)
	// Segment 1 averages (10 + 1) / 2, segment 2 scores 0; two segments.
	assert.InDelta(t, 2.75, row.Stats.Score, 1e-9)
	assert.Equal(t, 2, row.Stats.NumSegments)
	assert.Equal(t, 3, row.Stats.NumRatings)
	assert.Equal(t, 1, row.NumDocs)

	r1, ok := res.RaterRow("r1")
	require.True(t, ok)
	assert.InDelta(t, 5.0, r1.Stats.Score, 1e-9)
	r2, ok := res.RaterRow("r2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, r2.Stats.Score, 1e-9)
}

func TestRecompute_CharacterScoringUnit(t *testing.T) {
	state := mustState(t, rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"))
	settings, err := Settings{ScoringUnit: domain.ScoringUnitCharacters}.Compile()
	require.NoError(t, err)

	res, err := Recompute(context.Background(), state, Query{}, settings, nil)
	require.NoError(t, err)

	// "Hello world" has 11 characters: 0.11 scoring units.
	assert.InDelta(t, 0.11, res.Total.Stats.NumScoringUnits, 1e-12)
	assert.InDelta(t, 10/0.11, res.Total.Stats.Score, 1e-9)
	assert.Equal(t, domain.ScoringUnitCharacters, res.ScoringUnit)
}

func TestRecompute_EmptyFilterResult(t *testing.T) {
	state := mustState(t, rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"))
	q := Query{Columns: ColumnFilters{System: "^nobody$"}}

	res, err := Recompute(context.Background(), state, q, MustCompileDefaults(), nil)
	require.NoError(t, err)

	assert.Empty(t, res.Filtered)
	assert.Empty(t, res.Systems)
	assert.True(t, math.IsInf(res.Total.Stats.Score, 1))
	assert.True(t, res.Total.Stats.IsEmpty())
}

func TestRecompute_Filters(t *testing.T) {
	records := []domain.Record{
		rating("sysA", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("sysB", "D1", "1", "1", "r1", "Minor", "Fluency"),
		rating("sysA", "D2", "1", "2", "r2", "Minor", "Style"),
	}
	state := mustState(t, records...)

	tests := []struct {
		name        string
		query       Query
		wantSystems []string
		wantErrs    int
	}{
		{
			name:        "no filter",
			wantSystems: []string{"sysA", "sysB", "sysA"},
		},
		{
			name:        "column regex is case-insensitive",
			query:       Query{Columns: ColumnFilters{System: "SYSB"}},
			wantSystems: []string{"sysB"},
		},
		{
			name:        "columns combine with and",
			query:       Query{Columns: ColumnFilters{System: "sysA", Severity: "minor"}},
			wantSystems: []string{"sysA"},
		},
		{
			name:        "expression",
			query:       Query{Expr: `rater == "r2"`},
			wantSystems: []string{"sysA"},
		},
		{
			name:        "failing expression matches nothing",
			query:       Query{Expr: "bogus"},
			wantSystems: nil,
			wantErrs:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Recompute(context.Background(), state, tt.query, MustCompileDefaults(), fieldEquals)
			require.NoError(t, err)

			var got []string
			for _, r := range res.Filtered {
				got = append(got, r.System)
			}
			assert.Equal(t, tt.wantSystems, got)
			assert.Equal(t, tt.wantErrs, res.FilterErrors)
			if tt.wantErrs > 0 {
				assert.ErrorIs(t, res.FilterError, domain.ErrFilterExpression)
			}
		})
	}
}

func TestRecompute_InvalidColumnRegex(t *testing.T) {
	state := mustState(t, rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"))

	_, err := Recompute(context.Background(), state, Query{Columns: ColumnFilters{Doc: "("}}, MustCompileDefaults(), nil)

	var ferr *domain.FilterExpressionError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "(", ferr.Expr)
}

func TestRecompute_ExpressionWithoutEvaluator(t *testing.T) {
	state := mustState(t, rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"))

	_, err := Recompute(context.Background(), state, Query{Expr: "true"}, MustCompileDefaults(), nil)
	assert.ErrorIs(t, err, domain.ErrFilterExpression)
}

func TestRecompute_ViewingConstraintLimitsShownRowsOnly(t *testing.T) {
	seg1 := rating("A", "D1", "1", "1", "r1", "Major", "Accuracy")
	seg2 := rating("A", "D1", "2", "2", "r1", "Minor", "Fluency")
	state := mustState(t, seg1, seg2)

	q := Query{Constraint: NewViewingConstraint("segment 1", "lightgreen", []domain.SegmentKey{seg1.Key()})}
	res, err := Recompute(context.Background(), state, q, MustCompileDefaults(), nil)
	require.NoError(t, err)

	assert.Len(t, res.Filtered, 2)
	require.Len(t, res.Shown, 1)
	assert.Equal(t, seg1.Key(), res.Shown[0].Key())
	assert.Equal(t, 2, res.Total.Stats.NumSegments, "stats cover the whole filter result")
	assert.Equal(t, "segment 1", res.Constraint.Description)
}

func TestRecompute_Limit(t *testing.T) {
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("A", "D1", "2", "2", "r1", "Major", "Accuracy"),
		rating("A", "D1", "3", "3", "r1", "Major", "Accuracy"),
	)

	res, err := Recompute(context.Background(), state, Query{Limit: 2}, MustCompileDefaults(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Shown, 2)
	assert.Len(t, res.Filtered, 3)
}

func TestRecompute_IsDeterministic(t *testing.T) {
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("B", "D1", "1", "1", "r2", "Minor", "Fluency"),
		rating("C", "D2", "1", "2", "r1", "Critical", "Terminology"),
	)
	first, err := Recompute(context.Background(), state, Query{}, MustCompileDefaults(), nil)
	require.NoError(t, err)
	second, err := Recompute(context.Background(), state, Query{}, MustCompileDefaults(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.Systems, second.Systems)
	assert.Equal(t, first.Raters, second.Raters)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Matrix, second.Matrix)
}

func TestRecompute_CancelledContext(t *testing.T) {
	state := mustState(t, rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Recompute(ctx, state, Query{}, MustCompileDefaults(), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSortRows(t *testing.T) {
	row := func(name string, score float64, weighted float64) ScoreRow {
		return ScoreRow{
			Entity: domain.System(name),
			Stats:  domain.AggregateStats{Score: score, Weighted: map[string]float64{"W": weighted}},
		}
	}
	names := func(rows []ScoreRow) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.Entity.Name
		}
		return out
	}

	tests := []struct {
		name string
		sort SortSpec
		want []string
	}{
		{name: "score ascending", sort: SortSpec{Field: domain.ScoreField}, want: []string{"b", "a", "c", "d"}},
		{name: "score descending", sort: SortSpec{Field: domain.ScoreField, Reverse: true}, want: []string{"d", "c", "a", "b"}},
		{name: "weighted field", sort: SortSpec{Field: "weighted-W"}, want: []string{"d", "c", "a", "b"}},
		{name: "empty field defaults to score", sort: SortSpec{}, want: []string{"b", "a", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []ScoreRow{row("c", 2, 1), row("a", 2, 2), row("d", 3, 0), row("b", 1, 3)}
			SortRows(rows, tt.sort)
			assert.Equal(t, tt.want, names(rows))
		})
	}
}

func TestAccumulate_Indices(t *testing.T) {
	recs := []domain.Record{
		rating("A", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("A", "D1", "1", "1", "r1", "Minor", "Fluency"),
		rating("A", "D1", "1", "1", "r2", "Minor", "Fluency"),
		rating("B", "D1", "1", "1", "r1", "", "no-error"),
	}
	recs[0].Metadata.Timing = map[string]domain.TimingEvent{"click": {Count: 2, TimeMS: 10}}
	recs[2].Metadata.Timing = map[string]domain.TimingEvent{"click": {Count: 1, TimeMS: 5}}
	state := mustState(t, recs...)

	stats := Accumulate(state.Records, MustCompileDefaults().Scorer)

	total := stats.Total.Segments()
	require.Len(t, total, 1)
	assert.Len(t, total[0].Raters, 3, "one entry per system and rater run")
	assert.Equal(t, 11, total[0].SrcLen)

	segA, ok := stats.BySystem["A"].Lookup("D1", "1")
	require.True(t, ok)
	require.Len(t, segA.Raters, 2)
	assert.Equal(t, 11.0, segA.Raters[0].Score)
	assert.Equal(t, 1.0, segA.Raters[1].Score)

	assert.Len(t, stats.ByRater["r1"].Segments()[0].Raters, 2)
	assert.Contains(t, stats.BySystemRater["B"], "r1")
	assert.NotContains(t, stats.BySystemRater["B"], "r2")

	assert.Equal(t, 2, stats.SevCat["Minor"]["Fluency"].Total)
	assert.Equal(t, 2, stats.SevCat["Minor"]["Fluency"].BySystem["A"])
	assert.Equal(t, 1, stats.SevCat[""]["no-error"].BySystem["B"])

	assert.Equal(t, domain.TimingEvent{Count: 3, TimeMS: 15}, stats.Events["click"])
}

func TestBuildSevCatTable_Ordering(t *testing.T) {
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "Minor", "Style"),
		rating("A", "D1", "1", "1", "r1", "Minor", "Fluency"),
		rating("B", "D1", "1", "1", "r1", "Minor", "Fluency"),
		rating("B", "D1", "2", "2", "r1", "Major", "Accuracy"),
		rating("B", "D1", "3", "3", "r1", "Major", "Accuracy"),
	)
	table := BuildSevCatTable(Accumulate(state.Records, MustCompileDefaults().Scorer))

	assert.Equal(t, []string{"B", "A"}, table.Systems)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, SevCatRow{Severity: "Major", Category: "Accuracy", Total: 2, BySystem: map[string]int{"B": 2}}, table.Rows[0])
	assert.Equal(t, "Fluency", table.Rows[1].Category)
	assert.Equal(t, "Style", table.Rows[2].Category)
}

func TestBuildSystemRaterMatrix(t *testing.T) {
	// r1 agrees with the overall ranking A < B; r2 ranks them the other way.
	state := mustState(t,
		rating("A", "D1", "1", "1", "r1", "", "no-error"),
		rating("A", "D1", "1", "1", "r2", "Minor", "Fluency"),
		rating("B", "D1", "1", "1", "r1", "Major", "Accuracy"),
		rating("B", "D1", "1", "1", "r2", "", "no-error"),
		rating("C", "D1", "1", "1", "r1", "Critical", "Accuracy"),
	)
	m := BuildSystemRaterMatrix(Accumulate(state.Records, MustCompileDefaults().Scorer), domain.ScoringUnitSegments)

	require.Len(t, m.Rows, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{m.Rows[0].System, m.Rows[1].System, m.Rows[2].System})
	assert.Equal(t, []string{"r2", "r1"}, m.Raters, "raters ordered by overall score")

	b := m.Rows[1]
	assert.Equal(t, 5.0, b.AllRaters)
	r2, r1 := b.Cells[0], b.Cells[1]
	assert.True(t, r2.Present)
	assert.True(t, r2.OutOfOrder, "r2 scores B better than A while all raters score it worse")
	assert.False(t, r1.OutOfOrder)

	c := m.Rows[2]
	assert.False(t, c.Cells[0].Present, "r2 did not rate C")
	assert.True(t, c.Cells[1].Present)
	assert.False(t, c.Cells[1].OutOfOrder)
}

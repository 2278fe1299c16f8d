package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segWith(key SegmentKey, srcLen int, scores ...float64) *SegmentStats {
	seg := &SegmentStats{Key: key, SrcLen: srcLen}
	for i, s := range scores {
		rs := seg.Open(string(rune('a' + i)))
		rs.Score = s
		rs.Weighted["W"] = s
		rs.HotwFound = 1
	}
	return seg
}

func TestAggregate_Empty(t *testing.T) {
	agg := Aggregate(nil, ScoringUnitSegments)

	assert.True(t, math.IsInf(agg.Score, 1))
	assert.Zero(t, agg.NumSegments)
	assert.Zero(t, agg.NumSrcChars)
	assert.Zero(t, agg.NumScoringUnits)
	assert.Zero(t, agg.NumRatings)
	assert.True(t, agg.IsEmpty())
}

func TestAggregate(t *testing.T) {
	segs := []*SegmentStats{
		segWith(SegmentKey{Doc: "d", DocSegID: "1"}, 150, 4, 2),
		segWith(SegmentKey{Doc: "d", DocSegID: "2"}, 50, 6),
	}

	tests := []struct {
		name      string
		unit      ScoringUnit
		wantScore float64
		wantUnits float64
	}{
		// (avg(4,2) + 6) / 2 segments
		{"per segment", ScoringUnitSegments, 4.5, 2},
		// (3 + 6) / (200 / 100)
		{"per hundred characters", ScoringUnitCharacters, 4.5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate(segs, tt.unit)
			assert.InDelta(t, tt.wantScore, agg.Score, 1e-9)
			assert.InDelta(t, tt.wantScore, agg.Weighted["W"], 1e-9)
			assert.Equal(t, tt.wantUnits, agg.NumScoringUnits)
			assert.Equal(t, 2, agg.NumSegments)
			assert.Equal(t, 200, agg.NumSrcChars)
			assert.Equal(t, 3, agg.NumRatings)
			assert.Equal(t, 3, agg.HotwFound, "Counters are summed, not averaged")
		})
	}

	chars := Aggregate(segs[:1], ScoringUnitCharacters)
	assert.InDelta(t, 3/1.5, chars.Score, 1e-9)
}

func TestAggregateStats_Field(t *testing.T) {
	agg := AggregateStats{
		Score:    3,
		Weighted: map[string]float64{"AccMaj": 2},
		Slices:   map[string]float64{"Accuracy": 1},
	}

	assert.Equal(t, 3.0, agg.Field(ScoreField))
	assert.Equal(t, 2.0, agg.Field(WeightedField("AccMaj")))
	assert.Equal(t, 1.0, agg.Field(SliceField("Accuracy")))
	assert.Zero(t, agg.Field(WeightedField("missing")))
	assert.Zero(t, agg.Field("bogus"))
}

func TestAggregateStats_AvgErrorSpan(t *testing.T) {
	assert.Zero(t, AggregateStats{}.AvgErrorSpan())
	assert.Equal(t, 2.5, AggregateStats{ErrorSpans: 5, NumWithErrors: 2}.AvgErrorSpan())
}

func TestStatsIndex(t *testing.T) {
	idx := NewStatsIndex()
	keys := []SegmentKey{
		{Doc: "d2", DocSegID: "1"},
		{Doc: "d1", DocSegID: "10"},
		{Doc: "d1", DocSegID: "9"},
	}
	for _, k := range keys {
		idx.Segment(k).Open("r")
	}

	again := idx.Segment(keys[0])
	require.Len(t, again.Raters, 1, "Existing segment is returned")

	assert.Equal(t, []string{"d1", "d2"}, idx.Docs())
	assert.Equal(t, 2, idx.NumDocs())

	var got []SegmentKey
	for _, s := range idx.Segments() {
		got = append(got, s.Key)
	}
	assert.Equal(t, []SegmentKey{keys[2], keys[1], keys[0]}, got)

	_, ok := idx.Lookup("d1", "9")
	assert.True(t, ok)
	_, ok = idx.Lookup("d3", "1")
	assert.False(t, ok)
}

func TestEntity(t *testing.T) {
	assert.Equal(t, "Total", Total().String())
	assert.True(t, Total().IsTotal())
	assert.Equal(t, "Total", System("Total").String())
	assert.False(t, System("Total").IsTotal(), "A system named Total is not the Total row")
	assert.Equal(t, EntityRater, Rater("r").Kind)
}

package domain

import (
	"math"
	"slices"
	"strings"
)

// ScoringUnit selects what aggregate scores are normalized by.
type ScoringUnit string

const (
	// ScoringUnitSegments divides by the number of segments.
	ScoringUnitSegments ScoringUnit = "segments"

	// ScoringUnitCharacters divides by the number of source characters / 100.
	ScoringUnitCharacters ScoringUnit = "characters"
)

// ScoreField is the sortable column holding the overall score.
const ScoreField = "score"

// EntityKind tags what a stats row aggregates over.
type EntityKind int

const (
	// EntityTotal is the row aggregating every filtered record.
	EntityTotal EntityKind = iota
	// EntitySystem is a row for one translation system.
	EntitySystem
	// EntityRater is a row for one rater.
	EntityRater
)

// TotalLabel is how the Total row is displayed and exported.
const TotalLabel = "Total"

// Entity names the subject of a stats row. The Total row is tagged by kind
// rather than by a reserved name, so a system may be called "Total".
type Entity struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}

// Total returns the entity of the aggregate-of-everything row.
func Total() Entity { return Entity{Kind: EntityTotal} }

// System returns the entity for a named system.
func System(name string) Entity { return Entity{Kind: EntitySystem, Name: name} }

// Rater returns the entity for a named rater.
func Rater(name string) Entity { return Entity{Kind: EntityRater, Name: name} }

// IsTotal reports whether e is the Total row.
func (e Entity) IsTotal() bool { return e.Kind == EntityTotal }

// String returns the display label.
func (e Entity) String() string {
	if e.IsTotal() {
		return TotalLabel
	}
	return e.Name
}

// RaterStats accumulates the scored ratings of one rater on one segment.
type RaterStats struct {
	Rater string  `json:"rater"`
	Score float64 `json:"score"`

	// Weighted and Slices hold subscores keyed by rule name.
	Weighted map[string]float64 `json:"weighted"`
	Slices   map[string]float64 `json:"slices"`

	ErrorSpans    int `json:"errorSpans"`
	NumWithErrors int `json:"numWithErrors"`
	HotwFound     int `json:"hotwFound"`
	HotwMissed    int `json:"hotwMissed"`
	Unrateable    int `json:"unrateable"`
}

// NewRaterStats returns zeroed stats for rater.
func NewRaterStats(rater string) *RaterStats {
	return &RaterStats{
		Rater:    rater,
		Weighted: make(map[string]float64),
		Slices:   make(map[string]float64),
	}
}

func (s *RaterStats) add(delta *RaterStats) {
	s.Score += delta.Score
	for k, v := range delta.Weighted {
		s.Weighted[k] += v
	}
	for k, v := range delta.Slices {
		s.Slices[k] += v
	}
	s.ErrorSpans += delta.ErrorSpans
	s.NumWithErrors += delta.NumWithErrors
	s.HotwFound += delta.HotwFound
	s.HotwMissed += delta.HotwMissed
	s.Unrateable += delta.Unrateable
}

// avg divides the score and subscores by num. Counters are left as sums.
func (s *RaterStats) avg(num float64) {
	if num == 0 {
		return
	}
	s.Score /= num
	for k := range s.Weighted {
		s.Weighted[k] /= num
	}
	for k := range s.Slices {
		s.Slices[k] /= num
	}
}

// SegmentStats holds the rater entries opened for one segment.
type SegmentStats struct {
	Key    SegmentKey    `json:"key"`
	SrcLen int           `json:"srcLen"`
	Raters []*RaterStats `json:"raters"`
}

// Open appends a new entry for rater and returns it.
func (s *SegmentStats) Open(rater string) *RaterStats {
	rs := NewRaterStats(rater)
	s.Raters = append(s.Raters, rs)
	return rs
}

// Last returns the most recently opened entry, or nil.
func (s *SegmentStats) Last() *RaterStats {
	if len(s.Raters) == 0 {
		return nil
	}
	return s.Raters[len(s.Raters)-1]
}

// StatsIndex maps doc to docSegId to the stats of that segment.
type StatsIndex struct {
	docs map[string]map[string]*SegmentStats
}

// NewStatsIndex returns an empty index.
func NewStatsIndex() *StatsIndex {
	return &StatsIndex{docs: make(map[string]map[string]*SegmentStats)}
}

// Segment returns the stats for key, creating them if needed.
func (x *StatsIndex) Segment(key SegmentKey) *SegmentStats {
	segs, ok := x.docs[key.Doc]
	if !ok {
		segs = make(map[string]*SegmentStats)
		x.docs[key.Doc] = segs
	}
	seg, ok := segs[key.DocSegID]
	if !ok {
		seg = &SegmentStats{Key: key}
		segs[key.DocSegID] = seg
	}
	return seg
}

// Lookup returns the stats of a segment if present.
func (x *StatsIndex) Lookup(doc, docSegID string) (*SegmentStats, bool) {
	seg, ok := x.docs[doc][docSegID]
	return seg, ok
}

// Docs returns the documents in canonical order.
func (x *StatsIndex) Docs() []string {
	docs := make([]string, 0, len(x.docs))
	for d := range x.docs {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, CompareIDs)
	return docs
}

// DocSegments returns the segments of doc ordered by docSegId.
func (x *StatsIndex) DocSegments(doc string) []*SegmentStats {
	segs := make([]*SegmentStats, 0, len(x.docs[doc]))
	for _, s := range x.docs[doc] {
		segs = append(segs, s)
	}
	slices.SortFunc(segs, func(a, b *SegmentStats) int {
		return CompareIDs(a.Key.DocSegID, b.Key.DocSegID)
	})
	return segs
}

// Segments returns every segment ordered by doc then docSegId.
func (x *StatsIndex) Segments() []*SegmentStats {
	var all []*SegmentStats
	for _, doc := range x.Docs() {
		all = append(all, x.DocSegments(doc)...)
	}
	return all
}

// NumDocs returns the number of documents in the index.
func (x *StatsIndex) NumDocs() int { return len(x.docs) }

// AggregateStats is the reduction of many segments' rater stats into one
// normalized row.
type AggregateStats struct {
	Score    float64            `json:"score"`
	Weighted map[string]float64 `json:"weighted"`
	Slices   map[string]float64 `json:"slices"`

	ErrorSpans    int `json:"errorSpans"`
	NumWithErrors int `json:"numWithErrors"`
	HotwFound     int `json:"hotwFound"`
	HotwMissed    int `json:"hotwMissed"`
	Unrateable    int `json:"unrateable"`

	NumSegments     int     `json:"numSegments"`
	NumSrcChars     int     `json:"numSrcChars"`
	NumScoringUnits float64 `json:"numScoringUnits"`
	NumRatings      int     `json:"numRatings"`
}

// IsEmpty reports whether the stats aggregate no segments.
func (a AggregateStats) IsEmpty() bool { return a.NumSegments == 0 }

// AvgErrorSpan returns the mean marked span length over records that had
// one, or zero.
func (a AggregateStats) AvgErrorSpan() float64 {
	if a.NumWithErrors == 0 {
		return 0
	}
	return float64(a.ErrorSpans) / float64(a.NumWithErrors)
}

// Field returns the value of a sortable column: "score", "weighted-<name>"
// or "slice-<name>". Unknown or absent subscores read as zero.
func (a AggregateStats) Field(name string) float64 {
	switch {
	case name == ScoreField:
		return a.Score
	case strings.HasPrefix(name, WeightedPrefix):
		return a.Weighted[strings.TrimPrefix(name, WeightedPrefix)]
	case strings.HasPrefix(name, SlicePrefix):
		return a.Slices[strings.TrimPrefix(name, SlicePrefix)]
	default:
		return 0
	}
}

// Aggregate averages each segment's rater entries over its raters, sums the
// per-segment values, and normalizes by the scoring units. No segments give
// a score of +Inf with all counts zero.
func Aggregate(segs []*SegmentStats, unit ScoringUnit) AggregateStats {
	total := NewRaterStats("")
	if len(segs) == 0 {
		return AggregateStats{
			Score:    math.Inf(1),
			Weighted: total.Weighted,
			Slices:   total.Slices,
		}
	}

	var srcChars, ratings int
	for _, seg := range segs {
		srcChars += seg.SrcLen
		perSeg := NewRaterStats("")
		for _, rs := range seg.Raters {
			perSeg.add(rs)
		}
		perSeg.avg(float64(len(seg.Raters)))
		ratings += len(seg.Raters)
		total.add(perSeg)
	}

	out := AggregateStats{
		NumSegments: len(segs),
		NumSrcChars: srcChars,
		NumRatings:  ratings,
	}
	if unit == ScoringUnitCharacters {
		out.NumScoringUnits = float64(srcChars) / 100
	} else {
		out.NumScoringUnits = float64(len(segs))
	}
	total.avg(out.NumScoringUnits)

	out.Score = total.Score
	out.Weighted = total.Weighted
	out.Slices = total.Slices
	out.ErrorSpans = total.ErrorSpans
	out.NumWithErrors = total.NumWithErrors
	out.HotwFound = total.HotwFound
	out.HotwMissed = total.HotwMissed
	out.Unrateable = total.Unrateable
	return out
}

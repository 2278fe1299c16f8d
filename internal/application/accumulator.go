package application

import (
	"github.com/ahrav/go-mqm/internal/domain"
)

// SevCatCount counts ratings of one severity and category, in total and
// per system.
type SevCatCount struct {
	Total    int            `json:"total"`
	BySystem map[string]int `json:"bySystem"`
}

// Stats holds every index built from one filtered, sorted record set.
type Stats struct {
	Total         *domain.StatsIndex
	BySystem      map[string]*domain.StatsIndex
	ByRater       map[string]*domain.StatsIndex
	BySystemRater map[string]map[string]*domain.StatsIndex
	// SevCat maps severity to category to counts.
	SevCat map[string]map[string]*SevCatCount
	// Events sums the annotation UI timings found in record metadata.
	Events map[string]domain.TimingEvent
}

func newStats() *Stats {
	return &Stats{
		Total:         domain.NewStatsIndex(),
		BySystem:      make(map[string]*domain.StatsIndex),
		ByRater:       make(map[string]*domain.StatsIndex),
		BySystemRater: make(map[string]map[string]*domain.StatsIndex),
		SevCat:        make(map[string]map[string]*SevCatCount),
		Events:        make(map[string]domain.TimingEvent),
	}
}

func indexFor(m map[string]*domain.StatsIndex, name string) *domain.StatsIndex {
	idx, ok := m[name]
	if !ok {
		idx = domain.NewStatsIndex()
		m[name] = idx
	}
	return idx
}

// accumulator walks sorted records and keeps cursors on the rater entries
// that the current record contributes to.
type accumulator struct {
	stats  *Stats
	scorer *domain.Scorer

	last *domain.Record

	segTotal, segSystem *domain.SegmentStats
	// current rater entries in total, by system, by rater, by system+rater
	entries [4]*domain.RaterStats
}

// Accumulate builds the stats indices for records, which must be sorted.
// A new segment starts whenever system, doc, docSegId or globalSegId
// changes from the previous record; a new rater entry is opened in every
// index when the segment or the rater changes.
func Accumulate(records []domain.Record, scorer *domain.Scorer) *Stats {
	a := &accumulator{stats: newStats(), scorer: scorer}
	for i := range records {
		a.add(&records[i])
	}
	return a.stats
}

func (a *accumulator) add(r *domain.Record) {
	key := r.Key()
	sameSegment := a.last != nil &&
		r.System == a.last.System &&
		r.Doc == a.last.Doc &&
		r.DocSegID == a.last.DocSegID &&
		r.GlobalSegID == a.last.GlobalSegID

	if !sameSegment {
		a.segTotal = a.stats.Total.Segment(key)
		a.segSystem = indexFor(a.stats.BySystem, r.System).Segment(key)
		a.segTotal.SrcLen = r.SrcLen
		a.segSystem.SrcLen = r.SrcLen
	}

	if !sameSegment || r.Rater != a.last.Rater {
		segRater := indexFor(a.stats.ByRater, r.Rater).Segment(key)
		segRater.SrcLen = r.SrcLen

		bySys, ok := a.stats.BySystemRater[r.System]
		if !ok {
			bySys = make(map[string]*domain.StatsIndex)
			a.stats.BySystemRater[r.System] = bySys
		}
		segSysRater := indexFor(bySys, r.Rater).Segment(key)
		segSysRater.SrcLen = r.SrcLen

		a.entries = [4]*domain.RaterStats{
			a.segTotal.Open(r.Rater),
			a.segSystem.Open(r.Rater),
			segRater.Open(r.Rater),
			segSysRater.Open(r.Rater),
		}
	}

	span := r.SpanLength()
	for _, e := range a.entries {
		a.scorer.Score(e, r.Category, r.Severity, span)
	}

	a.addSevCat(r)
	for name, ev := range r.Metadata.Timing {
		sum := a.stats.Events[name]
		sum.Count += ev.Count
		sum.TimeMS += ev.TimeMS
		a.stats.Events[name] = sum
	}
	a.last = r
}

func (a *accumulator) addSevCat(r *domain.Record) {
	cats, ok := a.stats.SevCat[r.Severity]
	if !ok {
		cats = make(map[string]*SevCatCount)
		a.stats.SevCat[r.Severity] = cats
	}
	c, ok := cats[r.Category]
	if !ok {
		c = &SevCatCount{BySystem: make(map[string]int)}
		cats[r.Category] = c
	}
	c.Total++
	c.BySystem[r.System]++
}

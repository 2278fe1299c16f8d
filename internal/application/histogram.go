package application

import (
	"fmt"
	"math"
	"slices"

	"github.com/ahrav/go-mqm/internal/domain"
)

// Histogram layout constants.
const (
	HistogramBinWidth = 0.5
	// LogUnitHeight is the bar height of a bin holding a single segment.
	LogUnitHeight = 25.0

	minVisibleBin   = 1
	minVisibleCount = 8
)

// Histogram colors, one per side plus the equal bucket.
var (
	HistogramColors     = [2]string{"lightgreen", "lightblue"}
	HistogramEqualColor = "lightgray"
)

// HistogramBin is one bar: segments whose score difference falls in
// [Lower, Upper) and where the same system did better.
type HistogramBin struct {
	Index int                 `json:"index"`
	Lower float64             `json:"lower"`
	Upper float64             `json:"upper"`
	Keys  []domain.SegmentKey `json:"keys"`
}

// Label renders the bin range.
func (b HistogramBin) Label() string {
	return fmt.Sprintf("[%g, %g)", b.Lower, b.Upper)
}

// Histogram compares two systems segment by segment. Better[0] holds bins
// where the first system scored lower (better); Better[1] where the second
// did.
type Histogram struct {
	System1 string `json:"system1"`
	System2 string `json:"system2"`

	// Segs1 and Segs2 count each system's segments, Common those they share.
	Segs1  int `json:"segs1"`
	Segs2  int `json:"segs2"`
	Common int `json:"common"`

	Equal  []domain.SegmentKey            `json:"equal"`
	Better [2]map[int][]domain.SegmentKey `json:"better"`

	// MaxBin and MaxCount bound the visible axes; they never drop below
	// 1 and 8 so that small histograms keep a readable scale.
	MaxBin   int `json:"maxBin"`
	MaxCount int `json:"maxCount"`
}

// NewHistogram returns an empty histogram for two systems.
func NewHistogram(sys1, sys2 string) *Histogram {
	return &Histogram{
		System1:  sys1,
		System2:  sys2,
		Better:   [2]map[int][]domain.SegmentKey{{}, {}},
		MaxBin:   minVisibleBin,
		MaxCount: minVisibleCount,
	}
}

// Add files one segment's pair of scores.
func (h *Histogram) Add(key domain.SegmentKey, score1, score2 float64) {
	if score1 == score2 {
		h.Equal = append(h.Equal, key)
		h.MaxCount = max(h.MaxCount, len(h.Equal))
		return
	}
	bin := int(math.Floor(math.Abs(score1-score2) / HistogramBinWidth))
	side := 1
	if score1 < score2 {
		side = 0
	}
	h.Better[side][bin] = append(h.Better[side][bin], key)
	h.MaxBin = max(h.MaxBin, bin)
	h.MaxCount = max(h.MaxCount, len(h.Better[side][bin]))
}

// Bins returns the non-empty bins of one side in index order.
func (h *Histogram) Bins(side int) []HistogramBin {
	bins := make([]HistogramBin, 0, len(h.Better[side]))
	for idx, keys := range h.Better[side] {
		bins = append(bins, HistogramBin{
			Index: idx,
			Lower: float64(idx) * HistogramBinWidth,
			Upper: float64(idx+1) * HistogramBinWidth,
			Keys:  keys,
		})
	}
	slices.SortFunc(bins, func(a, b HistogramBin) int { return a.Index - b.Index })
	return bins
}

// LargestBin returns the population of the fullest bin on one side.
func (h *Histogram) LargestBin(side int) int {
	n := 0
	for _, keys := range h.Better[side] {
		n = max(n, len(keys))
	}
	return n
}

// Constraint returns a viewing constraint for drilling into one bin.
func (h *Histogram) Constraint(side, bin int) *ViewingConstraint {
	better, worse := h.System1, h.System2
	if side == 1 {
		better, worse = worse, better
	}
	lo := float64(bin) * HistogramBinWidth
	desc := fmt.Sprintf("%d segment(s) where %s is better than %s by a score in [%g, %g).",
		len(h.Better[side][bin]), better, worse, lo, lo+HistogramBinWidth)
	return NewViewingConstraint(desc, HistogramColors[side], h.Better[side][bin])
}

// EqualConstraint returns a viewing constraint for the equal bucket.
func (h *Histogram) EqualConstraint() *ViewingConstraint {
	desc := fmt.Sprintf("%d segment(s) where %s and %s have the same score.",
		len(h.Equal), h.System1, h.System2)
	return NewViewingConstraint(desc, HistogramEqualColor, h.Equal)
}

// BarHeight maps a bin population to a bar height that grows with its
// logarithm, so that bins of one and of thousands both stay legible.
func BarHeight(count int) float64 {
	if count <= 0 {
		return 0
	}
	return LogUnitHeight * (math.Log2(float64(count)) + 1)
}

// BuildHistogram compares sys1 and sys2 on the segments both were rated
// on, scoring each segment on its own.
func BuildHistogram(bySystem map[string]*domain.StatsIndex, sys1, sys2 string, unit domain.ScoringUnit) (*Histogram, error) {
	idx1, ok := bySystem[sys1]
	if !ok {
		return nil, unknownSystem(bySystem, sys1)
	}
	idx2, ok := bySystem[sys2]
	if !ok {
		return nil, unknownSystem(bySystem, sys2)
	}

	segs1, segs2 := idx1.Segments(), idx2.Segments()
	h := NewHistogram(sys1, sys2)
	h.Segs1, h.Segs2 = len(segs1), len(segs2)

	i, j := 0, 0
	for i < len(segs1) && j < len(segs2) {
		a, b := segs1[i], segs2[j]
		c := domain.CompareIDs(a.Key.Doc, b.Key.Doc)
		if c == 0 {
			c = domain.CompareIDs(a.Key.DocSegID, b.Key.DocSegID)
		}
		switch {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			s1 := domain.Aggregate([]*domain.SegmentStats{a}, unit).Score
			s2 := domain.Aggregate([]*domain.SegmentStats{b}, unit).Score
			h.Add(a.Key, s1, s2)
			h.Common++
			i++
			j++
		}
	}
	return h, nil
}

func unknownSystem(bySystem map[string]*domain.StatsIndex, name string) error {
	known := make([]string, 0, len(bySystem))
	for sys := range bySystem {
		known = append(known, sys)
	}
	slices.Sort(known)
	if s := closest(name, known); s != "" {
		return fmt.Errorf("%w: %q (did you mean %q?)", domain.ErrUnknownSystem, name, s)
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownSystem, name)
}

package application

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/ahrav/go-mqm/internal/domain"
)

// Granularity selects how finely exported scores are broken down.
type Granularity string

const (
	GranularitySystem   Granularity = "system"
	GranularityDocument Granularity = "document"
	GranularitySegment  Granularity = "segment"
	GranularityRater    Granularity = "rater"
)

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularitySystem, GranularityDocument, GranularitySegment, GranularityRater:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q: want system, document, segment or rater", s)
	}
}

// ScoreExportRow is one exported score with the identifying fields of its
// granularity.
type ScoreExportRow struct {
	System   string  `json:"system"`
	Doc      string  `json:"doc,omitempty"`
	DocSegID string  `json:"docSegId,omitempty"`
	Rater    string  `json:"rater,omitempty"`
	Score    float64 `json:"score"`

	granularity Granularity
}

// Fields returns the row's identifying columns followed by its score.
func (r ScoreExportRow) Fields() []string {
	fields := []string{r.System}
	switch r.granularity {
	case GranularityDocument:
		fields = append(fields, r.Doc)
	case GranularitySegment:
		fields = append(fields, r.Doc, r.DocSegID)
	case GranularityRater:
		fields = append(fields, r.Doc, r.DocSegID, r.Rater)
	}
	return append(fields, FormatScore(r.Score))
}

func (r ScoreExportRow) sortKey() domain.SortKey {
	return domain.SortKey{System: r.System, Doc: r.Doc, DocSegID: r.DocSegID, Rater: r.Rater}
}

// FormatScore renders a score in its shortest exact decimal form.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ExportScores aggregates the filtered stats at granularity g. Rows are in
// canonical order.
func ExportScores(stats *Stats, g Granularity, unit domain.ScoringUnit) []ScoreExportRow {
	var rows []ScoreExportRow
	add := func(row ScoreExportRow, segs []*domain.SegmentStats) {
		row.granularity = g
		row.Score = domain.Aggregate(segs, unit).Score
		rows = append(rows, row)
	}

	switch g {
	case GranularityRater:
		for sys, byRater := range stats.BySystemRater {
			for rater, idx := range byRater {
				for _, seg := range idx.Segments() {
					add(ScoreExportRow{System: sys, Doc: seg.Key.Doc, DocSegID: seg.Key.DocSegID, Rater: rater},
						[]*domain.SegmentStats{seg})
				}
			}
		}
	default:
		for sys, idx := range stats.BySystem {
			switch g {
			case GranularitySystem:
				add(ScoreExportRow{System: sys}, idx.Segments())
			case GranularityDocument:
				for _, doc := range idx.Docs() {
					add(ScoreExportRow{System: sys, Doc: doc}, idx.DocSegments(doc))
				}
			case GranularitySegment:
				for _, seg := range idx.Segments() {
					add(ScoreExportRow{System: sys, Doc: seg.Key.Doc, DocSegID: seg.Key.DocSegID},
						[]*domain.SegmentStats{seg})
				}
			}
		}
	}

	slices.SortStableFunc(rows, func(a, b ScoreExportRow) int {
		return a.sortKey().Compare(b.sortKey())
	})
	return rows
}

// WriteScoresTSV writes rows as tab-separated lines.
func WriteScoresTSV(w io.Writer, rows []ScoreExportRow) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		for i, f := range r.Fields() {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(f)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteRecordsTSV writes records in the wire format, one per line, with the
// wire column order restored.
func WriteRecordsTSV(w io.Writer, records []domain.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(r.TSV() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Package render draws results as terminal tables and HTML charts.
package render

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/domain"
)

const missingCell = "-"

// Options control table rendering.
type Options struct {
	// Color highlights out-of-order matrix cells and the Total row.
	Color bool
	// CIs adds a 95% interval column to the systems table when present.
	CIs map[string]application.CIResult
}

// Tables renders the tables of one Results value.
type Tables struct {
	opts      Options
	highlight *color.Color
	emphasis  *color.Color
}

// NewTables creates a table renderer.
func NewTables(opts Options) *Tables {
	highlight := color.New(color.FgRed, color.Bold)
	emphasis := color.New(color.Bold)
	if opts.Color {
		highlight.EnableColor()
		emphasis.EnableColor()
	} else {
		highlight.DisableColor()
		emphasis.DisableColor()
	}
	return &Tables{opts: opts, highlight: highlight, emphasis: emphasis}
}

func newWriter(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)
	tbl.Style().Title.Align = text.AlignLeft
	return tbl
}

// FormatScore renders a score with three decimals. Scores over nothing
// print as "-".
func FormatScore(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return missingCell
	}
	return fmt.Sprintf("%.3f", v)
}

// Systems renders the systems table, with intervals when Options.CIs is set.
func (t *Tables) Systems(res *application.Results) string {
	return t.scores("Systems", res, res.Systems, t.opts.CIs != nil)
}

// Raters renders the raters table.
func (t *Tables) Raters(res *application.Results) string {
	return t.scores("Raters", res, res.Raters, false)
}

// scores renders the Total row followed by rows, with a column per weighted
// and slice field of res.
func (t *Tables) scores(title string, res *application.Results, rows []application.ScoreRow, withCI bool) string {
	tbl := newWriter(title)

	header := table.Row{"", "Score"}
	for _, f := range res.WeightedFields {
		header = append(header, f)
	}
	for _, f := range res.SliceFields {
		header = append(header, "slice "+f)
	}
	header = append(header, "Docs", "Segments", unitHeader(res.ScoringUnit), "Ratings", "Err span", "HOTW", "Unrateable")
	if withCI {
		header = append(header, "95% CI")
	}
	tbl.AppendHeader(header)

	all := append([]application.ScoreRow{res.Total}, rows...)
	for _, row := range all {
		s := row.Stats
		label := row.Entity.String()
		if row.Entity.IsTotal() {
			label = t.emphasis.Sprint(label)
		}
		r := table.Row{label, FormatScore(s.Score)}
		for _, f := range res.WeightedFields {
			r = append(r, FormatScore(s.Weighted[f]))
		}
		for _, f := range res.SliceFields {
			r = append(r, FormatScore(s.Slices[f]))
		}
		r = append(r,
			humanize.Comma(int64(row.NumDocs)),
			humanize.Comma(int64(s.NumSegments)),
			humanize.CommafWithDigits(s.NumScoringUnits, 2),
			humanize.Comma(int64(s.NumRatings)),
			fmt.Sprintf("%.1f", s.AvgErrorSpan()),
			hotw(s),
			humanize.Comma(int64(s.Unrateable)),
		)
		if withCI {
			r = append(r, ciCell(row, t.opts.CIs))
		}
		tbl.AppendRow(r)
	}
	return tbl.Render()
}

func unitHeader(unit domain.ScoringUnit) string {
	if unit == domain.ScoringUnitCharacters {
		return "Units (100 chars)"
	}
	return "Units (segments)"
}

func hotw(s domain.AggregateStats) string {
	if s.HotwFound+s.HotwMissed == 0 {
		return missingCell
	}
	return fmt.Sprintf("%d/%d", s.HotwFound, s.HotwFound+s.HotwMissed)
}

func ciCell(row application.ScoreRow, cis map[string]application.CIResult) string {
	if row.Entity.IsTotal() {
		return ""
	}
	ci, ok := cis[row.Entity.Name]
	if !ok || !ci.Applicable {
		return missingCell
	}
	return fmt.Sprintf("[%.3f, %.3f]", ci.Interval.Lower, ci.Interval.Upper)
}

// Matrix renders the system×rater matrix. Out-of-order cells are marked
// with "*" and highlighted when color is on.
func (t *Tables) Matrix(m *application.SystemRaterMatrix) string {
	tbl := newWriter("System × rater")
	header := table.Row{"System", "All raters"}
	for _, r := range m.Raters {
		header = append(header, r)
	}
	tbl.AppendHeader(header)

	for _, row := range m.Rows {
		r := table.Row{row.System, FormatScore(row.AllRaters)}
		for _, cell := range row.Cells {
			r = append(r, t.matrixCell(cell))
		}
		tbl.AppendRow(r)
	}
	return tbl.Render()
}

func (t *Tables) matrixCell(cell application.MatrixCell) string {
	if !cell.Present {
		return missingCell
	}
	s := FormatScore(cell.Score)
	if cell.OutOfOrder {
		return t.highlight.Sprint(s + "*")
	}
	return s
}

// SevCat renders the severity×category counts.
func (t *Tables) SevCat(sc *application.SevCatTable) string {
	tbl := newWriter("Severity × category")
	header := table.Row{"Severity", "Category", "Total"}
	for _, sys := range sc.Systems {
		header = append(header, sys)
	}
	tbl.AppendHeader(header)

	for _, row := range sc.Rows {
		r := table.Row{row.Severity, row.Category, humanize.Comma(int64(row.Total))}
		for _, sys := range sc.Systems {
			r = append(r, humanize.Comma(int64(row.BySystem[sys])))
		}
		tbl.AppendRow(r)
	}
	return tbl.Render()
}

// Events renders summed timing events by name.
func (t *Tables) Events(events map[string]domain.TimingEvent) string {
	tbl := newWriter("Events")
	tbl.AppendHeader(table.Row{"Event", "Count", "Total time", "Avg time"})

	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		ev := events[name]
		avg := 0.0
		if ev.Count > 0 {
			avg = ev.TimeMS / float64(ev.Count)
		}
		tbl.AppendRow(table.Row{name, humanize.Comma(int64(ev.Count)), millis(ev.TimeMS), millis(avg)})
	}
	return tbl.Render()
}

func millis(ms float64) string {
	return humanize.FtoaWithDigits(ms/1000, 1) + "s"
}

// Report renders every table of res, separated by blank lines.
func (t *Tables) Report(res *application.Results) string {
	parts := []string{
		t.Systems(res),
		t.Raters(res),
	}
	if res.Matrix != nil && len(res.Matrix.Rows) > 0 {
		parts = append(parts, t.Matrix(res.Matrix))
	}
	if res.SevCat != nil && len(res.SevCat.Rows) > 0 {
		parts = append(parts, t.SevCat(res.SevCat))
	}
	if len(res.Events) > 0 {
		parts = append(parts, t.Events(res.Events))
	}
	if res.FilterErrors > 0 {
		parts = append(parts, fmt.Sprintf("%s rows failed the filter expression: %v",
			humanize.Comma(int64(res.FilterErrors)), res.FilterError))
	}
	return strings.Join(parts, "\n\n") + "\n"
}

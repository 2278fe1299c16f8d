package httpapi

import (
	"encoding/json"
	"math"

	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/domain"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// HealthResponse reports whether data is loaded.
type HealthResponse struct {
	Status      string `json:"status"`
	Records     int    `json:"records"`
	Systems     int    `json:"systems"`
	Raters      int    `json:"raters"`
	ParseErrors int    `json:"parseErrors"`
}

// SegmentRef names one segment in a viewing constraint.
type SegmentRef struct {
	Doc         string `json:"doc" binding:"required"`
	DocSegID    string `json:"docSegId" binding:"required"`
	GlobalSegID string `json:"globalSegId"`
}

// ConstraintRequest restricts the shown rows to a set of segments.
type ConstraintRequest struct {
	Description string       `json:"description"`
	Segments    []SegmentRef `json:"segments" binding:"dive"`
}

// QueryRequest is the JSON form of application.Query.
type QueryRequest struct {
	Columns    application.ColumnFilters `json:"columns"`
	Expr       string                    `json:"expr,omitempty"`
	Constraint *ConstraintRequest        `json:"constraint,omitempty"`
	Limit      int                       `json:"limit,omitempty" binding:"gte=0"`
}

// Query converts the request.
func (q QueryRequest) Query() application.Query {
	out := application.Query{Columns: q.Columns, Expr: q.Expr, Limit: q.Limit}
	if q.Constraint != nil {
		keys := make([]domain.SegmentKey, len(q.Constraint.Segments))
		for i, s := range q.Constraint.Segments {
			keys[i] = domain.SegmentKey{Doc: s.Doc, DocSegID: s.DocSegID, GlobalSegID: s.GlobalSegID}
		}
		out.Constraint = application.NewViewingConstraint(q.Constraint.Description, "", keys)
	}
	return out
}

// ResultsRequest asks for a recomputation, optionally under new settings.
type ResultsRequest struct {
	Query    QueryRequest          `json:"query"`
	Settings *application.Settings `json:"settings,omitempty"`
	// WaitCI holds the response until the confidence intervals are ready.
	WaitCI bool `json:"waitCI,omitempty"`
}

// HistogramRequest compares two systems over a query.
type HistogramRequest struct {
	Query   QueryRequest `json:"query"`
	System1 string       `json:"system1" binding:"required"`
	System2 string       `json:"system2" binding:"required,nefield=System1"`
}

// RatingRequest is one rating submitted by the annotation application.
type RatingRequest struct {
	System      string          `json:"system" binding:"required"`
	Doc         string          `json:"doc" binding:"required"`
	DocSegID    string          `json:"docSegId" binding:"required"`
	GlobalSegID string          `json:"globalSegId" binding:"required"`
	Rater       string          `json:"rater" binding:"required"`
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Category    string          `json:"category"`
	Severity    string          `json:"severity"`
	Metadata    domain.Metadata `json:"metadata"`
}

// Record converts the request into a rating record.
func (r RatingRequest) Record() domain.Record {
	rec := domain.NewRecord([]string{
		r.System, r.Doc, r.DocSegID, r.GlobalSegID, r.Rater,
		r.Source, r.Target, r.Category, r.Severity,
	})
	rec.Metadata = r.Metadata
	return rec
}

// Score is a float that encodes non-finite values as null.
type Score float64

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func scoreMap(m map[string]float64) map[string]Score {
	out := make(map[string]Score, len(m))
	for k, v := range m {
		out[k] = Score(v)
	}
	return out
}

// ScoreRowView is one row of a scores table.
type ScoreRowView struct {
	Label    string           `json:"label"`
	Total    bool             `json:"total,omitempty"`
	Score    Score            `json:"score"`
	Weighted map[string]Score `json:"weighted"`
	Slices   map[string]Score `json:"slices"`

	NumDocs         int     `json:"numDocs"`
	NumSegments     int     `json:"numSegments"`
	NumSrcChars     int     `json:"numSrcChars"`
	NumScoringUnits float64 `json:"numScoringUnits"`
	NumRatings      int     `json:"numRatings"`
	AvgErrorSpan    float64 `json:"avgErrorSpan"`
	HotwFound       int     `json:"hotwFound"`
	HotwMissed      int     `json:"hotwMissed"`
	Unrateable      int     `json:"unrateable"`
}

func newScoreRowView(row application.ScoreRow) ScoreRowView {
	s := row.Stats
	return ScoreRowView{
		Label:           row.Entity.String(),
		Total:           row.Entity.IsTotal(),
		Score:           Score(s.Score),
		Weighted:        scoreMap(s.Weighted),
		Slices:          scoreMap(s.Slices),
		NumDocs:         row.NumDocs,
		NumSegments:     s.NumSegments,
		NumSrcChars:     s.NumSrcChars,
		NumScoringUnits: s.NumScoringUnits,
		NumRatings:      s.NumRatings,
		AvgErrorSpan:    s.AvgErrorSpan(),
		HotwFound:       s.HotwFound,
		HotwMissed:      s.HotwMissed,
		Unrateable:      s.Unrateable,
	}
}

func newScoreRowViews(rows []application.ScoreRow) []ScoreRowView {
	out := make([]ScoreRowView, len(rows))
	for i, r := range rows {
		out[i] = newScoreRowView(r)
	}
	return out
}

// MatrixCellView is one system×rater cell.
type MatrixCellView struct {
	Score      Score `json:"score"`
	Present    bool  `json:"present"`
	OutOfOrder bool  `json:"outOfOrder"`
}

// MatrixRowView is one system of the matrix.
type MatrixRowView struct {
	System    string           `json:"system"`
	AllRaters Score            `json:"allRaters"`
	Cells     []MatrixCellView `json:"cells"`
}

// MatrixView is the system×rater matrix.
type MatrixView struct {
	Raters []string        `json:"raters"`
	Rows   []MatrixRowView `json:"rows"`
}

func newMatrixView(m *application.SystemRaterMatrix) *MatrixView {
	if m == nil {
		return nil
	}
	view := &MatrixView{Raters: m.Raters, Rows: make([]MatrixRowView, len(m.Rows))}
	for i, row := range m.Rows {
		cells := make([]MatrixCellView, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = MatrixCellView{Score: Score(c.Score), Present: c.Present, OutOfOrder: c.OutOfOrder}
		}
		view.Rows[i] = MatrixRowView{System: row.System, AllRaters: Score(row.AllRaters), Cells: cells}
	}
	return view
}

// CI states reported with results.
const (
	CIStatusPending     = "pending"
	CIStatusDone        = "done"
	CIStatusUnavailable = "unavailable"
)

// ResultsResponse is the JSON rendering of one recomputation.
type ResultsResponse struct {
	CITaskID string `json:"ciTaskId,omitempty"`

	Total   ScoreRowView   `json:"total"`
	Systems []ScoreRowView `json:"systems"`
	Raters  []ScoreRowView `json:"raters"`

	Matrix *MatrixView                   `json:"matrix,omitempty"`
	SevCat *application.SevCatTable      `json:"sevcat,omitempty"`
	Events map[string]domain.TimingEvent `json:"events,omitempty"`

	WeightedFields []string `json:"weightedFields"`
	SliceFields    []string `json:"sliceFields"`

	NumFiltered int                            `json:"numFiltered"`
	Shown       []domain.Record                `json:"shown"`
	Constraint  *application.ViewingConstraint `json:"constraint,omitempty"`

	FilterErrors int    `json:"filterErrors"`
	FilterError  string `json:"filterError,omitempty"`

	ScoringUnit domain.ScoringUnit   `json:"scoringUnit"`
	Sort        application.SortSpec `json:"sort"`

	CIStatus string                          `json:"ciStatus"`
	CI       map[string]application.CIResult `json:"ci,omitempty"`
}

func newResultsResponse(res *application.Results) ResultsResponse {
	out := ResultsResponse{
		Total:          newScoreRowView(res.Total),
		Systems:        newScoreRowViews(res.Systems),
		Raters:         newScoreRowViews(res.Raters),
		Matrix:         newMatrixView(res.Matrix),
		SevCat:         res.SevCat,
		Events:         res.Events,
		WeightedFields: res.WeightedFields,
		SliceFields:    res.SliceFields,
		NumFiltered:    len(res.Filtered),
		Shown:          res.Shown,
		Constraint:     res.Constraint,
		FilterErrors:   res.FilterErrors,
		ScoringUnit:    res.ScoringUnit,
		Sort:           res.Sort,
		CIStatus:       CIStatusPending,
	}
	if out.Shown == nil {
		out.Shown = []domain.Record{}
	}
	if res.FilterError != nil {
		out.FilterError = res.FilterError.Error()
	}
	return out
}

// HistogramResponse describes the per-segment score differences of two
// systems. Bins1 holds segments where System1 did better, Bins2 where
// System2 did.
type HistogramResponse struct {
	System1  string                     `json:"system1"`
	System2  string                     `json:"system2"`
	Segs1    int                        `json:"segs1"`
	Segs2    int                        `json:"segs2"`
	Common   int                        `json:"common"`
	MaxBin   int                        `json:"maxBin"`
	MaxCount int                        `json:"maxCount"`
	Equal    []domain.SegmentKey        `json:"equal"`
	Bins1    []application.HistogramBin `json:"bins1"`
	Bins2    []application.HistogramBin `json:"bins2"`
}

func newHistogramResponse(h *application.Histogram) HistogramResponse {
	equal := h.Equal
	if equal == nil {
		equal = []domain.SegmentKey{}
	}
	return HistogramResponse{
		System1:  h.System1,
		System2:  h.System2,
		Segs1:    h.Segs1,
		Segs2:    h.Segs2,
		Common:   h.Common,
		MaxBin:   h.MaxBin,
		MaxCount: h.MaxCount,
		Equal:    equal,
		Bins1:    h.Bins(0),
		Bins2:    h.Bins(1),
	}
}

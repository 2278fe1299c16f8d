package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-mqm/infrastructure/render"
	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/domain"
)

const tsvContentType = "text/tab-separated-values; charset=utf-8"

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidSettings = "INVALID_SETTINGS"
	CodeInvalidFilter   = "INVALID_FILTER"
	CodeUnknownSystem   = "UNKNOWN_SYSTEM"
	CodeNoData          = "NO_DATA"
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeInternal        = "INTERNAL"
)

// abortWithError maps engine errors onto status codes.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, CodeInternal
	resp := ErrorResponse{Error: err.Error()}

	var sve *domain.SettingsValidationError
	switch {
	case errors.As(err, &sve):
		status, code = http.StatusUnprocessableEntity, CodeInvalidSettings
		resp.Details = sve.Problems
	case errors.Is(err, domain.ErrFilterExpression):
		status, code = http.StatusBadRequest, CodeInvalidFilter
	case errors.Is(err, domain.ErrUnknownSystem):
		status, code = http.StatusBadRequest, CodeUnknownSystem
	case errors.Is(err, application.ErrNoData):
		status, code = http.StatusServiceUnavailable, CodeNoData
	}
	resp.Code = code

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log(c).ErrorContext(c.Request.Context(), "request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  CodeInvalidRequest,
	})
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{
		Error: what + " is not configured",
		Code:  CodeNotConfigured,
	})
}

// bindOptionalJSON binds a JSON body, treating an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, v any) error {
	err := c.ShouldBindJSON(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// HandleHealth handles GET /v1/mqm/health. It answers 503 until data is
// loaded.
func (s *Server) HandleHealth(c *gin.Context) {
	state := s.cfg.Engine.State()
	if state == nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "no_data"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Records:     len(state.Records),
		Systems:     len(state.Systems),
		Raters:      len(state.Raters),
		ParseErrors: len(state.ParseErrors),
	})
}

// HandleResults handles POST /v1/mqm/results. Settings in the body replace
// the active ones first; invalid settings are rejected with 422 and leave
// the active settings in place.
func (s *Server) HandleResults(c *gin.Context) {
	var req ResultsRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	if req.Settings != nil {
		if err := s.cfg.Engine.UpdateSettings(ctx, *req.Settings); err != nil {
			s.abortWithError(c, err)
			return
		}
	}

	res, ci, err := s.cfg.Engine.Recompute(ctx, req.Query.Query())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	resp := newResultsResponse(res)
	if ci != nil {
		resp.CITaskID = ci.ID
		if req.WaitCI {
			cis, err := ci.Wait(ctx)
			switch {
			case err != nil:
				resp.CIStatus = CIStatusUnavailable
			default:
				resp.CIStatus = CIStatusDone
				resp.CI = cis
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHistogram handles POST /v1/mqm/histogram. With ?format=html the
// response is a standalone chart page.
func (s *Server) HandleHistogram(c *gin.Context) {
	var req HistogramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h, err := s.cfg.Engine.Histogram(c.Request.Context(), req.Query.Query(), req.System1, req.System2)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if c.Query("format") == "html" {
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		if err := render.HistogramPage(c.Writer, h); err != nil {
			s.log(c).ErrorContext(c.Request.Context(), "histogram render failed", "error", err)
		}
		return
	}
	c.JSON(http.StatusOK, newHistogramResponse(h))
}

// queryFromParams reads a Query from URL parameters named after the
// columns, plus expr and limit.
func queryFromParams(c *gin.Context) (application.Query, error) {
	var req struct {
		System      string `form:"system"`
		Doc         string `form:"doc"`
		DocSegID    string `form:"docSegId"`
		GlobalSegID string `form:"globalSegId"`
		Rater       string `form:"rater"`
		Category    string `form:"category"`
		Severity    string `form:"severity"`
		Expr        string `form:"expr"`
		Limit       int    `form:"limit" binding:"gte=0"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		return application.Query{}, err
	}
	return application.Query{
		Columns: application.ColumnFilters{
			System:      req.System,
			Doc:         req.Doc,
			DocSegID:    req.DocSegID,
			GlobalSegID: req.GlobalSegID,
			Rater:       req.Rater,
			Category:    req.Category,
			Severity:    req.Severity,
		},
		Expr:  req.Expr,
		Limit: req.Limit,
	}, nil
}

// HandleExportFiltered handles GET /v1/mqm/export/filtered: the records
// matching the query, in the wire format.
func (s *Server) HandleExportFiltered(c *gin.Context) {
	q, err := queryFromParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.cfg.Engine.Evaluate(c.Request.Context(), q)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Content-Type", tsvContentType)
	c.Header("Content-Disposition", `attachment; filename="mqm-filtered.tsv"`)
	c.Status(http.StatusOK)
	if err := application.WriteRecordsTSV(c.Writer, res.Filtered); err != nil {
		s.log(c).ErrorContext(c.Request.Context(), "export failed", "error", err)
	}
}

// HandleExportScores handles GET /v1/mqm/export/scores?granularity=.
func (s *Server) HandleExportScores(c *gin.Context) {
	g, err := application.ParseGranularity(c.DefaultQuery("granularity", string(application.GranularitySystem)))
	if err != nil {
		badRequest(c, err)
		return
	}
	q, err := queryFromParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rows, err := s.cfg.Engine.ExportScores(c.Request.Context(), q, g)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Content-Type", tsvContentType)
	c.Header("Content-Disposition", `attachment; filename="mqm-scores-`+string(g)+`.tsv"`)
	c.Status(http.StatusOK)
	if err := application.WriteScoresTSV(c.Writer, rows); err != nil {
		s.log(c).ErrorContext(c.Request.Context(), "export failed", "error", err)
	}
}

// HandleGetSettings handles GET /v1/mqm/settings.
func (s *Server) HandleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Engine.Settings().Settings)
}

// HandlePutSettings handles PUT /v1/mqm/settings.
func (s *Server) HandlePutSettings(c *gin.Context) {
	var settings application.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.cfg.Engine.UpdateSettings(c.Request.Context(), settings); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.cfg.Engine.Settings().Settings)
}

// HandleSubmitRating handles POST /v1/mqm/ratings. Accepted ratings are
// persisted by the sink and show up after the next reload.
func (s *Server) HandleSubmitRating(c *gin.Context) {
	if s.cfg.Sink == nil {
		notConfigured(c, "rating sink")
		return
	}
	var req RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec := req.Record()
	if err := rec.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.cfg.Sink.Submit(c.Request.Context(), rec); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.log(c).InfoContext(c.Request.Context(), "rating submitted",
		"system", rec.System, "doc", rec.Doc, "doc_seg_id", rec.DocSegID, "rater", rec.Rater)
	c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
}

// reloadResponse summarizes a reload.
type reloadResponse struct {
	Loaded       []string `json:"loaded"`
	Records      int      `json:"records"`
	RowErrors    int      `json:"rowErrors"`
	SourceErrors []string `json:"sourceErrors,omitempty"`
}

// HandleReload handles POST /v1/mqm/reload.
func (s *Server) HandleReload(c *gin.Context) {
	if s.cfg.Reload == nil {
		notConfigured(c, "reload")
		return
	}
	res, err := s.cfg.Reload(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	resp := reloadResponse{Loaded: res.Loaded, Records: len(res.Records), RowErrors: len(res.RowErrors)}
	for _, e := range res.SourceErrors {
		resp.SourceErrors = append(resp.SourceErrors, e.Error())
	}
	c.JSON(http.StatusOK, resp)
}

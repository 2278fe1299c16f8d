package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/infrastructure/expreval"
	"github.com/ahrav/go-mqm/infrastructure/middleware"
	"github.com/ahrav/go-mqm/infrastructure/tsv"
	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ratings builds a small data set: six documents of two segments each,
// rated by one rater for two systems. sysA makes one minor error per
// segment, sysB one major error.
func ratings() []domain.Record {
	var out []domain.Record
	global := 0
	for doc := 1; doc <= 6; doc++ {
		for seg := 1; seg <= 2; seg++ {
			global++
			for _, sys := range []struct{ name, severity string }{{"sysA", "Minor"}, {"sysB", "Major"}} {
				out = append(out, domain.NewRecord([]string{
					sys.name, fmt.Sprintf("doc%d", doc), fmt.Sprint(seg), fmt.Sprint(global), "r1",
					"Hello world", "Hallo <v>Welt</v>", "Fluency/Grammar", sys.severity,
				}))
			}
		}
	}
	return out
}

type testServer struct {
	server *Server
	engine *application.Engine
	sink   *tsv.FileSink
	reg    *prometheus.Registry
}

func newTestServer(t *testing.T, loaded bool) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewPrometheusMetrics(reg)
	require.NoError(t, err)
	engine := application.NewEngine(expreval.New(),
		application.WithParser(tsv.NewParser(nil)),
		application.WithMetrics(metrics),
		application.WithBootstrapConfig(application.BootstrapConfig{
			Samples: 100, BatchSize: 50, MinDocs: 2, Seed: 7,
		}),
	)
	t.Cleanup(engine.Close)
	if loaded {
		require.NoError(t, engine.SetRecords(context.Background(), ratings(), nil))
	}

	sink := tsv.NewFileSink(filepath.Join(t.TempDir(), "submitted.tsv"))
	reload := func(ctx context.Context) (*application.LoadResult, error) {
		return &application.LoadResult{Loaded: []string{"mem"}, Records: ratings()}, nil
	}
	srv := NewServer(Config{Engine: engine, Sink: sink, Gatherer: reg, Reload: reload})
	return &testServer{server: srv, engine: engine, sink: sink, reg: reg}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	empty := newTestServer(t, false)
	w := empty.do(t, http.MethodGet, "/v1/mqm/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no_data", decodeBody[HealthResponse](t, w).Status)

	loaded := newTestServer(t, true)
	w = loaded.do(t, http.MethodGet, "/v1/mqm/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decodeBody[HealthResponse](t, w)
	assert.Equal(t, HealthResponse{Status: "ok", Records: 24, Systems: 2, Raters: 1}, health)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestHandleResults(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/v1/mqm/results", ResultsRequest{WaitCI: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decodeBody[ResultsResponse](t, w)
	assert.Equal(t, "Total", res.Total.Label)
	require.Len(t, res.Systems, 2)
	assert.Equal(t, "sysA", res.Systems[0].Label, "lower scores sort first")
	assert.InDelta(t, 1.0, float64(res.Systems[0].Score), 1e-9)
	assert.InDelta(t, 5.0, float64(res.Systems[1].Score), 1e-9)
	assert.Equal(t, 24, res.NumFiltered)
	assert.Len(t, res.Shown, 24)
	assert.Equal(t, CIStatusDone, res.CIStatus)
	assert.NotEmpty(t, res.CITaskID)
	require.Contains(t, res.CI, "sysA")
	assert.True(t, res.CI["sysA"].Applicable)
}

func TestHandleResults_Filtered(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/v1/mqm/results", ResultsRequest{
		Query: QueryRequest{
			Columns: application.ColumnFilters{System: "^sysB$"},
			Expr:    `doc == "doc1"`,
			Constraint: &ConstraintRequest{
				Description: "first segment",
				Segments:    []SegmentRef{{Doc: "doc1", DocSegID: "1", GlobalSegID: "1"}},
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decodeBody[ResultsResponse](t, w)
	assert.Equal(t, 2, res.NumFiltered)
	assert.Len(t, res.Shown, 1, "the constraint limits the shown rows only")
	require.NotNil(t, res.Constraint)
	assert.Equal(t, "first segment", res.Constraint.Description)
	assert.Equal(t, CIStatusPending, res.CIStatus)
}

func TestHandleResults_EmptySelectionEncodesNullScore(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/v1/mqm/results", ResultsRequest{
		Query: QueryRequest{Columns: application.ColumnFilters{System: "^nobody$"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"score":null`)
}

func TestHandleResults_Errors(t *testing.T) {
	tests := []struct {
		name     string
		loaded   bool
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "no data", loaded: false, body: `{}`, wantCode: http.StatusServiceUnavailable, wantErr: CodeNoData},
		{name: "bad column pattern", loaded: true, body: `{"query":{"columns":{"system":"("}}}`,
			wantCode: http.StatusBadRequest, wantErr: CodeInvalidFilter},
		{name: "invalid settings", loaded: true, body: `{"settings":{"scoring_unit":"words"}}`,
			wantCode: http.StatusUnprocessableEntity, wantErr: CodeInvalidSettings},
		{name: "malformed json", loaded: true, body: `{"query":`,
			wantCode: http.StatusBadRequest, wantErr: CodeInvalidRequest},
		{name: "negative limit", loaded: true, body: `{"query":{"limit":-1}}`,
			wantCode: http.StatusBadRequest, wantErr: CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.loaded)
			req := httptest.NewRequest(http.MethodPost, "/v1/mqm/results", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			ts.server.Router().ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandleResults_InvalidSettingsKeepActive(t *testing.T) {
	ts := newTestServer(t, true)
	before := ts.engine.Settings()

	w := ts.do(t, http.MethodPost, "/v1/mqm/results", map[string]any{
		"settings": map[string]any{"weights": []map[string]any{{"name": "", "pattern": "(", "weight": -1}}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, decodeBody[ErrorResponse](t, w).Details)
	assert.Same(t, before, ts.engine.Settings())
}

func TestHandleHistogram(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/v1/mqm/histogram", HistogramRequest{System1: "sysA", System2: "sysB"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	h := decodeBody[HistogramResponse](t, w)
	assert.Equal(t, 12, h.Common)
	require.Len(t, h.Bins1, 1)
	assert.Len(t, h.Bins1[0].Keys, 12, "sysA is better by 4 on every segment")
	assert.Equal(t, 8, h.Bins1[0].Index)
	assert.Empty(t, h.Bins2)

	w = ts.do(t, http.MethodPost, "/v1/mqm/histogram?format=html", HistogramRequest{System1: "sysA", System2: "sysB"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "sysA vs sysB")

	w = ts.do(t, http.MethodPost, "/v1/mqm/histogram", HistogramRequest{System1: "sysA", System2: "sysZ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeUnknownSystem, decodeBody[ErrorResponse](t, w).Code)

	w = ts.do(t, http.MethodPost, "/v1/mqm/histogram", HistogramRequest{System1: "sysA", System2: "sysA"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExportFiltered(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/v1/mqm/export/filtered?system=sysA&doc=doc2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, tsvContentType, w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSuffix(w.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		fields := strings.Split(l, "\t")
		assert.Equal(t, "sysA", fields[domain.ColSystem])
		assert.Equal(t, "doc2", fields[domain.ColDoc])
	}
}

func TestHandleExportScores(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/v1/mqm/export/scores", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sysA\t1\nsysB\t5\n", w.Body.String())

	w = ts.do(t, http.MethodGet, "/v1/mqm/export/scores?granularity=document&system=sysB", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 6)

	w = ts.do(t, http.MethodGet, "/v1/mqm/export/scores?granularity=word", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSettings(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/v1/mqm/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[application.Settings](t, w)
	assert.Equal(t, domain.ScoringUnitSegments, got.ScoringUnit)
	assert.Len(t, got.Weights, len(application.DefaultWeights()))

	w = ts.do(t, http.MethodPut, "/v1/mqm/settings", application.Settings{ScoringUnit: domain.ScoringUnitCharacters})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.ScoringUnitCharacters, ts.engine.Settings().Settings.ScoringUnit)
	assert.Len(t, ts.engine.Settings().Settings.Weights, len(application.DefaultWeights()), "omitted fields take defaults")
}

func TestHandleSubmitRating(t *testing.T) {
	ts := newTestServer(t, true)

	rating := RatingRequest{
		System: "sysC", Doc: "doc9", DocSegID: "1", GlobalSegID: "99", Rater: "r2",
		Source: "Hi", Target: "Hallo", Category: "Accuracy/Omission", Severity: "Major",
	}
	w := ts.do(t, http.MethodPost, "/v1/mqm/ratings", rating)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data, err := os.ReadFile(ts.sink.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "sysC\tdoc9\t1\t99\tr2\tHi\tHallo\tAccuracy/Omission\tMajor")

	health := decodeBody[HealthResponse](t, ts.do(t, http.MethodGet, "/v1/mqm/health", nil))
	assert.Equal(t, 24, health.Records, "submissions only show up after a reload")

	rating.Target = "two\tcolumns"
	w = ts.do(t, http.MethodPost, "/v1/mqm/ratings", rating)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/mqm/ratings", RatingRequest{System: "sysC"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSubmitRating_NoSink(t *testing.T) {
	ts := newTestServer(t, true)
	srv := NewServer(Config{Engine: ts.engine})

	req := httptest.NewRequest(http.MethodPost, "/v1/mqm/ratings", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "no gatherer, no metrics route")
}

func TestHandleReload(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/v1/mqm/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[reloadResponse](t, w)
	assert.Equal(t, []string{"mem"}, resp.Loaded)
	assert.Equal(t, 24, resp.Records)

	failing := NewServer(Config{Engine: ts.engine, Reload: func(context.Context) (*application.LoadResult, error) {
		return nil, errors.New("all sources failed")
	}})
	req := httptest.NewRequest(http.MethodPost, "/v1/mqm/reload", nil)
	w = httptest.NewRecorder()
	failing.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true)
	_ = ts.do(t, http.MethodPost, "/v1/mqm/results", ResultsRequest{})

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mqm_operation_duration_seconds")
	assert.Contains(t, w.Body.String(), "mqm_state")
}

func TestScore_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Score{"a": 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5}`, string(b))
}

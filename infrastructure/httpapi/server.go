// Package httpapi exposes the scoring engine over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/ports"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
	// DefaultServiceName names the server in traces.
	DefaultServiceName = "mqm-server"
)

// Engine is the part of application.Engine the handlers use.
type Engine interface {
	State() *application.State
	Settings() *application.CompiledSettings
	UpdateSettings(ctx context.Context, s application.Settings) error
	Recompute(ctx context.Context, q application.Query) (*application.Results, *application.CIHandle, error)
	Evaluate(ctx context.Context, q application.Query) (*application.Results, error)
	Histogram(ctx context.Context, q application.Query, sys1, sys2 string) (*application.Histogram, error)
	ExportScores(ctx context.Context, q application.Query, g application.Granularity) ([]application.ScoreExportRow, error)
}

// ReloadFunc reloads the engine's data from its configured sources.
type ReloadFunc func(ctx context.Context) (*application.LoadResult, error)

// Config wires a Server.
type Config struct {
	Engine Engine
	// Sink receives submitted ratings; nil disables the ratings endpoint.
	Sink ports.RatingSink
	// Gatherer backs /metrics; nil disables it.
	Gatherer prometheus.Gatherer
	// Reload backs POST /v1/mqm/reload; nil disables it.
	Reload      ReloadFunc
	Logger      *slog.Logger
	ServiceName string
}

// Server serves the MQM HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), s.requestLogger())
	v1 := router.Group("/v1")
	RegisterRoutes(v1, s)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	s.router = router
	return s
}

// RegisterRoutes mounts the MQM endpoints under rg.
func RegisterRoutes(rg *gin.RouterGroup, s *Server) {
	mqm := rg.Group("/mqm")
	{
		mqm.GET("/health", s.HandleHealth)

		mqm.POST("/results", s.HandleResults)
		mqm.POST("/histogram", s.HandleHistogram)

		mqm.GET("/export/filtered", s.HandleExportFiltered)
		mqm.GET("/export/scores", s.HandleExportScores)

		mqm.GET("/settings", s.HandleGetSettings)
		mqm.PUT("/settings", s.HandlePutSettings)

		mqm.POST("/ratings", s.HandleSubmitRating)
		mqm.POST("/reload", s.HandleReload)
	}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.InfoContext(ctx, "http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// requestLogger tags each request with an ID and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) log(c *gin.Context) *slog.Logger {
	return s.logger.With("request_id", c.GetString("request_id"))
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/infrastructure/expreval"
	"github.com/ahrav/go-mqm/infrastructure/middleware"
	"github.com/ahrav/go-mqm/infrastructure/sources"
	"github.com/ahrav/go-mqm/infrastructure/tsv"
	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/observability"
	"github.com/ahrav/go-mqm/internal/ports"
)

const (
	cliServiceName = "mqm"
	stdinLocation  = "-"
)

// Color modes for --color.
const (
	colorAuto   = "auto"
	colorAlways = "always"
	colorNever  = "never"
)

var errInvalidColor = errors.New("--color must be auto, always or never")

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath   string
	settingsPath string
	logLevel     string
	logFormat    string
	color        string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "YAML config file (MQM_* environment variables override it)")
	f.StringVarP(&o.settingsPath, "settings", "s", "", "YAML scoring settings file")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "log format: text or json")
	f.StringVar(&o.color, "color", colorAuto, "colorize tables: auto, always or never")
}

// useColor resolves --color against the output stream.
func (o *globalOptions) useColor(w io.Writer) (bool, error) {
	switch o.color {
	case colorAlways:
		return true, nil
	case colorNever:
		return false, nil
	case colorAuto, "":
		f, ok := w.(*os.File)
		if !ok {
			return false, nil
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()), nil
	default:
		return false, errInvalidColor
	}
}

// app holds what a subcommand needs to load and aggregate ratings.
type app struct {
	cfg      *application.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  ports.MetricsCollector
	engine   *application.Engine
	resolver *sources.Resolver
	shutdown observability.ShutdownFunc
}

// newApp loads configuration and wires the engine. Callers must Close it.
func newApp(ctx context.Context, opts *globalOptions, service string, stderr io.Writer) (*app, error) {
	cfg, err := application.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.settingsPath != "" {
		cfg.SettingsFile = opts.settingsPath
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, service, stderr)
	if err != nil {
		return nil, err
	}
	shutdown, err := observability.InitTracing(cfg.Trace.Exporter, service, stderr)
	if err != nil {
		return nil, err
	}

	settings := application.MustCompileDefaults()
	if cfg.SettingsFile != "" {
		settings, err = application.NewSettingsLoader().LoadFromFile(ctx, cfg.SettingsFile)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("load settings %s: %w", cfg.SettingsFile, err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewPrometheusMetrics(registry)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	engine := application.NewEngine(expreval.New(),
		application.WithParser(tsv.NewParser(logger)),
		application.WithMetrics(metrics),
		application.WithLogger(logger),
		application.WithBootstrapConfig(cfg.Bootstrap.BootstrapConfig()),
		application.WithSourceConcurrency(cfg.Sources.Concurrency),
		application.WithSettings(settings),
	)
	resolver := sources.NewResolver(sources.ResolverConfig{
		HTTPRatePerSecond: cfg.Sources.HTTPRatePerSecond,
		Timeout:           cfg.Sources.HTTPTimeout,
		MaxRetries:        sources.DefaultMaxRetries,
		Metrics:           metrics,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		engine:   engine,
		resolver: resolver,
		shutdown: shutdown,
	}, nil
}

// load resolves locations and replaces the engine's data. Sources that
// fail are logged and skipped as long as one succeeds.
func (a *app) load(ctx context.Context, stdin io.Reader, locations []string) (*application.LoadResult, error) {
	srcs := make([]ports.Source, 0, len(locations))
	for _, loc := range locations {
		if loc == stdinLocation {
			srcs = append(srcs, sources.NewReaderSource("stdin", stdin))
			continue
		}
		resolved, err := a.resolver.Resolve(ctx, loc)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, resolved...)
	}

	res, err := a.engine.Load(ctx, srcs...)
	if err != nil {
		return nil, err
	}
	for _, srcErr := range res.SourceErrors {
		a.logger.WarnContext(ctx, "source skipped", "error", srcErr)
	}
	if len(res.RowErrors) > 0 {
		a.logger.WarnContext(ctx, "malformed rows skipped", "count", len(res.RowErrors))
	}
	return res, nil
}

// Close stops background work and flushes traces.
func (a *app) Close(ctx context.Context) error {
	a.engine.Close()
	return errors.Join(a.resolver.Close(), a.shutdown(context.WithoutCancel(ctx)))
}

// locationsOrStdin defaults to reading stdin when no source is given.
func locationsOrStdin(args []string) []string {
	if len(args) == 0 {
		return []string{stdinLocation}
	}
	return args
}

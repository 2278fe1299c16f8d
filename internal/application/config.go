package application

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ahrav/go-mqm/internal/ports"
)

// envPrefix is the environment variable prefix for engine settings.
const envPrefix = "MQM"

// Application defaults.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultServerAddr        = ":8080"
	DefaultSourceConcurrency = 4
	DefaultHTTPRatePerSecond = 5.0
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultTraceExporter     = "none"
	DefaultWatchDebounce     = 500 * time.Millisecond
)

// Config is the process-level configuration. Scoring settings live in a
// separate file referenced by SettingsFile.
type Config struct {
	Log          LogConfig       `mapstructure:"log"`
	Trace        TraceConfig     `mapstructure:"trace"`
	Server       ServerConfig    `mapstructure:"server"`
	Sources      SourcesConfig   `mapstructure:"sources"`
	Bootstrap    BootstrapValues `mapstructure:"bootstrap"`
	SettingsFile string          `mapstructure:"settings_file"`
	RatingsFile  string          `mapstructure:"ratings_file"`
}

// TraceConfig selects the span exporter: none or stdout.
type TraceConfig struct {
	Exporter string `mapstructure:"exporter"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Watch reloads file sources when they change on disk.
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// SourcesConfig bounds ingestion fan-out and remote fetches.
type SourcesConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	HTTPRatePerSecond float64       `mapstructure:"http_rate_per_second"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

// BootstrapValues mirrors BootstrapConfig in configuration form.
type BootstrapValues struct {
	Samples    int           `mapstructure:"samples"`
	BatchSize  int           `mapstructure:"batch_size"`
	MinDocs    int           `mapstructure:"min_docs"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	Seed       uint64        `mapstructure:"seed"`
}

// BootstrapConfig converts the values into estimator settings.
func (b BootstrapValues) BootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Samples:    b.Samples,
		BatchSize:  b.BatchSize,
		MinDocs:    b.MinDocs,
		BatchDelay: b.BatchDelay,
		Seed:       b.Seed,
	}
}

// Sentinel errors for configuration validation.
var (
	ErrInvalidLogLevel          = errors.New("log.level must be one of debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("log.format must be text or json")
	ErrInvalidTraceExporter     = errors.New("trace.exporter must be none or stdout")
	ErrInvalidWatchDebounce     = errors.New("server.watch_debounce must be non-negative")
	ErrInvalidSourceConcurrency = errors.New("sources.concurrency must be positive")
	ErrInvalidHTTPRate          = errors.New("sources.http_rate_per_second must be positive")
	ErrInvalidHTTPTimeout       = errors.New("sources.http_timeout must be positive")
	ErrInvalidBootstrapSamples  = errors.New("bootstrap.samples must be positive")
	ErrInvalidBootstrapBatch    = errors.New("bootstrap.batch_size must be between 1 and bootstrap.samples")
	ErrInvalidBootstrapMinDocs  = errors.New("bootstrap.min_docs must be positive")
	ErrInvalidBootstrapDelay    = errors.New("bootstrap.batch_delay must be non-negative")
)

// LoadConfig reads defaults, an optional YAML file at path and MQM_*
// environment overrides, in increasing precedence. An empty path skips the
// file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", ports.NewConfigError(path, ports.ErrConfigNotFound))
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("trace.exporter", DefaultTraceExporter)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.watch", false)
	v.SetDefault("server.watch_debounce", DefaultWatchDebounce)

	v.SetDefault("sources.concurrency", DefaultSourceConcurrency)
	v.SetDefault("sources.http_rate_per_second", DefaultHTTPRatePerSecond)
	v.SetDefault("sources.http_timeout", DefaultHTTPTimeout)

	v.SetDefault("bootstrap.samples", DefaultBootstrapSamples)
	v.SetDefault("bootstrap.batch_size", DefaultBootstrapBatchSize)
	v.SetDefault("bootstrap.min_docs", DefaultBootstrapMinDocs)
	v.SetDefault("bootstrap.batch_delay", DefaultBootstrapBatchDelay)
	v.SetDefault("bootstrap.seed", 0)

	v.SetDefault("settings_file", "")
	v.SetDefault("ratings_file", "")
}

// Validate checks Config invariants and returns the first violation as a
// *ports.ConfigError naming the offending key.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ports.NewConfigError("log.level", ErrInvalidLogLevel)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return ports.NewConfigError("log.format", ErrInvalidLogFormat)
	}
	switch c.Trace.Exporter {
	case "none", "stdout":
	default:
		return ports.NewConfigError("trace.exporter", ErrInvalidTraceExporter)
	}
	if c.Server.WatchDebounce < 0 {
		return ports.NewConfigError("server.watch_debounce", ErrInvalidWatchDebounce)
	}

	if c.Sources.Concurrency <= 0 {
		return ports.NewConfigError("sources.concurrency", ErrInvalidSourceConcurrency)
	}
	if c.Sources.HTTPRatePerSecond <= 0 {
		return ports.NewConfigError("sources.http_rate_per_second", ErrInvalidHTTPRate)
	}
	if c.Sources.HTTPTimeout <= 0 {
		return ports.NewConfigError("sources.http_timeout", ErrInvalidHTTPTimeout)
	}

	return c.validateBootstrap()
}

func (c *Config) validateBootstrap() error {
	b := c.Bootstrap
	if b.Samples <= 0 {
		return ports.NewConfigError("bootstrap.samples", ErrInvalidBootstrapSamples)
	}
	if b.BatchSize <= 0 || b.BatchSize > b.Samples {
		return ports.NewConfigError("bootstrap.batch_size", ErrInvalidBootstrapBatch)
	}
	if b.MinDocs <= 0 {
		return ports.NewConfigError("bootstrap.min_docs", ErrInvalidBootstrapMinDocs)
	}
	if b.BatchDelay < 0 {
		return ports.NewConfigError("bootstrap.batch_delay", ErrInvalidBootstrapDelay)
	}
	return nil
}

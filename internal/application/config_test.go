package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/ports"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mqm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, DefaultTraceExporter, cfg.Trace.Exporter)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.False(t, cfg.Server.Watch)
	assert.Equal(t, DefaultWatchDebounce, cfg.Server.WatchDebounce)
	assert.Equal(t, DefaultSourceConcurrency, cfg.Sources.Concurrency)
	assert.Equal(t, DefaultHTTPTimeout, cfg.Sources.HTTPTimeout)
	assert.Equal(t, DefaultBootstrapSamples, cfg.Bootstrap.Samples)
	assert.Equal(t, DefaultBootstrapBatchSize, cfg.Bootstrap.BatchSize)
	assert.Equal(t, DefaultBootstrapMinDocs, cfg.Bootstrap.MinDocs)
	assert.Equal(t, DefaultBootstrapBatchDelay, cfg.Bootstrap.BatchDelay)
	assert.Empty(t, cfg.SettingsFile)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
trace:
  exporter: stdout
server:
  addr: ":9090"
  watch: true
sources:
  concurrency: 8
  http_timeout: 5s
bootstrap:
  samples: 400
  batch_size: 100
  batch_delay: 50ms
  seed: 17
settings_file: settings.yaml
`)
	t.Setenv("MQM_SERVER_ADDR", ":7070")
	t.Setenv("MQM_RATINGS_FILE", "/tmp/ratings.tsv")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":7070", cfg.Server.Addr, "environment overrides the file")
	assert.True(t, cfg.Server.Watch)
	assert.Equal(t, "stdout", cfg.Trace.Exporter)
	assert.Equal(t, 8, cfg.Sources.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Sources.HTTPTimeout)
	assert.Equal(t, "settings.yaml", cfg.SettingsFile)
	assert.Equal(t, "/tmp/ratings.tsv", cfg.RatingsFile)

	bc := cfg.Bootstrap.BootstrapConfig()
	assert.Equal(t, BootstrapConfig{Samples: 400, BatchSize: 100, MinDocs: DefaultBootstrapMinDocs,
		BatchDelay: 50 * time.Millisecond, Seed: 17}, bc)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		wantKey string
	}{
		{name: "log level", content: "log:\n  level: loud\n", wantErr: ErrInvalidLogLevel, wantKey: "log.level"},
		{name: "log format", content: "log:\n  format: xml\n", wantErr: ErrInvalidLogFormat, wantKey: "log.format"},
		{name: "trace exporter", content: "trace:\n  exporter: zipkin\n", wantErr: ErrInvalidTraceExporter, wantKey: "trace.exporter"},
		{name: "watch debounce", content: "server:\n  watch_debounce: -1s\n", wantErr: ErrInvalidWatchDebounce, wantKey: "server.watch_debounce"},
		{name: "concurrency", content: "sources:\n  concurrency: 0\n", wantErr: ErrInvalidSourceConcurrency, wantKey: "sources.concurrency"},
		{name: "http rate", content: "sources:\n  http_rate_per_second: -1\n", wantErr: ErrInvalidHTTPRate, wantKey: "sources.http_rate_per_second"},
		{name: "http timeout", content: "sources:\n  http_timeout: 0s\n", wantErr: ErrInvalidHTTPTimeout, wantKey: "sources.http_timeout"},
		{name: "samples", content: "bootstrap:\n  samples: 0\n", wantErr: ErrInvalidBootstrapSamples, wantKey: "bootstrap.samples"},
		{name: "batch larger than samples", content: "bootstrap:\n  samples: 10\n  batch_size: 20\n", wantErr: ErrInvalidBootstrapBatch, wantKey: "bootstrap.batch_size"},
		{name: "min docs", content: "bootstrap:\n  min_docs: -3\n", wantErr: ErrInvalidBootstrapMinDocs, wantKey: "bootstrap.min_docs"},
		{name: "negative delay", content: "bootstrap:\n  batch_delay: -1s\n", wantErr: ErrInvalidBootstrapDelay, wantKey: "bootstrap.batch_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)

			var cfgErr *ports.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.ConfigKey)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)

	var cfgErr *ports.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.ConfigKey)
}

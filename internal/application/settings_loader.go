package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// SettingsLoader parses, validates and compiles scoring settings from YAML.
// Compiled settings are cached by the SHA256 hash of their normalized form,
// so reloading an unchanged file does not recompile its rules.
type SettingsLoader struct {
	// cache stores compiled settings indexed by the hash of their
	// normalized YAML. Cached values are immutable.
	cache   map[string]*CompiledSettings
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation when several goroutines load the
	// same settings simultaneously.
	sf singleflight.Group
}

// NewSettingsLoader creates a loader with an empty cache.
func NewSettingsLoader() *SettingsLoader {
	return &SettingsLoader{cache: make(map[string]*CompiledSettings)}
}

// LoadFromFile loads settings from a YAML file.
func (sl *SettingsLoader) LoadFromFile(ctx context.Context, path string) (*CompiledSettings, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return sl.load(ctx, data)
}

// LoadFromReader loads settings from r.
func (sl *SettingsLoader) LoadFromReader(ctx context.Context, r io.Reader) (*CompiledSettings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return sl.load(ctx, data)
}

// Compile validates and compiles settings that were decoded elsewhere, for
// example from a JSON request body, sharing the same cache.
func (sl *SettingsLoader) Compile(ctx context.Context, s Settings) (*CompiledSettings, error) {
	return sl.compile(ctx, &s)
}

func (sl *SettingsLoader) load(ctx context.Context, data []byte) (*CompiledSettings, error) {
	s, err := parseSettingsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return sl.compile(ctx, s)
}

func (sl *SettingsLoader) compile(ctx context.Context, s *Settings) (*CompiledSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized := s.WithDefaults()
	hash, err := settingsHash(&normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		if cs, ok := sl.cached(hash); ok {
			return cs, nil
		}
		cs, err := normalized.Compile()
		if err != nil {
			return nil, err
		}
		sl.cacheMu.Lock()
		sl.cache[hash] = cs
		sl.cacheMu.Unlock()
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompiledSettings), nil
}

func (sl *SettingsLoader) cached(hash string) (*CompiledSettings, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()
	cs, ok := sl.cache[hash]
	return cs, ok
}

// parseSettingsYAML decodes strictly so that misspelled keys are reported
// instead of silently ignored. An empty document yields zero Settings.
func parseSettingsYAML(data []byte) (*Settings, error) {
	var s Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &s, nil
}

// settingsHash computes the SHA256 of the settings re-encoded with
// consistent formatting.
func settingsHash(s *Settings) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(s); err != nil {
		return "", fmt.Errorf("failed to encode settings for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// MarshalSettingsYAML renders settings as YAML, used to print the defaults.
func MarshalSettingsYAML(s Settings) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(s); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

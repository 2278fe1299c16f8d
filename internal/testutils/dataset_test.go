package testutils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/domain"
)

func TestGenerateSampleDataset_Deterministic(t *testing.T) {
	cfg := GeneratorConfig{Docs: 6, SegmentsPerDoc: 4, HOTWRate: 0.1, Seed: 42}

	first := GenerateSampleDataset(cfg)
	second := GenerateSampleDataset(cfg)
	other := GenerateSampleDataset(GeneratorConfig{Docs: 6, SegmentsPerDoc: 4, HOTWRate: 0.1, Seed: 43})

	assert.Equal(t, first.Records, second.Records)
	assert.NotEqual(t, first.Records, other.Records)
	assert.Equal(t, len(first.Records), first.Metadata.Records)
}

func TestGenerateSampleDataset_Coverage(t *testing.T) {
	// Given a default-sized campaign
	dataset := GenerateSampleDataset(GeneratorConfig{Seed: 1})

	// When statistics are computed
	stats := ComputeDatasetStatistics(dataset)

	// Then every system rates every document and segment
	require.Len(t, stats.DocsPerSystem, len(DefaultSystems))
	for sys, docs := range stats.DocsPerSystem {
		assert.Equal(t, DefaultDocs, docs, sys)
	}
	assert.Equal(t, DefaultDocs*DefaultSegmentsPerDoc, stats.Segments)
	assert.Len(t, stats.RecordsPerRater, len(DefaultRaters))
	assert.Positive(t, stats.NoErrorRecords)
	assert.Zero(t, stats.SeverityCount[HOTWSeverity], "HOTW checks are off by default")

	for _, r := range dataset.Records {
		require.NoError(t, r.Validate())
		if !domain.IsNoError(r.Category) {
			assert.True(t, strings.Contains(r.Source, domain.SpanOpen) || strings.Contains(r.Target, domain.SpanOpen),
				"errors mark a span: %s", r.TSV())
		}
	}
}

func TestGenerateSampleDataset_LaterSystemsMakeFewerErrors(t *testing.T) {
	dataset := GenerateSampleDataset(GeneratorConfig{Docs: 40, Seed: 7})

	errors := make(map[string]int)
	for _, r := range dataset.Records {
		if !domain.IsNoError(r.Category) {
			errors[r.System]++
		}
	}
	first, last := DefaultSystems[0], DefaultSystems[len(DefaultSystems)-1]
	assert.Greater(t, errors[first], errors[last])
}

func TestValidateDataset(t *testing.T) {
	valid := func() *Dataset { return GenerateSampleDataset(GeneratorConfig{Docs: 5, SegmentsPerDoc: 2, Seed: 3}) }

	tests := []struct {
		name    string
		mutate  func(*Dataset) *Dataset
		wantErr string
	}{
		{
			name:   "generated dataset",
			mutate: func(d *Dataset) *Dataset { return d },
		},
		{
			name:    "nil dataset",
			mutate:  func(*Dataset) *Dataset { return nil },
			wantErr: "dataset is nil",
		},
		{
			name: "missing name",
			mutate: func(d *Dataset) *Dataset {
				d.Metadata.Name = ""
				return d
			},
			wantErr: "dataset name is required",
		},
		{
			name: "count mismatch",
			mutate: func(d *Dataset) *Dataset {
				d.Metadata.Records++
				return d
			},
			wantErr: "doesn't match actual record count",
		},
		{
			name: "tab in text",
			mutate: func(d *Dataset) *Dataset {
				d.Records[0].Target = "a\tb"
				return d
			},
			wantErr: "record 0",
		},
		{
			name: "too few documents",
			mutate: func(d *Dataset) *Dataset {
				return GenerateSampleDataset(GeneratorConfig{Docs: MinimumDocsPerSystem - 1, Seed: 3})
			},
			wantErr: "need at least 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDataset(tt.mutate(valid()))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoadDataset(t *testing.T) {
	dataset := GenerateSampleDataset(GeneratorConfig{Docs: 5, SegmentsPerDoc: 3, HOTWRate: 0.2, Seed: 11})
	path := filepath.Join(t.TempDir(), "nested", "ratings.tsv")

	require.NoError(t, SaveDataset(dataset, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "system\tdoc\t"))
	assert.FileExists(t, MetadataPath(path))

	loaded, err := LoadDataset(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, dataset.Metadata, loaded.Metadata)
	assert.Equal(t, dataset.Records, loaded.Records)
}

func TestLoadDataset_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDataset(context.Background(), filepath.Join(dir, "missing.tsv"))
	assert.ErrorContains(t, err, "failed to read dataset file")

	malformed := filepath.Join(dir, "malformed.tsv")
	require.NoError(t, os.WriteFile(malformed, []byte("sysA\tdoc1\t1\n"), 0o644))
	_, err = LoadDataset(context.Background(), malformed)
	assert.ErrorContains(t, err, "malformed rows")

	noMeta := filepath.Join(dir, "nometa.tsv")
	require.NoError(t, os.WriteFile(noMeta, []byte("sysA\tdoc1\t1\t1\tr1\ts\tt\tNo-error\tNo-error\n"), 0o644))
	_, err = LoadDataset(context.Background(), noMeta)
	assert.ErrorContains(t, err, "failed to read metadata file")
}

func TestMarkWords(t *testing.T) {
	assert.Equal(t, "[<v>a b</v> c]", "["+markWords([]string{"a", "b", "c"}, 0, 2)+"]")
	assert.Equal(t, "a b <v>c</v>", markWords([]string{"a", "b", "c"}, 2, 3))
}

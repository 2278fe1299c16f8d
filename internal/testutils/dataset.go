// Package testutils provides test data generators for MQM ratings. These
// components are intended for internal use within the project's test suites
// and tools and are not part of the public API.
package testutils

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-mqm/infrastructure/tsv"
	"github.com/ahrav/go-mqm/internal/domain"
)

// Dataset is a generated set of ratings together with the parameters that
// produced it.
type Dataset struct {
	Metadata DatasetMetadata `json:"metadata"`
	Records  []domain.Record `json:"-"`
}

// DatasetMetadata describes how a dataset was generated. It is saved next
// to the ratings so that a run can be reproduced.
type DatasetMetadata struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Seed           uint64   `json:"seed"`
	Systems        []string `json:"systems"`
	Raters         []string `json:"raters"`
	Docs           int      `json:"docs"`
	SegmentsPerDoc int      `json:"segments_per_doc"`
	Records        int      `json:"record_count"`
}

// MetadataPath returns where the metadata for a ratings file is stored.
func MetadataPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".meta.json"
}

// SaveDataset writes the ratings to path in the wire format, with a header
// line, and the metadata to MetadataPath(path).
func SaveDataset(dataset *Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	w := bufio.NewWriter(f)
	w.WriteString(tsv.Header + "\n")
	for _, r := range dataset.Records {
		w.WriteString(r.TSV() + "\n")
	}
	if err := errors.Join(w.Flush(), f.Close()); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}

	meta, err := json.MarshalIndent(dataset.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(MetadataPath(path), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadDataset reads a dataset saved by SaveDataset and validates it.
func LoadDataset(ctx context.Context, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}
	defer f.Close()

	records, rowErrs, err := tsv.NewParser(nil).ParseReader(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(rowErrs) > 0 {
		return nil, fmt.Errorf("dataset has %d malformed rows: %w", len(rowErrs), errors.Join(rowErrs...))
	}

	dataset := &Dataset{Records: records}
	data, err := os.ReadFile(MetadataPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &dataset.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	if err := ValidateDataset(dataset); err != nil {
		return nil, fmt.Errorf("dataset validation failed: %w", err)
	}
	return dataset, nil
}

// ValidateDataset checks that every record can be written back in the wire
// format, that the record count matches the metadata, and that each system
// covers enough documents for confidence intervals.
func ValidateDataset(dataset *Dataset) error {
	if dataset == nil {
		return fmt.Errorf("dataset is nil")
	}
	if dataset.Metadata.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if dataset.Metadata.Records != len(dataset.Records) {
		return fmt.Errorf("metadata record count (%d) doesn't match actual record count (%d)",
			dataset.Metadata.Records, len(dataset.Records))
	}

	for i, r := range dataset.Records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	stats := ComputeDatasetStatistics(dataset)
	for sys, docs := range stats.DocsPerSystem {
		if docs < MinimumDocsPerSystem {
			return fmt.Errorf("system %s covers %d documents, need at least %d",
				sys, docs, MinimumDocsPerSystem)
		}
	}
	return nil
}

// DatasetStatistics summarizes a dataset.
type DatasetStatistics struct {
	TotalRecords int

	// DocsPerSystem counts distinct documents per system.
	DocsPerSystem map[string]int

	// RecordsPerRater counts ratings per rater.
	RecordsPerRater map[string]int

	// SeverityCount and CategoryCount count records per label.
	SeverityCount map[string]int
	CategoryCount map[string]int

	// Segments counts distinct (doc, docSegId) pairs.
	Segments int

	// NoErrorRecords counts ratings that mark a segment as error free.
	NoErrorRecords int
}

// ComputeDatasetStatistics analyzes a dataset and returns summary statistics.
func ComputeDatasetStatistics(dataset *Dataset) *DatasetStatistics {
	stats := &DatasetStatistics{
		TotalRecords:    len(dataset.Records),
		DocsPerSystem:   make(map[string]int),
		RecordsPerRater: make(map[string]int),
		SeverityCount:   make(map[string]int),
		CategoryCount:   make(map[string]int),
	}

	systemDocs := make(map[string]map[string]struct{})
	segments := make(map[[2]string]struct{})
	for _, r := range dataset.Records {
		if systemDocs[r.System] == nil {
			systemDocs[r.System] = make(map[string]struct{})
		}
		systemDocs[r.System][r.Doc] = struct{}{}
		segments[[2]string{r.Doc, r.DocSegID}] = struct{}{}

		stats.RecordsPerRater[r.Rater]++
		stats.SeverityCount[r.Severity]++
		stats.CategoryCount[r.Category]++
		if domain.IsNoError(r.Category) {
			stats.NoErrorRecords++
		}
	}
	for sys, docs := range systemDocs {
		stats.DocsPerSystem[sys] = len(docs)
	}
	stats.Segments = len(segments)
	return stats
}

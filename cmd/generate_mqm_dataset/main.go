package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrav/go-mqm/internal/testutils"
)

func main() {
	var (
		docs       = flag.Int("docs", testutils.DefaultDocs, "Number of documents to generate")
		segments   = flag.Int("segments", testutils.DefaultSegmentsPerDoc, "Segments per document")
		systems    = flag.String("systems", strings.Join(testutils.DefaultSystems, ","), "Comma-separated system names, worst first")
		raters     = flag.String("raters", strings.Join(testutils.DefaultRaters, ","), "Comma-separated rater names")
		errorRate  = flag.Float64("error-rate", 1.5, "Mean errors per segment for the worst system")
		hotwRate   = flag.Float64("hotw-rate", 0, "Share of segments with a hands-on-the-wheel check")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		outputPath = flag.String("output", "testdata/mqm_dataset/sample_ratings.tsv", "Output file path")
	)
	flag.Parse()

	dataset := testutils.GenerateSampleDataset(testutils.GeneratorConfig{
		Systems:        strings.Split(*systems, ","),
		Raters:         strings.Split(*raters, ","),
		Docs:           *docs,
		SegmentsPerDoc: *segments,
		ErrorRate:      *errorRate,
		HOTWRate:       *hotwRate,
		Seed:           *seed,
	})
	if err := testutils.ValidateDataset(dataset); err != nil {
		log.Fatalf("Generated dataset is invalid: %v", err)
	}

	if err := testutils.SaveDataset(dataset, *outputPath); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	stats := testutils.ComputeDatasetStatistics(dataset)

	fmt.Printf("Generated MQM dataset:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("- Total ratings: %d\n", stats.TotalRecords)
	fmt.Printf("- Segments: %d\n", stats.Segments)
	fmt.Printf("- Documents per system: %v\n", stats.DocsPerSystem)
	fmt.Printf("- Ratings per rater: %v\n", stats.RecordsPerRater)
	fmt.Printf("- Severities: %v\n", stats.SeverityCount)
	fmt.Printf("- Error-free ratings: %d\n", stats.NoErrorRecords)

	readmePath := filepath.Join(filepath.Dir(*outputPath), "README.md")
	if _, err := os.Stat(readmePath); err == nil {
		return
	}
	readme := `# MQM Sample Dataset

Synthetic MQM ratings for development and testing. They are not real
judgments and must not be used to compare translation systems.

Each .tsv file is in the rating wire format with a header line. The
matching .meta.json file records the generator parameters, including the
seed, so a file can be regenerated exactly:

    go run ./cmd/generate_mqm_dataset -seed <seed> -output <path>

Later systems in the -systems list make fewer errors, so score tables
should rank them first.
`
	if err := os.WriteFile(readmePath, []byte(readme), 0o600); err != nil {
		log.Printf("Warning: Failed to create README: %v", err)
	}
}

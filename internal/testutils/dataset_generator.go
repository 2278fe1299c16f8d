package testutils

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/ahrav/go-mqm/internal/domain"
)

// GeneratorConfig controls GenerateSampleDataset. Zero fields take the
// package defaults.
type GeneratorConfig struct {
	Systems        []string
	Raters         []string
	Docs           int
	SegmentsPerDoc int

	// ErrorRate is the mean number of errors per rated segment for the
	// worst system. Later systems in Systems make proportionally fewer.
	ErrorRate float64

	// HOTWRate is the share of segments that carry a hands-on-the-wheel
	// check. Zero disables them.
	HOTWRate float64

	// Seed makes generation reproducible.
	Seed uint64
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if len(c.Systems) == 0 {
		c.Systems = DefaultSystems
	}
	if len(c.Raters) == 0 {
		c.Raters = DefaultRaters
	}
	if c.Docs <= 0 {
		c.Docs = DefaultDocs
	}
	if c.SegmentsPerDoc <= 0 {
		c.SegmentsPerDoc = DefaultSegmentsPerDoc
	}
	if c.ErrorRate <= 0 {
		c.ErrorRate = 1.5
	}
	return c
}

// GenerateSampleDataset creates a synthetic rating campaign. Every system
// translates every segment and each (doc, system) pair is assigned one
// rater. A segment with no errors gets a single No-error rating so that it
// still counts toward the scores.
func GenerateSampleDataset(cfg GeneratorConfig) *Dataset {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	dataset := &Dataset{
		Metadata: DatasetMetadata{
			Name:           "Sample MQM Dataset",
			Description:    "Synthetic MQM ratings generated for testing. NOT FOR PRODUCTION USE.",
			Seed:           cfg.Seed,
			Systems:        cfg.Systems,
			Raters:         cfg.Raters,
			Docs:           cfg.Docs,
			SegmentsPerDoc: cfg.SegmentsPerDoc,
		},
	}

	global := 0
	for d := range cfg.Docs {
		doc := fmt.Sprintf("doc%03d", d+1)
		for s := range cfg.SegmentsPerDoc {
			global++
			source := sourceSentence(rng)
			for i, sys := range cfg.Systems {
				rater := cfg.Raters[(d+i)%len(cfg.Raters)]
				ids := segmentIDs{sys: sys, doc: doc, docSeg: s + 1, global: global, rater: rater}
				rate := cfg.ErrorRate * float64(len(cfg.Systems)-i) / float64(len(cfg.Systems))
				dataset.Records = append(dataset.Records, rateSegment(rng, ids, source, rate, cfg.HOTWRate)...)
			}
		}
	}
	dataset.Metadata.Records = len(dataset.Records)
	return dataset
}

type segmentIDs struct {
	sys, doc, rater string
	docSeg, global  int
}

func (ids segmentIDs) fields(source, target, category, severity string) []string {
	return []string{
		ids.sys, ids.doc, strconv.Itoa(ids.docSeg), strconv.Itoa(ids.global), ids.rater,
		source, target, category, severity,
	}
}

// rateSegment returns the ratings one rater gives one system's translation.
func rateSegment(rng *rand.Rand, ids segmentIDs, source string, rate, hotwRate float64) []domain.Record {
	words := strings.Fields(source)
	target := translate(words)

	var out []domain.Record
	if hotwRate > 0 && rng.Float64() < hotwRate {
		found := rng.IntN(2) == 0
		severity := HOTWSeverity
		category := "Found"
		if !found {
			category = "Missed"
		}
		out = append(out, domain.NewRecord(ids.fields(source, target, category, severity)))
	}

	n := min(poisson(rng, rate), MaxErrorsPerSegment)
	if n == 0 {
		return append(out, domain.NewRecord(ids.fields(source, target, NoErrorCategory, NoErrorSeverity)))
	}
	for range n {
		category := pick(rng, ErrorCategories)
		severity := pick(rng, ErrorSeverities)
		start := rng.IntN(len(words))
		end := start + 1 + rng.IntN(min(3, len(words)-start))
		marked := markWords(translateAll(words), start, end)
		if strings.HasPrefix(category, "Accuracy/Omission") {
			out = append(out, domain.NewRecord(ids.fields(markWords(words, start, end), target, category, severity)))
			continue
		}
		out = append(out, domain.NewRecord(ids.fields(source, marked, category, severity)))
	}
	return out
}

// poisson draws from a Poisson distribution with mean lambda.
func poisson(rng *rand.Rand, lambda float64) int {
	n := 0
	for p := rng.ExpFloat64(); p < lambda; p += rng.ExpFloat64() {
		n++
	}
	return n
}

func pick(rng *rand.Rand, labels []weightedLabel) string {
	total := 0
	for _, l := range labels {
		total += l.Weight
	}
	n := rng.IntN(total)
	for _, l := range labels {
		if n < l.Weight {
			return l.Label
		}
		n -= l.Weight
	}
	return labels[len(labels)-1].Label
}

func markWords(words []string, start, end int) string {
	marked := make([]string, 0, len(words))
	marked = append(marked, words[:start]...)
	marked = append(marked, domain.SpanOpen+strings.Join(words[start:end], " ")+domain.SpanClose)
	marked = append(marked, words[end:]...)
	return strings.Join(marked, " ")
}

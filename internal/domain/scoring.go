package domain

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser normalizes severities and categories before classification.
var foldCaser = cases.Fold()

// Field name prefixes used when weighted and slice subscores are exposed as
// sortable or exportable columns.
const (
	WeightedPrefix = "weighted-"
	SlicePrefix    = "slice-"
)

// WeightedField returns the column name of a weight rule's subscore.
func WeightedField(name string) string { return WeightedPrefix + name }

// SliceField returns the column name of a slice rule's subscore.
func SliceField(name string) string { return SlicePrefix + name }

// ScoreRule is a named pattern over "severity:category". Weight rules carry
// the score a matching record contributes; slice rules re-bucket score that
// a weight rule already assigned and carry no weight of their own.
type ScoreRule struct {
	Name    string
	Pattern string
	Weight  float64

	re *regexp.Regexp
}

// NewScoreRule compiles pattern case-insensitively.
func NewScoreRule(name, pattern string, weight float64) (ScoreRule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return ScoreRule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	return ScoreRule{Name: name, Pattern: pattern, Weight: weight, re: re}, nil
}

// Matches reports whether the rule applies to a "severity:category" string.
func (r ScoreRule) Matches(sevcat string) bool {
	return r.re != nil && r.re.MatchString(sevcat)
}

// Scorer classifies records and adds their contribution to rater stats.
// Rules are tried in order and only the first match of each list applies.
type Scorer struct {
	Weights []ScoreRule
	Slices  []ScoreRule
}

// NewScorer creates a Scorer from already compiled rules.
func NewScorer(weights, slices []ScoreRule) *Scorer {
	return &Scorer{Weights: weights, Slices: slices}
}

// normalizeLabel trims and case-folds a severity or category.
func normalizeLabel(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

// IsNoError reports whether a category marks the absence of an error.
func IsNoError(category string) bool {
	lcat := normalizeLabel(category)
	return lcat == "no-error" || lcat == "no_error"
}

// IsHOTWTest reports whether a severity marks a hands-on-the-wheel check.
func IsHOTWTest(severity string) bool {
	lsev := normalizeLabel(severity)
	return lsev == "hotw-test" || lsev == "hotw_test"
}

// Weight returns the weight and name of the first weight rule that matches,
// or zero and "" when none does.
func (s *Scorer) Weight(category, severity string) (float64, string) {
	key := normalizeLabel(severity) + ":" + normalizeLabel(category)
	for _, rule := range s.Weights {
		if rule.Matches(key) {
			return rule.Weight, rule.Name
		}
	}
	return 0, ""
}

// Slice returns the name of the first slice rule that matches, or "".
func (s *Scorer) Slice(category, severity string) string {
	key := normalizeLabel(severity) + ":" + normalizeLabel(category)
	for _, rule := range s.Slices {
		if rule.Matches(key) {
			return rule.Name
		}
	}
	return ""
}

// Score classifies one record and folds it into stats. spanLength is the
// number of characters covered by the marked error.
func (s *Scorer) Score(stats *RaterStats, category, severity string, spanLength int) {
	lcat := normalizeLabel(category)
	lsev := normalizeLabel(severity)
	if lcat == "no-error" || lcat == "no_error" {
		return
	}
	switch lsev {
	case "hotw-test", "hotw_test":
		switch lcat {
		case "found":
			stats.HotwFound++
		case "missed":
			stats.HotwMissed++
		}
		return
	case "unrateable":
		stats.Unrateable++
		return
	case "neutral":
		return
	}

	if spanLength > 0 {
		stats.NumWithErrors++
		stats.ErrorSpans += spanLength
	}

	score, weightName := s.Weight(category, severity)
	if score <= 0 {
		return
	}
	stats.Score += score
	stats.Weighted[weightName] += score
	if slice := s.Slice(category, severity); slice != "" {
		stats.Slices[slice] += score
	}
}

package application

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-mqm/internal/domain"
)

// Settings controls how ratings are scored and how result rows are sorted.
// Every field may be overridden independently; an omitted field takes its
// default value from DefaultSettings.
type Settings struct {
	// ScoringUnit selects whether aggregate scores are normalized per
	// segment or per 100 source characters.
	ScoringUnit domain.ScoringUnit `yaml:"scoring_unit,omitempty" json:"scoring_unit,omitempty" validate:"omitempty,scoringunit"`
	// Weights is the ordered list of weight rules. The first rule whose
	// pattern matches a record's "severity:category" decides its score.
	Weights []WeightRule `yaml:"weights,omitempty" json:"weights,omitempty" validate:"dive"`
	// Slices is the ordered list of slice rules that re-bucket weighted
	// score for reporting.
	Slices []SliceRule `yaml:"slices,omitempty" json:"slices,omitempty" validate:"dive"`
	// Sort selects the column and direction used to order result rows.
	Sort SortSpec `yaml:"sort,omitempty" json:"sort,omitempty"`
}

// WeightRule assigns a weight to ratings matching Pattern.
type WeightRule struct {
	Name    string  `yaml:"name" json:"name" validate:"required,rulename"`
	Pattern string  `yaml:"pattern" json:"pattern" validate:"required,regexp"`
	Weight  float64 `yaml:"weight" json:"weight" validate:"gte=0"`
}

// SliceRule groups already weighted score of ratings matching Pattern.
type SliceRule struct {
	Name    string `yaml:"name" json:"name" validate:"required,rulename"`
	Pattern string `yaml:"pattern" json:"pattern" validate:"required,regexp"`
}

// SortSpec names a sortable column and its direction. Lower scores are
// better, so ascending order lists the best entities first.
type SortSpec struct {
	Field   string `yaml:"field,omitempty" json:"field,omitempty"`
	Reverse bool   `yaml:"reverse,omitempty" json:"reverse,omitempty"`
}

// DefaultWeights returns the standard MQM weighting: critical, major and
// minor errors in accuracy, fluency, terminology and style.
func DefaultWeights() []WeightRule {
	return []WeightRule{
		{Name: "AccCri", Pattern: "critical:.*accuracy", Weight: 20},
		{Name: "AccMaj", Pattern: "major:.*accuracy", Weight: 10},
		{Name: "AccMin", Pattern: "minor:.*accuracy", Weight: 2},
		{Name: "FluCri", Pattern: "critical:.*fluency", Weight: 10},
		{Name: "FluMaj", Pattern: "major:.*fluency", Weight: 5},
		{Name: "FluMin", Pattern: "minor:.*fluency", Weight: 1},
		{Name: "TerCri", Pattern: "critical:.*terminology", Weight: 15},
		{Name: "TerMaj", Pattern: "major:.*terminology", Weight: 7.5},
		{Name: "TerMin", Pattern: "minor:.*terminology", Weight: 1.5},
		{Name: "StyCri", Pattern: "critical:.*style", Weight: 5},
		{Name: "StyMaj", Pattern: "major:.*style", Weight: 2.5},
		{Name: "StyMin", Pattern: "minor:.*style", Weight: 0.5},
	}
}

// DefaultSlices returns one slice per top-level error category.
func DefaultSlices() []SliceRule {
	return []SliceRule{
		{Name: "Accuracy", Pattern: "accuracy"},
		{Name: "Fluency", Pattern: "fluency"},
		{Name: "Terminology", Pattern: "terminology"},
		{Name: "Style", Pattern: "style"},
	}
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		ScoringUnit: domain.ScoringUnitSegments,
		Weights:     DefaultWeights(),
		Slices:      DefaultSlices(),
		Sort:        SortSpec{Field: domain.ScoreField},
	}
}

// WithDefaults fills every omitted field from DefaultSettings. An explicitly
// empty rule list is kept empty.
func (s Settings) WithDefaults() Settings {
	def := DefaultSettings()
	if s.ScoringUnit == "" {
		s.ScoringUnit = def.ScoringUnit
	}
	if s.Weights == nil {
		s.Weights = def.Weights
	}
	if s.Slices == nil {
		s.Slices = def.Slices
	}
	if s.Sort.Field == "" {
		s.Sort.Field = def.Sort.Field
	}
	return s
}

// CompiledSettings is a validated Settings value with its rules compiled.
// It is immutable and safe to share between goroutines.
type CompiledSettings struct {
	Settings Settings
	Scorer   *domain.Scorer
}

// settingsValidate is shared because validator caches struct metadata.
var settingsValidate = newSettingsValidator()

func newSettingsValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterSettingsValidators(v); err != nil {
		panic(fmt.Sprintf("register settings validators: %v", err))
	}
	return v
}

// Compile validates s (after applying defaults) and compiles its rules.
// Every problem found is reported in one *domain.SettingsValidationError.
func (s Settings) Compile() (*CompiledSettings, error) {
	s = s.WithDefaults()
	problems := &domain.SettingsValidationError{}

	if err := settingsValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("settings validation: %w", err)
		}
		for _, fe := range verrs {
			problems.AddProblem("%s: %s", fieldPath(fe.Namespace()), describeTag(fe.Tag(), fe.Param()))
		}
	}
	checkUniqueNames(problems, "weights", weightNames(s.Weights))
	checkUniqueNames(problems, "slices", sliceNames(s.Slices))
	checkSortField(problems, s)
	if problems.HasProblems() {
		return nil, problems
	}

	weights := make([]domain.ScoreRule, 0, len(s.Weights))
	for _, w := range s.Weights {
		rule, err := domain.NewScoreRule(w.Name, w.Pattern, w.Weight)
		if err != nil {
			problems.AddProblem("%v", err)
			continue
		}
		weights = append(weights, rule)
	}
	sliceRules := make([]domain.ScoreRule, 0, len(s.Slices))
	for _, sl := range s.Slices {
		rule, err := domain.NewScoreRule(sl.Name, sl.Pattern, 0)
		if err != nil {
			problems.AddProblem("%v", err)
			continue
		}
		sliceRules = append(sliceRules, rule)
	}
	if problems.HasProblems() {
		return nil, problems
	}

	return &CompiledSettings{Settings: s, Scorer: domain.NewScorer(weights, sliceRules)}, nil
}

// MustCompileDefaults returns the compiled default settings.
func MustCompileDefaults() *CompiledSettings {
	cs, err := DefaultSettings().Compile()
	if err != nil {
		panic(err)
	}
	return cs
}

func weightNames(rules []WeightRule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

func sliceNames(rules []SliceRule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

func checkUniqueNames(problems *domain.SettingsValidationError, list string, names []string) {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			problems.AddProblem("%s: duplicate name %q", list, n)
			continue
		}
		seen[n] = struct{}{}
	}
}

// checkSortField accepts "score" and the subscore columns of defined rules.
func checkSortField(problems *domain.SettingsValidationError, s Settings) {
	field := s.Sort.Field
	switch {
	case field == domain.ScoreField:
	case strings.HasPrefix(field, domain.WeightedPrefix):
		name := strings.TrimPrefix(field, domain.WeightedPrefix)
		if !slices.Contains(weightNames(s.Weights), name) {
			problems.AddProblem("sort.field: no weight named %q", name)
		}
	case strings.HasPrefix(field, domain.SlicePrefix):
		name := strings.TrimPrefix(field, domain.SlicePrefix)
		if !slices.Contains(sliceNames(s.Slices), name) {
			problems.AddProblem("sort.field: no slice named %q", name)
		}
	default:
		problems.AddProblem("sort.field: unknown column %q", field)
	}
}

// fieldPath turns "Settings.Weights[2].Name" into "weights[2].name".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Settings.")
	return strings.ToLower(ns)
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "must not be empty"
	case "rulename":
		return "must contain only letters, digits, '.' and '-'"
	case "regexp":
		return "is not a valid regular expression"
	case "gte":
		return "must be a number >= " + param
	case "scoringunit":
		return "must be one of segments, characters"
	default:
		return "failed " + tag
	}
}

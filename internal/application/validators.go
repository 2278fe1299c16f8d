package application

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-mqm/internal/domain"
)

// ruleNamePattern restricts rule names to characters that are safe in
// column headers, URLs and TSV exports.
var ruleNamePattern = regexp.MustCompile(`(?i)^[a-z0-9.-]+$`)

// RegisterSettingsValidators registers custom validation functions with
// the validator instance for use in settings validation.
// RegisterSettingsValidators adds rulename, regexp and scoringunit
// validators that can be referenced in struct tags.
// RegisterSettingsValidators returns an error if any validator registration
// fails.
func RegisterSettingsValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("rulename", validateRuleName); err != nil {
		return fmt.Errorf("failed to register rulename validator: %w", err)
	}

	if err := v.RegisterValidation("regexp", validateRegexp); err != nil {
		return fmt.Errorf("failed to register regexp validator: %w", err)
	}

	if err := v.RegisterValidation("scoringunit", validateScoringUnit); err != nil {
		return fmt.Errorf("failed to register scoringunit validator: %w", err)
	}

	return nil
}

// validateRuleName accepts short identifier-safe names.
func validateRuleName(fl validator.FieldLevel) bool {
	return ruleNamePattern.MatchString(fl.Field().String())
}

// validateRegexp accepts any pattern that compiles case-insensitively.
func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile("(?i)" + fl.Field().String())
	return err == nil
}

// validateScoringUnit accepts the two supported normalizations.
func validateScoringUnit(fl validator.FieldLevel) bool {
	switch domain.ScoringUnit(fl.Field().String()) {
	case domain.ScoringUnitSegments, domain.ScoringUnitCharacters:
		return true
	default:
		return false
	}
}

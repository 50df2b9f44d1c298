// Package validation provides validation rules for rule and snippet payloads.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"tracklight/internal/engine"
)

const (
	// MaxURLPatternLength is the maximum length for a rule's URL pattern.
	MaxURLPatternLength = 2048
	// MaxNameLength is the maximum length for snippet names.
	MaxNameLength = 128
	// MaxScriptSize is the maximum size of a snippet body in bytes.
	MaxScriptSize = 256 * 1024 // 256KB
	// MaxExpressionSize is the maximum size of a rule expression in bytes.
	MaxExpressionSize = 16 * 1024 // 16KB
	// MinPercentage is the minimum admission percentage.
	MinPercentage = 0
	// MaxPercentage is the maximum admission percentage.
	MaxPercentage = 100
)

// countryPattern matches two-letter country codes.
var countryPattern = regexp.MustCompile(`^[a-zA-Z]{2}$`)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// RuleValidationParams contains the parameters for validating a targeting rule.
type RuleValidationParams struct {
	URLPattern string
	Countries  []string
	Percentage int
	Expression *string
}

// SnippetValidationParams contains the parameters for validating a snippet.
type SnippetValidationParams struct {
	Name   string
	Script string
}

// ValidateRule validates all rule fields and returns a validation result.
func ValidateRule(params RuleValidationParams) *ValidationResult {
	result := NewValidationResult()
	result.Merge(ValidateURLPattern(params.URLPattern))
	result.Merge(ValidateCountries(params.Countries))
	result.Merge(ValidatePercentage(params.Percentage))
	result.Merge(ValidateExpression(params.Expression))
	return result
}

// ValidateSnippet validates all snippet fields and returns a validation result.
func ValidateSnippet(params SnippetValidationParams) *ValidationResult {
	result := NewValidationResult()
	result.Merge(ValidateName(params.Name))
	result.Merge(ValidateScript(params.Script))
	return result
}

// ValidateURLPattern validates a rule's URL pattern.
func ValidateURLPattern(pattern string) *ValidationResult {
	result := NewValidationResult()
	pattern = strings.TrimSpace(pattern)

	if pattern == "" {
		result.AddError("url", "URL pattern is required")
		return result
	}

	if utf8.RuneCountInString(pattern) > MaxURLPatternLength {
		result.AddError("url", "URL pattern must not exceed 2048 characters")
		return result
	}

	return result
}

// ValidateCountries validates a rule's country list. An empty list is
// valid and means the rule applies globally.
func ValidateCountries(countries []string) *ValidationResult {
	result := NewValidationResult()

	for _, c := range countries {
		c = strings.TrimSpace(c)
		if c == "" || strings.EqualFold(c, "global") {
			continue
		}
		if !countryPattern.MatchString(c) {
			result.AddError("countries", "Country codes must be two-letter ISO codes: "+c)
			return result
		}
	}

	return result
}

// ValidatePercentage validates an admission percentage.
func ValidatePercentage(percentage int) *ValidationResult {
	result := NewValidationResult()

	if percentage < MinPercentage || percentage > MaxPercentage {
		result.AddError("percentage", "Percentage must be between 0 and 100")
	}

	return result
}

// ValidateExpression validates an optional JSON Logic expression.
func ValidateExpression(expression *string) *ValidationResult {
	result := NewValidationResult()

	if expression == nil || strings.TrimSpace(*expression) == "" {
		return result
	}

	if len(*expression) > MaxExpressionSize {
		result.AddError("expression", "Expression must not exceed 16KB")
		return result
	}

	if err := engine.ValidateExpression(*expression); err != nil {
		result.AddError("expression", "Expression must be valid JSON Logic: "+err.Error())
	}

	return result
}

// ValidateName validates a snippet name.
func ValidateName(name string) *ValidationResult {
	result := NewValidationResult()
	name = strings.TrimSpace(name)

	if name == "" {
		result.AddError("name", "Name is required")
		return result
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		result.AddError("name", "Name must not exceed 128 characters")
		return result
	}

	return result
}

// ValidateScript validates a snippet body.
func ValidateScript(script string) *ValidationResult {
	result := NewValidationResult()

	if strings.TrimSpace(script) == "" {
		result.AddError("script", "Script is required")
		return result
	}

	if len(script) > MaxScriptSize {
		result.AddError("script", "Script must not exceed 256KB")
	}

	return result
}

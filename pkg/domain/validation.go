package domain

import (
	"fmt"
	"strings"
)

// FieldError is a single violated rule on a named field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every violated field of an input, plus any
// non-fatal warnings collected while checking it.
type ValidationError struct {
	Fields   []FieldError `json:"fields"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Rule)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a violation.
func (e *ValidationError) Add(field, rule string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Rule: rule})
}

// Warn records a non-fatal finding.
func (e *ValidationError) Warn(msg string) {
	e.Warnings = append(e.Warnings, msg)
}

// Has reports whether field has at least one violation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ErrOrNil returns e when it holds violations, nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

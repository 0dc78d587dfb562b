package model

import "strings"

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateActivity checks an Activity for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the record is valid.
func ValidateActivity(a *Activity) error {
	var ve ValidationError

	if a.Action == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "action", Message: "is required"})
	} else if !a.Action.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "action", Message: "unknown action " + a.Action.String()})
	}

	if strings.TrimSpace(a.Resource) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "resource", Message: "is required"})
	} else if len(a.Resource) > 100 {
		ve.Errors = append(ve.Errors, FieldError{Field: "resource", Message: "must be 100 characters or fewer"})
	}

	if a.Severity != "" && !a.Severity.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "severity", Message: "unknown severity " + a.Severity.String()})
	}

	if a.Source != "" && !a.Source.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "source", Message: "unknown source " + string(a.Source)})
	}

	if len(a.Description) > 1000 {
		ve.Errors = append(ve.Errors, FieldError{Field: "description", Message: "must be 1000 characters or fewer"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

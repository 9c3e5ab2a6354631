// Package canonical defines the schema-validated, source-neutral alert
// record adapters must produce before it is wrapped as a fact.Fact.
package canonical

import (
	"fmt"
	"strings"
)

// SchemaAlertV1 is the only schema version this implementation accepts.
const SchemaAlertV1 = "alert.v1"

// AlertV1 is the wire/storage shape every source adapter normalizes into.
type AlertV1 struct {
	Schema     string   `json:"schema"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Severity   string   `json:"severity"`
	Tags       []string `json:"tags"`
	Source     string   `json:"source"`
	OccurredAt string   `json:"occurred_at"`
}

// ValidationError reports which field of a CanonicalAlertV1 failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Validate checks the invariants of a CanonicalAlertV1: schema must be
// "alert.v1"; id and title must be non-empty after trimming; severity must
// be one of low/medium/high/critical, case-insensitively.
func Validate(a AlertV1) error {
	if a.Schema != SchemaAlertV1 {
		return newValidationError("schema", fmt.Sprintf("unsupported schema %q", a.Schema))
	}
	if strings.TrimSpace(a.ID) == "" {
		return newValidationError("id", "id is required")
	}
	if strings.TrimSpace(a.Title) == "" {
		return newValidationError("title", "title is required")
	}
	switch strings.ToLower(a.Severity) {
	case "low", "medium", "high", "critical":
	default:
		return newValidationError("severity", fmt.Sprintf("invalid severity %q", a.Severity))
	}
	return nil
}

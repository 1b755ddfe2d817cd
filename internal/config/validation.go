// validation.go - Configuration validation for the intake service.
//
// Collects every problem found while reading the environment so startup
// fails once with a complete report instead of one variable at a time.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes a single invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// AddError records a validation error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Err returns nil when no errors were recorded.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s", v.ErrorString())
}

// ValidateRequired records an error when value is empty.
func (v *Validator) ValidateRequired(key, value string) {
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// ValidatePort validates "host:port" and ":port" listen addresses.
func (v *Validator) ValidatePort(key, value string) {
	if value == "" {
		return
	}

	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		v.AddError(key, "must be in host:port or :port form")
		return
	}

	port, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// ValidateMinLength validates minimum string length.
func (v *Validator) ValidateMinLength(key, value string, minLen int) {
	if value == "" {
		return
	}

	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	if value == "" {
		return
	}

	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePostgresURL checks the URL scheme accepted by both the pgx driver and
// the migration tool.
func (v *Validator) ValidatePostgresURL(key, value string) {
	if value == "" {
		return
	}
	if !strings.HasPrefix(value, "postgres://") && !strings.HasPrefix(value, "postgresql://") {
		v.AddError(key, "must be a valid PostgreSQL connection string")
	}
}

// PositiveInt64 parses raw, falling back to def when raw is empty.
func (v *Validator) PositiveInt64(key, raw string, def int64) int64 {
	if raw == "" {
		return def
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return def
	}
	if n <= 0 {
		v.AddError(key, "must be a positive integer")
		return def
	}
	return n
}

// Bool parses raw with strconv.ParseBool semantics.
func (v *Validator) Bool(key, raw string, def bool) bool {
	if raw == "" {
		return def
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.AddError(key, "must be true or false")
		return def
	}
	return b
}

// Duration parses raw as a Go duration (e.g. 5s, 1m).
func (v *Validator) Duration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		v.AddError(key, "must be a valid positive duration (e.g., 5s, 1m)")
		return def
	}
	return d
}

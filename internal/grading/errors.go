package grading

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration reports malformed grading configuration such as
// weights that do not sum to one or non-positive maximum points.
var ErrInvalidConfiguration = errors.New("invalid grading configuration")

// ConfigError describes which part of the configuration is malformed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfiguration, e.Field, e.Reason)
}

// Unwrap exposes ErrInvalidConfiguration to errors.Is.
func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// WarningCode identifies a non-fatal data condition.
type WarningCode string

const (
	// WarningScoreClamped is raised when earned points fall outside [0, possible].
	WarningScoreClamped WarningCode = "SCORE_CLAMPED"
)

// Warning is a non-fatal condition surfaced alongside a result.
type Warning struct {
	Code    WarningCode `json:"code"`
	TaskID  string      `json:"task_id,omitempty"`
	Message string      `json:"message"`
}

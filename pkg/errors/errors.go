// Package errors provides class-aware error types for the rule engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Class tells callers which side of the boundary produced an error.
type Class int

const (
	ClassInput Class = iota
	ClassConfiguration
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassConfiguration:
		return "configuration"
	case ClassNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// EngineError is a structured error with context.
type EngineError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Class   Class    `json:"-"`
	Field   string   `json:"field,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (e *EngineError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", e.Class, e.Code, e.Message)
	if e.Field != "" {
		fmt.Fprintf(&sb, " (field: %s)", e.Field)
	}
	if len(e.Details) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Details, "; "))
	}
	return sb.String()
}

// Is matches any EngineError carrying the same code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeInvalidHours     = "INVALID_HOURS"
	ErrCodeInvalidDate      = "INVALID_DATE"
	ErrCodeInvalidTime      = "INVALID_TIME"
	ErrCodeInvalidDuration  = "INVALID_DURATION"
	ErrCodeInvalidLeadTime  = "INVALID_LEAD_TIME"
	ErrCodeInvalidTemplate  = "INVALID_TEMPLATE"
	ErrCodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
)

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidHours     = &EngineError{Code: ErrCodeInvalidHours}
	ErrInvalidDate      = &EngineError{Code: ErrCodeInvalidDate}
	ErrInvalidTime      = &EngineError{Code: ErrCodeInvalidTime}
	ErrInvalidDuration  = &EngineError{Code: ErrCodeInvalidDuration}
	ErrInvalidLeadTime  = &EngineError{Code: ErrCodeInvalidLeadTime}
	ErrInvalidTemplate  = &EngineError{Code: ErrCodeInvalidTemplate}
	ErrTemplateNotFound = &EngineError{Code: ErrCodeTemplateNotFound}
)

// NewInvalidHoursError creates an error for missing or non-positive billed hours.
func NewInvalidHoursError(hours string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidHours,
		Message: fmt.Sprintf("hourly pricing requires hours > 0, got %s", hours),
		Class:   ClassInput,
		Field:   "hours",
	}
}

// NewInvalidDateError creates an error for a missing or unparseable date.
func NewInvalidDateError(value string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidDate,
		Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value),
		Class:   ClassInput,
		Field:   "date",
	}
}

// NewInvalidTimeError creates an error for an unparseable or out of range clock time.
func NewInvalidTimeError(value string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidTime,
		Message: fmt.Sprintf("invalid time %q, expected HH:MM", value),
		Class:   ClassInput,
		Field:   "time",
	}
}

// NewInvalidDurationError creates an error for a negative duration.
func NewInvalidDurationError(minutes int) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidDuration,
		Message: fmt.Sprintf("duration must not be negative, got %d minutes", minutes),
		Class:   ClassInput,
		Field:   "duration_minutes",
	}
}

// NewInvalidLeadTimeError creates an error for a negative lead time.
func NewInvalidLeadTimeError(hours float64) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidLeadTime,
		Message: fmt.Sprintf("lead time must not be negative, got %g hours", hours),
		Class:   ClassInput,
		Field:   "lead_time_hours",
	}
}

// NewInvalidTemplateError collects template configuration problems.
func NewInvalidTemplateError(templateID string, problems []string) *EngineError {
	msg := "template configuration is invalid"
	if templateID != "" {
		msg = fmt.Sprintf("template %s configuration is invalid", templateID)
	}
	return &EngineError{
		Code:    ErrCodeInvalidTemplate,
		Message: msg,
		Class:   ClassConfiguration,
		Details: problems,
	}
}

// NewTemplateNotFoundError creates an error for an unknown template.
func NewTemplateNotFoundError(businessID, templateID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeTemplateNotFound,
		Message: fmt.Sprintf("template %s not found for business %s", templateID, businessID),
		Class:   ClassNotFound,
	}
}

// As extracts an EngineError from a wrapped chain.
func As(err error) (*EngineError, bool) {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

package domain

import (
	"fmt"
	"time"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthError reports bad credentials or an unusable token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return e.Reason
}

// ForbiddenError reports a role or ownership mismatch.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return e.Reason
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ConflictError reports a duplicate value on a unique field.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s already exists", e.Field)
}

// QuotaExceededError is returned when a host has used up its pre-approvals for a day.
type QuotaExceededError struct {
	Limit int
	Day   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("pre-approval limit of %d reached for %s", e.Limit, e.Day.Format("2006-01-02"))
}

// InvalidStateError reports an operation that the visitor's current status does not allow.
type InvalidStateError struct {
	Status  VisitorStatus
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("operation not allowed while visitor is %s", e.Status)
}

type BadgeMissingError struct {
	VisitorID string
}

func (e *BadgeMissingError) Error() string {
	return "badge not generated for the visitor yet"
}

// OutOfWindowError is returned when a pre-approved visitor arrives outside the agreed window.
type OutOfWindowError struct {
	From time.Time
	To   time.Time
}

func (e *OutOfWindowError) Error() string {
	return fmt.Sprintf("visitor must check in between %s and %s",
		e.From.Format(time.DateTime), e.To.Format(time.DateTime))
}

type BadgeGenerationError struct {
	Err error
}

func (e *BadgeGenerationError) Error() string {
	return fmt.Sprintf("QR code generation failed: %v", e.Err)
}

func (e *BadgeGenerationError) Unwrap() error { return e.Err }

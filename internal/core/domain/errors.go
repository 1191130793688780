package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("appointment not found")
	ErrConflict          = errors.New("appointment was concurrently moved to a terminal status")
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type ErrorCode string

const (
	ErrorCodeValidation        ErrorCode = "validation_error"
	ErrorCodeSlotUnavailable   ErrorCode = "slot_unavailable"
	ErrorCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeInternal          ErrorCode = "internal_error"
)

// SchedulingError is what callers of the scheduling use case receive.
// Conflict is reported with the invalid_transition code.
type SchedulingError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// AsSchedulingError translates any error into a caller-facing one.
func AsSchedulingError(err error) *SchedulingError {
	if err == nil {
		return nil
	}

	var se *SchedulingError
	if errors.As(err, &se) {
		return se
	}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return &SchedulingError{Code: ErrorCodeValidation, Message: ve.Error(), Err: err}
	case errors.Is(err, ErrValidation):
		return &SchedulingError{Code: ErrorCodeValidation, Message: err.Error(), Err: err}
	case errors.Is(err, ErrSlotUnavailable):
		return &SchedulingError{Code: ErrorCodeSlotUnavailable, Message: "requested slot is no longer available, query availability again", Err: err}
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return &SchedulingError{Code: ErrorCodeInvalidTransition, Message: err.Error(), Err: err}
	case errors.Is(err, ErrNotFound):
		return &SchedulingError{Code: ErrorCodeNotFound, Message: err.Error(), Err: err}
	default:
		return &SchedulingError{Code: ErrorCodeInternal, Message: "internal error", Err: err}
	}
}

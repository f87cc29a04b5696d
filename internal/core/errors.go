package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, identity and the view controller.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPartialSignUp means the identity was created but its profile was not
	// completed. The identity is not rolled back.
	ErrPartialSignUp = errors.New("sign-up incomplete: profile update failed")

	// ErrSubscription marks a stream-level failure of a live subscription.
	ErrSubscription = errors.New("subscription failed")
)

// FieldError describes a validation problem with a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

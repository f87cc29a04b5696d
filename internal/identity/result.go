package identity

import (
	"errors"

	"fintrack/internal/core"
)

// Result is the outcome of a sign-in or sign-up. Owner may be set even when
// Err is not nil, for a partially completed sign-up.
type Result struct {
	Owner *core.Owner
	Err   error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Reason is a human-readable explanation of Err, empty on success.
func (r Result) Reason() string {
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, core.ErrPartialSignUp):
		return "account created, but the display name could not be saved"
	case errors.Is(r.Err, core.ErrUnauthorized):
		return "invalid email or password"
	case errors.Is(r.Err, core.ErrAlreadyExists):
		return "an account with this email already exists"
	case errors.Is(r.Err, core.ErrValidation):
		var ve *core.ValidationError
		if errors.As(r.Err, &ve) && len(ve.Errors) > 0 {
			return ve.Errors[0].Field + " " + ve.Errors[0].Message
		}
		return "invalid input"
	default:
		return "authentication service unavailable"
	}
}

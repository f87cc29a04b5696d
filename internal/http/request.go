package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"fintrack/internal/core"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	DisplayName string `json:"displayName" validate:"required,max=100"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type transactionRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
	Category    string `json:"category" validate:"max=100"`
	Kind        string `json:"kind" validate:"required,oneof=income expense"`
	OccurredAt  string `json:"occurredAt"`
}

type prefsRequest struct {
	DarkTheme    *bool   `json:"darkTheme"`
	CurrencyCode *string `json:"currencyCode" validate:"omitempty,min=1,max=8"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Problems come back as
// a *core.ValidationError.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := s.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return validationErrors(ve)
		}
		return fmt.Errorf("validate request: %w", err)
	}
	return nil
}

func validationErrors(ve validator.ValidationErrors) *core.ValidationError {
	out := make([]core.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, core.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return core.NewValidationErrors(out)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// toTransaction converts a validated request. The owner is filled in by the
// controller from the session.
func (req transactionRequest) toTransaction() (core.Transaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, core.NewValidationError("amount", "must be a positive number with at most two decimals")
	}
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		return core.Transaction{}, core.NewValidationError("kind", "must be income or expense")
	}
	t := core.Transaction{
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Kind:        kind,
	}
	if req.OccurredAt != "" {
		when, err := core.ParseTime(req.OccurredAt)
		if err != nil {
			return core.Transaction{}, core.NewValidationError("occurredAt", "must be RFC 3339 or YYYY-MM-DD")
		}
		t.OccurredAt = when
	}
	return t, nil
}

// bearerToken reads the Authorization header. WebSocket clients that cannot
// set headers may pass ?token= instead.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

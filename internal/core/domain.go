package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Free-text limits, counted in characters.
const (
	MaxDescriptionLength = 200
	MaxCategoryLength    = 100
)

type (
	// Kind decides the sign a transaction contributes to aggregates.
	Kind string

	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Kind        Kind            `json:"kind"`
		OccurredAt  time.Time       `json:"occurredAt"`
		OwnerID     string          `json:"ownerId"`
	}

	// Owner is an authenticated identity. Only DisplayName changes after sign-up.
	Owner struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}

	Preferences struct {
		DarkTheme    bool   `json:"darkTheme"`
		CurrencyCode string `json:"currencyCode"`
	}
)

// ParseKind accepts the two known kinds, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q: %w", s, ErrValidation)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (k Kind) String() string {
	return string(k)
}

// Validate checks the fields every persisted transaction must carry.
// ID is not required: stores assign one on insert.
func (t Transaction) Validate() error {
	var errs []FieldError
	if t.Amount.IsNegative() {
		errs = append(errs, FieldError{Field: "amount", Message: "must not be negative"})
	}
	if !t.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Message: "must be income or expense"})
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		errs = append(errs, FieldError{Field: "ownerId", Message: "required"})
	}
	if t.OccurredAt.IsZero() {
		errs = append(errs, FieldError{Field: "occurredAt", Message: "required"})
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		errs = append(errs, FieldError{Field: "description", Message: fmt.Sprintf("too long (max %d characters)", MaxDescriptionLength)})
	}
	if utf8.RuneCountInString(t.Category) > MaxCategoryLength {
		errs = append(errs, FieldError{Field: "category", Message: fmt.Sprintf("too long (max %d characters)", MaxCategoryLength)})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// Signed returns the amount with the sign implied by Kind.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names of a stored transaction document.
const (
	FieldID          = "id"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldKind        = "type"
	FieldOccurredAt  = "date"
	FieldOwnerID     = "userId"
)

// TimeLayout is the fixed-width UTC layout used to persist OccurredAt so that
// the stored strings sort in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

const dateOnly = "2006-01-02"

// RawRecord is a transaction as it sits in the backing store, before decoding.
type RawRecord map[string]any

// EncodeRecord converts a transaction into its stored form.
func EncodeRecord(t Transaction) RawRecord {
	return RawRecord{
		FieldID:          t.ID,
		FieldAmount:      t.Amount.String(),
		FieldDescription: t.Description,
		FieldCategory:    t.Category,
		FieldKind:        string(t.Kind),
		FieldOccurredAt:  FormatTime(t.OccurredAt),
		FieldOwnerID:     t.OwnerID,
	}
}

// FormatTime renders a timestamp in the sortable storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the storage layout, any RFC 3339 timestamp, or a bare date.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// DecodeRecord turns a stored record into a Transaction. It reports false when
// the record lacks a required field (id, owner, amount, kind, date), carries an
// unknown kind or a negative amount. Description and category default to "".
func DecodeRecord(raw RawRecord) (Transaction, bool) {
	id, ok := stringField(raw, FieldID)
	if !ok || id == "" {
		return Transaction{}, false
	}
	owner, ok := stringField(raw, FieldOwnerID)
	if !ok || owner == "" {
		return Transaction{}, false
	}
	amount, ok := decimalField(raw, FieldAmount)
	if !ok || amount.IsNegative() {
		return Transaction{}, false
	}
	kindStr, ok := stringField(raw, FieldKind)
	if !ok {
		return Transaction{}, false
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Transaction{}, false
	}
	when, ok := stringField(raw, FieldOccurredAt)
	if !ok {
		return Transaction{}, false
	}
	occurredAt, err := ParseTime(when)
	if err != nil {
		return Transaction{}, false
	}
	desc, _ := stringField(raw, FieldDescription)
	cat, _ := stringField(raw, FieldCategory)

	return Transaction{
		ID:          id,
		Amount:      amount,
		Description: desc,
		Category:    cat,
		Kind:        kind,
		OccurredAt:  occurredAt,
		OwnerID:     owner,
	}, true
}

// DecodeAll decodes every record, silently dropping the ones DecodeRecord
// rejects. The number of dropped records is returned for logging.
func DecodeAll(raws []RawRecord) ([]Transaction, int) {
	out := make([]Transaction, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		t, ok := DecodeRecord(raw)
		if !ok {
			dropped++
			continue
		}
		out = append(out, t)
	}
	return out, dropped
}

func stringField(raw RawRecord, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func decimalField(raw RawRecord, key string) (decimal.Decimal, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case []byte:
		d, err := decimal.NewFromString(string(n))
		return d, err == nil
	default:
		if s, ok := v.(fmt.Stringer); ok {
			d, err := decimal.NewFromString(s.String())
			return d, err == nil
		}
		if f, err := strconv.ParseFloat(fmt.Sprint(v), 64); err == nil {
			return decimal.NewFromFloat(f), true
		}
		return decimal.Zero, false
	}
}

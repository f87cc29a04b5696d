package prefs

import (
	"github.com/shopspring/decimal"
)

// GenericSymbol is shown for currency codes outside the table.
const GenericSymbol = "¤"

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"RUB": "₽",
	"KRW": "₩",
	"CNY": "¥",
	"BRL": "R$",
	"CHF": "CHF",
	"CAD": "C$",
	"AUD": "A$",
}

// CurrencySymbol maps an ISO code to its display symbol. Lookup is exact:
// "usd" is unknown.
func CurrencySymbol(code string) string {
	if s, ok := symbols[code]; ok {
		return s
	}
	return GenericSymbol
}

// FormatAmount renders an amount with its currency symbol and two decimals,
// e.g. "$12.50".
func FormatAmount(amount decimal.Decimal, code string) string {
	return CurrencySymbol(code) + amount.StringFixed(2)
}

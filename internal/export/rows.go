// Package export writes transaction lists as CSV, XLSX or rows appended to a
// Google spreadsheet. All formats share the same five columns.
package export

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Header is the column row of every export format.
var Header = []string{"Date", "Description", "Category", "Type", "Amount"}

const (
	dateLayout   = "2006-01-02"
	defaultSheet = "Transactions"
)

// FileName builds a download name such as transactions-2024-01-31.csv.
func FileName(ext string, now time.Time) string {
	return fmt.Sprintf("transactions-%s.%s", now.Format(dateLayout), ext)
}

func date(t core.Transaction) string {
	return t.OccurredAt.UTC().Format(dateLayout)
}

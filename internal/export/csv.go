package export

import (
	"bufio"
	"fmt"
	"io"

	"fintrack/internal/core"
)

// CSV writes one header line and one line per transaction, in the given
// order. Description and Category are wrapped in double quotes so embedded
// commas survive. Embedded quote characters are written as-is, not doubled,
// which keeps the output identical to files produced by earlier versions but
// makes it invalid RFC 4180 when a field contains a quote.
//
// Example row: 2024-01-01,"Coffee, Tea","Food",expense,5.5
func CSV(w io.Writer, txs []core.Transaction) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s,%s,%s,%s,%s\n", Header[0], Header[1], Header[2], Header[3], Header[4]); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		_, err := fmt.Fprintf(bw, "%s,\"%s\",\"%s\",%s,%s\n",
			date(t), t.Description, t.Category, t.Kind, core.FormatAmount(t.Amount))
		if err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

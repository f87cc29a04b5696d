package export

import (
	"fmt"
	"io"

	"fintrack/internal/core"
	"github.com/xuri/excelize/v2"
)

// XLSX writes the same columns as CSV into a single-sheet workbook. Amount is
// stored as a number so spreadsheet formulas work on it.
func XLSX(w io.Writer, txs []core.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", defaultSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(defaultSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, t := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{date(t), t.Description, t.Category, string(t.Kind), t.Amount.InexactFloat64()}
		if err := f.SetSheetRow(defaultSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(defaultSheet, "B", "C", 30); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

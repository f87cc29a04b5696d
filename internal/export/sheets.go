package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// SheetsExporter appends transactions to a Google spreadsheet tab.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// SheetsConfig selects the spreadsheet and the service-account credentials.
// CredentialsJSON wins over CredentialsFile when both are set.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func NewSheetsExporter(ctx context.Context, cfg SheetsConfig, logger *log.Logger) (*SheetsExporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var credentials []byte
	switch {
	case cfg.CredentialsJSON != "":
		credentials = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewSheetsExporterWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewSheetsExporterWithService uses an already configured service.
func NewSheetsExporterWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *SheetsExporter {
	if sheetName == "" {
		sheetName = defaultSheet
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}
}

// Append adds one row per transaction below the existing data and returns the
// updated range.
func (e *SheetsExporter) Append(ctx context.Context, txs []core.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", nil
	}

	values := make([][]any, 0, len(txs))
	for _, t := range txs {
		values = append(values, []any{date(t), t.Description, t.Category, string(t.Kind), t.Amount.InexactFloat64()})
	}

	rng := fmt.Sprintf("%s!A:E", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", e.sheetName, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Exported transactions to Google Sheets",
		log.FieldCount, len(txs), "range", updated)
	return updated, nil
}

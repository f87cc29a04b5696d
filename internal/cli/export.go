package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

// Formats accepted by Export.
const (
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
	FormatSheets = "sheets"
)

// ExportOptions describe one offline export run.
type ExportOptions struct {
	Email    string
	Password string
	Format   string
	// Out receives csv and xlsx output. It is unused for sheets.
	Out io.Writer
	// Sheets is required for the sheets format.
	Sheets *export.SheetsExporter
}

// Export signs in with a throwaway session, waits for the owner's
// transactions to load and writes them in the requested format. The session
// is signed out before returning.
func Export(ctx context.Context, deps session.Deps, opts ExportOptions) (int, error) {
	switch opts.Format {
	case FormatCSV, FormatXLSX:
		if opts.Out == nil {
			return 0, errors.New("missing output")
		}
	case FormatSheets:
		if opts.Sheets == nil {
			return 0, errors.New("sheets export is not configured")
		}
	default:
		return 0, fmt.Errorf("unknown format %q", opts.Format)
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}

	sess := session.New(deps)
	defer sess.Close()

	res := sess.Provider.SignIn(ctx, opts.Email, opts.Password)
	if !res.OK() {
		return 0, fmt.Errorf("%s: %w", res.Reason(), res.Err)
	}
	defer func() {
		if err := sess.Provider.SignOut(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Sign out after export failed", log.FieldError, err)
		}
	}()

	vs, err := sess.WaitSynced(ctx)
	if err != nil {
		return 0, err
	}
	if vs.Err != nil {
		return 0, vs.Err
	}

	txs := vs.Transactions
	switch opts.Format {
	case FormatCSV:
		err = export.CSV(opts.Out, txs)
	case FormatXLSX:
		err = export.XLSX(opts.Out, txs)
	case FormatSheets:
		_, err = opts.Sheets.Append(ctx, txs)
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", opts.Format, err)
	}
	return len(txs), nil
}

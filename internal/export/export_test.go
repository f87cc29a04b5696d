package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func coffee() core.Transaction {
	return core.Transaction{
		ID:          "t1",
		Amount:      decimal.RequireFromString("5.50"),
		Description: "Coffee, Tea",
		Category:    "Food",
		Kind:        core.KindExpense,
		OccurredAt:  time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		OwnerID:     "u1",
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, []core.Transaction{coffee()}))

	assert.Equal(t,
		"Date,Description,Category,Type,Amount\n"+
			"2024-01-01,\"Coffee, Tea\",\"Food\",expense,5.5\n",
		buf.String())
}

func TestCSVEmptyAndQuotes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, nil))
	assert.Equal(t, "Date,Description,Category,Type,Amount\n", buf.String())

	tx := coffee()
	tx.Description = `say "hi"`
	tx.Amount = decimal.NewFromInt(12)
	tx.Kind = core.KindIncome
	buf.Reset()
	require.NoError(t, CSV(&buf, []core.Transaction{tx}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `2024-01-01,"say "hi"","Food",income,12`, lines[1])
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, []core.Transaction{coffee()}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-01-01", "Coffee, Tea", "Food", "expense", "5.5"}, rows[1])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "transactions-2024-03-09.csv", FileName("csv", time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)))
}

func TestSheetsAppend(t *testing.T) {
	var gotPath string
	var gotBody gsheet.ValueRange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Transactions!A2:E2"}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	e := NewSheetsExporterWithService(svc, "sheet-id", "", nil)
	rng, err := e.Append(context.Background(), []core.Transaction{coffee()})
	require.NoError(t, err)
	assert.Equal(t, "Transactions!A2:E2", rng)
	assert.Contains(t, gotPath, "sheet-id")
	require.Len(t, gotBody.Values, 1)
	assert.Equal(t, "Coffee, Tea", gotBody.Values[0][1])
	assert.Equal(t, 5.5, gotBody.Values[0][4])

	rng, err = e.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rng)
}

func TestNewSheetsExporterValidation(t *testing.T) {
	_, err := NewSheetsExporter(context.Background(), SheetsConfig{}, nil)
	assert.ErrorContains(t, err, "spreadsheet id")

	_, err = NewSheetsExporter(context.Background(), SheetsConfig{SpreadsheetID: "x"}, nil)
	assert.ErrorContains(t, err, "credentials")

	_, err = NewSheetsExporter(context.Background(), SheetsConfig{SpreadsheetID: "x", CredentialsFile: "/nonexistent.json"}, nil)
	assert.ErrorContains(t, err, "read service account file")
}

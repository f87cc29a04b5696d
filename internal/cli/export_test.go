package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity/local"
	"fintrack/internal/prefs"
	"fintrack/internal/session"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

func seededDeps(t *testing.T) session.Deps {
	t.Helper()
	ctx := context.Background()
	backend := local.New(local.NewMemoryUsers(), local.Config{
		Secret:     "cli-test-secret-cli-test-secret!!",
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, nil)
	ts := store.New(memory.New())
	p, err := prefs.Open(prefs.NewMemoryKV(), nil)
	require.NoError(t, err)

	sess, err := backend.CreateUser(ctx, "eve@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, backend.Revoke(ctx, sess.Token))

	for i, tx := range []core.Transaction{
		{Amount: decimal.RequireFromString("100"), Description: "Salary", Category: "Work", Kind: core.KindIncome},
		{Amount: decimal.RequireFromString("5.5"), Description: "Coffee", Category: "Food", Kind: core.KindExpense},
	} {
		tx.OwnerID = sess.Owner.ID
		tx.OccurredAt = time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC)
		_, err := ts.Insert(ctx, tx)
		require.NoError(t, err)
	}
	return session.Deps{Identity: backend, Store: ts, Prefs: p}
}

func exportCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := Export(exportCtx(t), seededDeps(t), ExportOptions{
		Email:    "eve@example.com",
		Password: "secret1",
		Format:   FormatCSV,
		Out:      &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := "Date,Description,Category,Type,Amount\n" +
		"2024-01-02,\"Coffee\",\"Food\",expense,5.5\n" +
		"2024-01-01,\"Salary\",\"Work\",income,100\n"
	assert.Equal(t, want, buf.String())
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	n, err := Export(exportCtx(t), seededDeps(t), ExportOptions{
		Email:    "eve@example.com",
		Password: "secret1",
		Format:   FormatXLSX,
		Out:      &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExportErrors(t *testing.T) {
	deps := seededDeps(t)
	ctx := exportCtx(t)

	_, err := Export(ctx, deps, ExportOptions{Email: "eve@example.com", Password: "wrong-pw", Format: FormatCSV, Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = Export(ctx, deps, ExportOptions{Email: "eve@example.com", Password: "secret1", Format: "pdf"})
	assert.ErrorContains(t, err, "unknown format")

	_, err = Export(ctx, deps, ExportOptions{Email: "eve@example.com", Password: "secret1", Format: FormatSheets})
	assert.ErrorContains(t, err, "not configured")

	_, err = Export(ctx, deps, ExportOptions{Email: "eve@example.com", Password: "secret1", Format: FormatCSV})
	assert.ErrorContains(t, err, "missing output")
}

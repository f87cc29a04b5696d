package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity/local"
	"fintrack/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTx(id, owner string, kind core.Kind, amount string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		Description: "desc " + id,
		Category:    "cat",
		Kind:        kind,
		OccurredAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		OwnerID:     owner,
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Put(ctx, sampleTx("a", "u1", core.KindIncome, "100.25")))
	require.NoError(t, repo.Put(ctx, sampleTx("b", "u1", core.KindExpense, "40")))
	require.NoError(t, repo.Put(ctx, sampleTx("c", "u2", core.KindExpense, "1")))

	raws, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	txs, dropped := core.DecodeAll(raws)
	assert.Zero(t, dropped)
	require.Len(t, txs, 2)

	totals := core.Summarize(txs)
	assert.True(t, totals.Income.Equal(decimal.RequireFromString("100.25")))
	assert.True(t, totals.Balance.Equal(decimal.RequireFromString("60.25")))
}

func TestDeleteAndOverwriteByLogicalID(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Put(ctx, sampleTx("a", "u1", core.KindExpense, "40")))

	n, err := repo.Overwrite(ctx, sampleTx("a", "u2", core.KindExpense, "55"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Overwrite(ctx, sampleTx("a", "u1", core.KindExpense, "55"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raws, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "55", raws[0][core.FieldAmount])

	n, err = repo.DeleteMatching(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.DeleteMatching(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := store.New(newRepo(t))

	sub, err := s.ObserveAll(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()
	<-sub.Updates()

	in, err := s.Insert(ctx, sampleTx("", "u1", core.KindIncome, "10"))
	require.NoError(t, err)
	assert.NotEmpty(t, in.ID)

	select {
	case snap := <-sub.Updates():
		require.Len(t, snap, 1)
		assert.Equal(t, in.ID, snap[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after insert")
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	u := local.User{
		ID:           "id-1",
		Email:        "a@example.com",
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateUser(ctx, u))
	assert.ErrorIs(t, repo.CreateUser(ctx, u), core.ErrAlreadyExists)

	require.NoError(t, repo.UpdateDisplayName(ctx, "id-1", "Ann"))
	assert.ErrorIs(t, repo.UpdateDisplayName(ctx, "nope", "x"), core.ErrNotFound)

	got, err := repo.UserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.DisplayName)
	assert.Equal(t, []byte("hash"), got.PasswordHash)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt))

	_, err = repo.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPreferencesKV(t *testing.T) {
	kv := newRepo(t).Preferences()

	_, ok, err := kv.GetString("currencyCode")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.SetString("currencyCode", "EUR"))
	require.NoError(t, kv.SetString("currencyCode", "GBP"))
	v, ok, err := kv.GetString("currencyCode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "GBP", v)

	require.NoError(t, kv.SetBool("darkTheme", true))
	b, ok, err := kv.GetBool("darkTheme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)

	v, err = RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
}

func TestRollbackMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	_, err := RunMigrations(path)
	require.NoError(t, err)

	v, err := RollbackMigrations(path, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	v, err = RollbackMigrations(path, 5)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	v, err = RollbackMigrations(path, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	assert.Equal(t, uint(3), repo.SchemaVersion())
}

package viewstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/live"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type harness struct {
	records *memory.Records
	store   *store.Store
	owners  *live.Value[*core.Owner]
	ctrl    *Controller
}

func start(t *testing.T) *harness {
	t.Helper()
	recs := memory.New()
	h := &harness{
		records: recs,
		store:   store.New(recs),
		owners:  live.NewValue[*core.Owner](nil),
	}
	h.ctrl = New(h.store, h.owners, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return h
}

func (h *harness) signIn(id string) {
	h.owners.Set(&core.Owner{ID: id, Email: id + "@example.com"})
}

func (h *harness) seed(t *testing.T, owner string, kind core.Kind, amount string, day int) core.Transaction {
	t.Helper()
	tx, err := h.store.Insert(context.Background(), core.Transaction{
		Amount:     decimal.RequireFromString(amount),
		Kind:       kind,
		OccurredAt: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		OwnerID:    owner,
	})
	require.NoError(t, err)
	return tx
}

func (h *harness) waitState(t *testing.T, cond func(core.ViewState) bool) core.ViewState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.ctrl.State().Get()) }, waitFor, 5*time.Millisecond)
	return h.ctrl.State().Get()
}

func synced(owner string, n int) func(core.ViewState) bool {
	return func(vs core.ViewState) bool {
		return vs.OwnerID == owner && !vs.IsLoading && len(vs.Transactions) == n
	}
}

func TestSyncedTotals(t *testing.T) {
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "100", 1)
	h.seed(t, "u1", core.KindExpense, "40", 2)

	h.signIn("u1")
	vs := h.waitState(t, synced("u1", 2))

	assert.True(t, vs.TotalIncome.Equal(decimal.NewFromInt(100)))
	assert.True(t, vs.TotalExpenses.Equal(decimal.NewFromInt(40)))
	assert.True(t, vs.Balance.Equal(decimal.NewFromInt(60)))
	assert.Nil(t, vs.Err)

	balance, err := h.store.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(vs.Balance))
}

func TestTransactionsMostRecentFirst(t *testing.T) {
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "1", 3)
	h.seed(t, "u1", core.KindIncome, "2", 9)
	h.seed(t, "u1", core.KindIncome, "3", 5)

	h.signIn("u1")
	vs := h.waitState(t, synced("u1", 3))
	assert.Equal(t, 9, vs.Transactions[0].OccurredAt.Day())
	assert.Equal(t, 5, vs.Transactions[1].OccurredAt.Day())
	assert.Equal(t, 3, vs.Transactions[2].OccurredAt.Day())
}

func TestAddAndEditTransaction(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	h.signIn("u1")
	h.waitState(t, synced("u1", 0))

	_, err := h.ctrl.AddTransaction(ctx, core.Transaction{Amount: decimal.NewFromInt(100), Kind: core.KindIncome})
	require.NoError(t, err)
	expense, err := h.ctrl.AddTransaction(ctx, core.Transaction{
		Amount:   decimal.NewFromInt(40),
		Kind:     core.KindExpense,
		Category: "food",
		OwnerID:  "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", expense.OwnerID)
	assert.NotEmpty(t, expense.ID)
	h.waitState(t, synced("u1", 2))

	edited, err := h.ctrl.EditTransaction(ctx, expense.ID, Changes{
		Amount:      decimal.NewFromInt(55),
		Description: "groceries",
		Category:    "food",
		Kind:        core.KindExpense,
	})
	require.NoError(t, err)
	assert.Equal(t, expense.ID, edited.ID)
	assert.Equal(t, "u1", edited.OwnerID)
	assert.True(t, edited.OccurredAt.Equal(expense.OccurredAt))

	vs := h.waitState(t, func(vs core.ViewState) bool {
		return vs.Balance.Equal(decimal.NewFromInt(45))
	})
	got, ok := vs.Find(expense.ID)
	require.True(t, ok)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, "groceries", got.Description)
}

func TestEditUnknownIsNotFound(t *testing.T) {
	h := start(t)
	h.signIn("u1")
	h.waitState(t, synced("u1", 0))

	_, err := h.ctrl.EditTransaction(context.Background(), "missing", Changes{Amount: decimal.NewFromInt(1), Kind: core.KindIncome})
	assert.ErrorIs(t, err, core.ErrNotFound)
	vs := h.waitState(t, func(vs core.ViewState) bool { return vs.Err != nil })
	assert.ErrorIs(t, vs.Err, core.ErrNotFound)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "10", 1)
	h.signIn("u1")
	h.waitState(t, synced("u1", 1))

	require.NoError(t, h.ctrl.DeleteTransaction(context.Background(), "missing"))
	vs := h.ctrl.State().Get()
	assert.Len(t, vs.Transactions, 1)
	assert.Nil(t, vs.Err)
}

func TestDeleteClearsEditing(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	tx := h.seed(t, "u1", core.KindIncome, "10", 1)
	h.signIn("u1")
	h.waitState(t, synced("u1", 1))

	require.NoError(t, h.ctrl.BeginEdit(ctx, tx.ID))
	require.NotNil(t, h.ctrl.State().Get().Editing)

	require.NoError(t, h.ctrl.DeleteTransaction(ctx, tx.ID))
	vs := h.waitState(t, synced("u1", 0))
	assert.Nil(t, vs.Editing)
}

func TestBeginAndCancelEdit(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	tx := h.seed(t, "u1", core.KindExpense, "7", 1)
	h.signIn("u1")
	h.waitState(t, synced("u1", 1))

	assert.ErrorIs(t, h.ctrl.BeginEdit(ctx, "nope"), core.ErrNotFound)

	require.NoError(t, h.ctrl.BeginEdit(ctx, tx.ID))
	vs := h.ctrl.State().Get()
	require.NotNil(t, vs.Editing)
	assert.Equal(t, tx.ID, vs.Editing.ID)

	require.NoError(t, h.ctrl.CancelEdit(ctx))
	assert.Nil(t, h.ctrl.State().Get().Editing)
}

func TestSignOutResetsAndStopsUpdates(t *testing.T) {
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "100", 1)
	h.signIn("u1")
	h.waitState(t, synced("u1", 1))

	h.owners.Set(nil)
	vs := h.waitState(t, func(vs core.ViewState) bool { return vs.OwnerID == "" })
	assert.Empty(t, vs.Transactions)
	assert.True(t, vs.Balance.IsZero())
	assert.True(t, vs.TotalIncome.IsZero())
	assert.True(t, vs.TotalExpenses.IsZero())
	assert.False(t, vs.IsLoading)

	h.seed(t, "u1", core.KindIncome, "5", 2)
	time.Sleep(50 * time.Millisecond)
	after := h.ctrl.State().Get()
	assert.Equal(t, vs.Version, after.Version)
	assert.Empty(t, after.Transactions)
}

func TestMutationsRequireOwner(t *testing.T) {
	ctx := context.Background()
	h := start(t)

	_, err := h.ctrl.AddTransaction(ctx, core.Transaction{Amount: decimal.NewFromInt(1), Kind: core.KindIncome})
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.ErrorIs(t, h.ctrl.DeleteTransaction(ctx, "x"), core.ErrUnauthorized)
	_, err = h.ctrl.EditTransaction(ctx, "x", Changes{})
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	vs := h.ctrl.State().Get()
	assert.ErrorIs(t, vs.Err, core.ErrUnauthorized)
	assert.NotEmpty(t, vs.Error)
}

func TestSubscriptionFailureKeepsDataUntilRetry(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "100", 1)
	h.signIn("u1")
	h.waitState(t, synced("u1", 1))

	h.records.FailLoads(errors.New("store unreachable"))
	require.Error(t, h.store.Refresh(ctx, "u1"))

	vs := h.waitState(t, func(vs core.ViewState) bool { return vs.Err != nil })
	assert.ErrorIs(t, vs.Err, core.ErrSubscription)
	assert.Len(t, vs.Transactions, 1)
	assert.True(t, vs.Balance.Equal(decimal.NewFromInt(100)))

	h.records.FailLoads(nil)
	h.seed(t, "u1", core.KindIncome, "5", 2)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.ctrl.State().Get().Transactions, 1)

	require.NoError(t, h.ctrl.Retry(ctx))
	vs = h.waitState(t, synced("u1", 2))
	assert.Nil(t, vs.Err)
}

// slowStore holds back the first owner's initial load so that it lands after
// the owner has already changed.
type slowStore struct {
	store.TransactionStore
	release chan struct{}
	feeds   map[string]*live.Value[[]core.Transaction]
}

func (s *slowStore) ObserveAll(_ context.Context, ownerID string) (store.Snapshots, error) {
	if ownerID == "u1" {
		<-s.release
	}
	return s.feeds[ownerID].Subscribe(), nil
}

func TestStaleOwnerStreamIsDiscarded(t *testing.T) {
	u1tx := core.Transaction{ID: "a", OwnerID: "u1", Kind: core.KindIncome, Amount: decimal.NewFromInt(1000)}
	u2tx := core.Transaction{ID: "b", OwnerID: "u2", Kind: core.KindIncome, Amount: decimal.NewFromInt(1)}
	ss := &slowStore{
		release: make(chan struct{}),
		feeds: map[string]*live.Value[[]core.Transaction]{
			"u1": live.NewValue([]core.Transaction{u1tx}),
			"u2": live.NewValue([]core.Transaction{u2tx}),
		},
	}
	owners := live.NewValue[*core.Owner](nil)
	ctrl := New(ss, owners, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	states := ctrl.State().Subscribe()
	defer states.Close()
	var (
		mu   sync.Mutex
		seen []core.ViewState
	)
	go func() {
		for {
			select {
			case vs := <-states.Updates():
				mu.Lock()
				seen = append(seen, vs)
				mu.Unlock()
			case <-states.Done():
				return
			}
		}
	}()

	owners.Set(&core.Owner{ID: "u1"})
	time.Sleep(20 * time.Millisecond)
	owners.Set(&core.Owner{ID: "u2"})
	require.Eventually(t, func() bool {
		vs := ctrl.State().Get()
		return vs.OwnerID == "u2" && len(vs.Transactions) == 1
	}, waitFor, 5*time.Millisecond)

	close(ss.release)
	ss.feeds["u1"].Set([]core.Transaction{u1tx, u1tx})
	time.Sleep(100 * time.Millisecond)

	final := ctrl.State().Get()
	assert.Equal(t, "u2", final.OwnerID)
	require.Len(t, final.Transactions, 1)
	assert.Equal(t, "b", final.Transactions[0].ID)

	mu.Lock()
	defer mu.Unlock()
	for _, vs := range seen {
		for _, tx := range vs.Transactions {
			assert.Equal(t, vs.OwnerID, tx.OwnerID)
			if vs.OwnerID == "u2" {
				assert.NotEqual(t, "a", tx.ID)
			}
		}
	}
}

func TestSameOwnerUpdateKeepsSubscription(t *testing.T) {
	h := start(t)
	h.seed(t, "u1", core.KindIncome, "1", 1)
	h.signIn("u1")
	before := h.waitState(t, synced("u1", 1))

	h.owners.Set(&core.Owner{ID: "u1", DisplayName: "renamed"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before.Version, h.ctrl.State().Get().Version)
}

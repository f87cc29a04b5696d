package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Totals is the aggregate of one snapshot of transactions.
type Totals struct {
	Income   decimal.Decimal `json:"totalIncome"`
	Expenses decimal.Decimal `json:"totalExpenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// Summarize sums a snapshot. Balance is always Income minus Expenses.
func Summarize(txs []Transaction) Totals {
	income, expenses := decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Kind {
		case KindIncome:
			income = income.Add(t.Amount)
		case KindExpense:
			expenses = expenses.Add(t.Amount)
		}
	}
	return Totals{Income: income, Expenses: expenses, Balance: income.Sub(expenses)}
}

// SortRecentFirst orders transactions by OccurredAt descending, ties broken by
// ID so that equal timestamps render in a stable order.
func SortRecentFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].OccurredAt.Equal(txs[j].OccurredAt) {
			return txs[i].OccurredAt.After(txs[j].OccurredAt)
		}
		return txs[i].ID < txs[j].ID
	})
}

// FilterKind returns the transactions of one kind. An empty kind keeps all.
func FilterKind(txs []Transaction, kind Kind) []Transaction {
	if kind == "" {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// ViewState is the derived summary published to presentation layers. It is
// rebuilt wholesale on every upstream change.
type ViewState struct {
	OwnerID       string          `json:"ownerId,omitempty"`
	Version       uint64          `json:"version"`
	Transactions  []Transaction   `json:"transactions"`
	Balance       decimal.Decimal `json:"balance"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	IsLoading     bool            `json:"isLoading"`
	Err           error           `json:"-"`
	Error         string          `json:"error,omitempty"`
	Editing       *Transaction    `json:"transactionBeingEdited,omitempty"`
}

// EmptyViewState is the signed-out state.
func EmptyViewState() ViewState {
	return ViewState{
		Transactions:  []Transaction{},
		Balance:       decimal.Zero,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
}

// WithError returns a copy carrying err in both its typed and display form.
func (v ViewState) WithError(err error) ViewState {
	v.Err = err
	v.Error = ""
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// Find returns the transaction with the given logical id from the snapshot.
func (v ViewState) Find(id string) (Transaction, bool) {
	for _, t := range v.Transactions {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}

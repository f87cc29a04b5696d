// Package store provides owner-scoped transaction persistence with live
// snapshots.
package store

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/live"
	"github.com/shopspring/decimal"
)

// Snapshots is a live feed of complete transaction lists for one owner.
type Snapshots = *live.Subscription[[]core.Transaction]

// TransactionStore is the contract consumed by the view controller, the
// change-bus worker and the HTTP layer. Every operation is scoped by owner.
type TransactionStore interface {
	// ObserveAll delivers the owner's full snapshot after the initial load and
	// again after every change. Snapshot order is unspecified.
	ObserveAll(ctx context.Context, ownerID string) (Snapshots, error)
	ObserveByKind(ctx context.Context, ownerID string, kind core.Kind) (Snapshots, error)

	SumIncome(ctx context.Context, ownerID string) (decimal.Decimal, error)
	SumExpenses(ctx context.Context, ownerID string) (decimal.Decimal, error)
	Balance(ctx context.Context, ownerID string) (decimal.Decimal, error)

	// Insert assigns an ID when t.ID is empty and returns the stored value.
	Insert(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// Delete removes every record with t.ID owned by t.OwnerID. No match is
	// not an error.
	Delete(ctx context.Context, t core.Transaction) error
	// Update overwrites the record with t.ID owned by t.OwnerID, or returns
	// core.ErrNotFound.
	Update(ctx context.Context, t core.Transaction) error

	// Refresh reloads the owner's records and re-emits them to observers.
	Refresh(ctx context.Context, ownerID string) error
	Close() error
}

// Records is the raw persistence a Store is built on.
type Records interface {
	Load(ctx context.Context, ownerID string) ([]core.RawRecord, error)
	Put(ctx context.Context, t core.Transaction) error
	// DeleteMatching removes the owner's records with the given logical id and
	// reports how many were removed.
	DeleteMatching(ctx context.Context, ownerID, logicalID string) (int, error)
	// Overwrite replaces the owner's records with t.ID and reports how many
	// were replaced.
	Overwrite(ctx context.Context, t core.Transaction) (int, error)
	Close() error
}

// ChangePublisher announces that an owner's records changed so that other
// processes can refresh their observers.
type ChangePublisher interface {
	PublishOwnerChanged(ctx context.Context, ownerID string) error
}

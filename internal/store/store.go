package store

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store implements TransactionStore over any Records backend. It owns the hub
// that drives live observers and, optionally, a publisher for the change bus.
type Store struct {
	records   Records
	hub       *Hub
	publisher ChangePublisher
	logger    *log.Logger
	newID     func() string
}

type Option func(*Store)

// WithPublisher announces every successful mutation on the change bus.
func WithPublisher(p ChangePublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentStore) }
}

// WithIDGenerator replaces uuid generation, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(records Records, opts ...Option) *Store {
	s := &Store{
		records: records,
		logger:  log.Discard(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.load)
	return s
}

// Hub exposes the live fan-out, used by the change-bus worker.
func (s *Store) Hub() *Hub {
	return s.hub
}

func (s *Store) ObserveAll(ctx context.Context, ownerID string) (Snapshots, error) {
	return s.ObserveByKind(ctx, ownerID, "")
}

func (s *Store) ObserveByKind(ctx context.Context, ownerID string, kind core.Kind) (Snapshots, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if kind != "" && !kind.Valid() {
		return nil, core.NewValidationError("kind", "must be income or expense")
	}
	sub, err := s.hub.Observe(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("observe transactions: %w", err)
	}
	return sub, nil
}

func (s *Store) SumIncome(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	totals, err := s.totals(ctx, ownerID)
	return totals.Income, err
}

func (s *Store) SumExpenses(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	totals, err := s.totals(ctx, ownerID)
	return totals.Expenses, err
}

// Balance is SumIncome minus SumExpenses, computed from a single load.
func (s *Store) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	totals, err := s.totals(ctx, ownerID)
	return totals.Balance, err
}

func (s *Store) Insert(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.records.Put(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction inserted",
		log.FieldOwnerID, t.OwnerID,
		log.FieldTxID, t.ID,
		log.FieldKind, t.Kind.String(),
		log.FieldAmount, t.Amount.String())

	s.changed(ctx, t.OwnerID)
	return t, nil
}

func (s *Store) Delete(ctx context.Context, t core.Transaction) error {
	if err := requireOwner(t.OwnerID); err != nil {
		return err
	}
	n, err := s.records.DeleteMatching(ctx, t.OwnerID, t.ID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		s.logger.DebugContext(ctx, "Delete matched no records",
			log.FieldOwnerID, t.OwnerID, log.FieldTxID, t.ID)
		return nil
	}

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOwnerID, t.OwnerID, log.FieldTxID, t.ID, log.FieldCount, n)

	s.changed(ctx, t.OwnerID)
	return nil
}

func (s *Store) Update(ctx context.Context, t core.Transaction) error {
	if t.ID == "" {
		return core.NewValidationError("id", "required")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	n, err := s.records.Overwrite(ctx, t)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
	}

	s.logger.InfoContext(ctx, "Transaction updated",
		log.FieldOwnerID, t.OwnerID,
		log.FieldTxID, t.ID,
		log.FieldKind, t.Kind.String(),
		log.FieldAmount, t.Amount.String())

	s.changed(ctx, t.OwnerID)
	return nil
}

func (s *Store) Refresh(ctx context.Context, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return s.hub.Refresh(ctx, ownerID)
}

func (s *Store) Close() error {
	return s.records.Close()
}

// Transactions is a one-shot read of the owner's decodable records.
func (s *Store) Transactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.load(ctx, ownerID)
}

// load reads and decodes the owner's records. Records that fail to decode or
// belong to someone else are dropped and counted.
func (s *Store) load(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	raws, err := s.records.Load(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	txs, dropped := core.DecodeAll(raws)
	kept := txs[:0]
	for _, t := range txs {
		if t.OwnerID != ownerID {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	if dropped > 0 {
		s.logger.WarnContext(ctx, "Dropped undecodable transaction records",
			log.FieldOwnerID, ownerID, log.FieldDropped, dropped)
	}
	return kept, nil
}

func (s *Store) totals(ctx context.Context, ownerID string) (core.Totals, error) {
	txs, err := s.Transactions(ctx, ownerID)
	if err != nil {
		return core.Totals{}, err
	}
	return core.Summarize(txs), nil
}

// changed re-emits to local observers and notifies other processes. The
// mutation has already been persisted, so failures here are only logged.
func (s *Store) changed(ctx context.Context, ownerID string) {
	if err := s.hub.Refresh(ctx, ownerID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to refresh observers",
			log.FieldOwnerID, ownerID, log.FieldError, err)
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOwnerChanged(ctx, ownerID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish owner change",
			log.FieldOwnerID, ownerID, log.FieldError, err)
	}
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("owner id required: %w", core.ErrUnauthorized)
	}
	return nil
}

var _ TransactionStore = (*Store)(nil)

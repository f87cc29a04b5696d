// Package viewstate turns the signed-in owner and that owner's live
// transactions into a published ViewState.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/live"
	"fintrack/internal/log"
	"fintrack/internal/store"
	"github.com/shopspring/decimal"
)

// Changes are the fields an edit may replace. Identity, ownership and the
// occurrence time of the original record are always kept.
type Changes struct {
	Amount      decimal.Decimal
	Description string
	Category    string
	Kind        core.Kind
}

type event struct {
	gen   uint64
	owner string
	snap  []core.Transaction
	err   error
}

// Controller is the only writer of its ViewState. All state changes happen on
// the goroutine running Run; other methods hand work to it.
type Controller struct {
	store  store.TransactionStore
	owners *live.Value[*core.Owner]
	state  *live.Value[core.ViewState]
	logger *log.Logger
	now    func() time.Time

	cmds   chan func()
	events chan event
	done   chan struct{}

	// Owned by the run loop.
	owner   *core.Owner
	gen     uint64
	stop    context.CancelFunc
	failed  bool
	version uint64
	current core.ViewState
}

func New(ts store.TransactionStore, owners *live.Value[*core.Owner], logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Discard()
	}
	empty := core.EmptyViewState()
	return &Controller{
		store:   ts,
		owners:  owners,
		state:   live.NewValue(empty),
		logger:  logger.WithComponent(log.ComponentViewState),
		now:     time.Now,
		cmds:    make(chan func()),
		events:  make(chan event),
		done:    make(chan struct{}),
		current: empty,
	}
}

// State is the published ViewState.
func (c *Controller) State() *live.Value[core.ViewState] {
	return c.state
}

// Run processes owner changes, snapshots and commands until ctx is done. It
// must be called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	owners := c.owners.Subscribe()
	defer owners.Close()
	defer c.cancelSubscription()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o := <-owners.Updates():
			c.switchOwner(ctx, o)
		case ev := <-c.events:
			c.apply(ctx, ev)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// Retry resubscribes after a stream failure. It is a no-op while signed out.
func (c *Controller) Retry(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.owner == nil {
			return nil
		}
		c.logger.InfoContext(ctx, "Retrying subscription", log.FieldOwnerID, c.owner.ID)
		next := c.current.WithError(nil)
		next.IsLoading = true
		c.publish(next)
		c.subscribe(ctx)
		return nil
	})
}

// BeginEdit marks a transaction of the current snapshot as being edited.
func (c *Controller) BeginEdit(ctx context.Context, id string) error {
	return c.do(ctx, func() error {
		t, ok := c.current.Find(id)
		if !ok {
			return fmt.Errorf("begin edit %s: %w", id, core.ErrNotFound)
		}
		next := c.current
		next.Editing = &t
		c.publish(next)
		return nil
	})
}

func (c *Controller) CancelEdit(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.current.Editing == nil {
			return nil
		}
		next := c.current
		next.Editing = nil
		c.publish(next)
		return nil
	})
}

// AddTransaction stores t for the signed-in owner and forces a resync. The
// owner always comes from the session, never from t.
func (c *Controller) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	owner, err := c.requireOwner(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	t.OwnerID = owner.ID
	if t.OccurredAt.IsZero() {
		t.OccurredAt = c.now().UTC()
	}

	saved, err := c.store.Insert(ctx, t)
	if err != nil {
		return core.Transaction{}, c.fail(ctx, fmt.Errorf("add transaction: %w", err))
	}
	c.resync(ctx, owner.ID)
	return saved, nil
}

// DeleteTransaction removes the transaction with id. Deleting an id that does
// not exist succeeds without effect.
func (c *Controller) DeleteTransaction(ctx context.Context, id string) error {
	owner, err := c.requireOwner(ctx)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, core.Transaction{ID: id, OwnerID: owner.ID}); err != nil {
		return c.fail(ctx, fmt.Errorf("delete transaction: %w", err))
	}
	c.clearEditing(ctx, id)
	c.resync(ctx, owner.ID)
	return nil
}

// EditTransaction replaces amount, description, category and kind of the
// transaction with id, as found in the current snapshot.
func (c *Controller) EditTransaction(ctx context.Context, id string, ch Changes) (core.Transaction, error) {
	owner, err := c.requireOwner(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	snapshot := c.state.Get()
	orig, ok := snapshot.Find(id)
	if !ok || snapshot.OwnerID != owner.ID {
		return core.Transaction{}, c.fail(ctx, fmt.Errorf("edit transaction %s: %w", id, core.ErrNotFound))
	}

	edited := orig
	edited.Amount = ch.Amount
	edited.Description = ch.Description
	edited.Category = ch.Category
	edited.Kind = ch.Kind

	if err := c.store.Update(ctx, edited); err != nil {
		return core.Transaction{}, c.fail(ctx, fmt.Errorf("edit transaction: %w", err))
	}
	c.clearEditing(ctx, id)
	c.resync(ctx, owner.ID)
	return edited, nil
}

func (c *Controller) switchOwner(ctx context.Context, o *core.Owner) {
	if o == nil && c.owner == nil {
		return
	}
	if o != nil && c.owner != nil && o.ID == c.owner.ID {
		c.owner = o
		return
	}

	c.cancelSubscription()
	c.owner = o
	c.failed = false

	if o == nil {
		c.logger.InfoContext(ctx, "Owner signed out, clearing view")
		c.publish(core.EmptyViewState())
		return
	}

	c.logger.InfoContext(ctx, "Owner changed, subscribing", log.FieldOwnerID, o.ID)
	loading := core.EmptyViewState()
	loading.OwnerID = o.ID
	loading.IsLoading = true
	c.publish(loading)
	c.subscribe(ctx)
}

// subscribe starts a new generation. The previous forwarder, if any, must
// already be cancelled.
func (c *Controller) subscribe(ctx context.Context) {
	c.cancelSubscription()
	c.failed = false
	c.gen++
	subCtx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	go c.forward(subCtx, c.gen, c.owner.ID)
}

func (c *Controller) cancelSubscription() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// forward relays one subscription into the run loop, tagging every event with
// its generation.
func (c *Controller) forward(ctx context.Context, gen uint64, ownerID string) {
	sub, err := c.store.ObserveAll(ctx, ownerID)
	if err != nil {
		c.send(ctx, event{gen: gen, owner: ownerID, err: err})
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sub.Updates():
			if !c.send(ctx, event{gen: gen, owner: ownerID, snap: snap}) {
				return
			}
		case <-sub.Done():
			err := sub.Err()
			if err == nil {
				return
			}
			c.send(ctx, event{gen: gen, owner: ownerID, err: err})
			return
		}
	}
}

func (c *Controller) send(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) apply(ctx context.Context, ev event) {
	if ev.gen != c.gen || c.owner == nil || ev.owner != c.owner.ID {
		c.logger.DebugContext(ctx, "Discarding stale event",
			log.FieldGeneration, ev.gen, log.FieldOwnerID, ev.owner)
		return
	}
	if c.failed {
		return
	}

	if ev.err != nil {
		c.failed = true
		c.cancelSubscription()
		if !errors.Is(ev.err, core.ErrSubscription) {
			ev.err = fmt.Errorf("%w: %w", core.ErrSubscription, ev.err)
		}
		c.logger.ErrorContext(ctx, "Subscription failed",
			log.FieldOwnerID, ev.owner, log.FieldError, ev.err)
		next := c.current.WithError(ev.err)
		next.IsLoading = false
		c.publish(next)
		return
	}

	txs := make([]core.Transaction, 0, len(ev.snap))
	for _, t := range ev.snap {
		if t.OwnerID == ev.owner {
			txs = append(txs, t)
		}
	}
	core.SortRecentFirst(txs)
	totals := core.Summarize(txs)

	next := core.ViewState{
		OwnerID:       ev.owner,
		Transactions:  txs,
		Balance:       totals.Balance,
		TotalIncome:   totals.Income,
		TotalExpenses: totals.Expenses,
	}
	if e := c.current.Editing; e != nil {
		if t, ok := findIn(txs, e.ID); ok {
			next.Editing = &t
		}
	}
	c.publish(next)
}

func (c *Controller) publish(vs core.ViewState) {
	c.version++
	vs.Version = c.version
	if vs.Transactions == nil {
		vs.Transactions = []core.Transaction{}
	}
	c.current = vs
	c.state.Set(vs)
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	cmd := func() { reply <- fn() }
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errStopped = errors.New("view controller stopped")

func (c *Controller) requireOwner(ctx context.Context) (*core.Owner, error) {
	owner := c.owners.Get()
	if owner == nil {
		return nil, c.fail(ctx, fmt.Errorf("mutation while signed out: %w", core.ErrUnauthorized))
	}
	return owner, nil
}

// fail records err on the published state and returns it. The loop keeps
// running and the next snapshot replaces the error.
func (c *Controller) fail(ctx context.Context, err error) error {
	c.logger.WarnContext(ctx, "Mutation failed", log.FieldError, err)
	_ = c.do(ctx, func() error {
		c.publish(c.current.WithError(err))
		return nil
	})
	return err
}

func (c *Controller) clearEditing(ctx context.Context, id string) {
	_ = c.do(ctx, func() error {
		if c.current.Editing != nil && c.current.Editing.ID == id {
			next := c.current
			next.Editing = nil
			c.publish(next)
		}
		return nil
	})
}

// resync forces the store to re-emit after a mutation, in addition to the
// store's own propagation.
func (c *Controller) resync(ctx context.Context, ownerID string) {
	if err := c.store.Refresh(ctx, ownerID); err != nil {
		c.logger.WarnContext(ctx, "Resync after mutation failed",
			log.FieldOwnerID, ownerID, log.FieldError, err)
	}
}

func findIn(txs []core.Transaction, id string) (core.Transaction, bool) {
	i := slices.IndexFunc(txs, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return core.Transaction{}, false
	}
	return txs[i], true
}

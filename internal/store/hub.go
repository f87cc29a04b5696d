package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/live"
)

// LoadFunc loads and decodes an owner's current transactions.
type LoadFunc func(ctx context.Context, ownerID string) ([]core.Transaction, error)

type feedKey struct {
	owner string
	kind  core.Kind
}

// Hub fans owner snapshots out to live observers. Each (owner, kind) pair has
// one live.Value; a refresh loads the owner once and sets every feed. A feed
// is dropped as soon as its last subscriber closes, so a later Observe always
// starts with a fresh load.
type Hub struct {
	load LoadFunc

	// refreshMu keeps loads and publications in order so that an older load
	// never overwrites a newer one.
	refreshMu sync.Mutex

	mu    sync.Mutex
	feeds map[feedKey]*live.Value[[]core.Transaction]
}

func NewHub(load LoadFunc) *Hub {
	return &Hub{
		load:  load,
		feeds: make(map[feedKey]*live.Value[[]core.Transaction]),
	}
}

// Observe subscribes to an owner's snapshots, filtered by kind when kind is
// not empty. The first snapshot is available once Observe returns.
func (h *Hub) Observe(ctx context.Context, ownerID string, kind core.Kind) (Snapshots, error) {
	v, sub := h.subscribe(ownerID, kind)
	if v.Loaded() {
		return sub, nil
	}
	if err := h.Refresh(ctx, ownerID); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Refresh loads the owner's transactions and publishes them to every feed of
// that owner. On failure the feeds are failed with core.ErrSubscription and
// dropped, so the next Observe starts over.
func (h *Hub) Refresh(ctx context.Context, ownerID string) error {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	txs, err := h.load(ctx, ownerID)
	feeds := h.ownerFeeds(ownerID)
	if err != nil {
		failure := fmt.Errorf("%w: %w", core.ErrSubscription, err)
		h.mu.Lock()
		for k := range feeds {
			delete(h.feeds, k)
		}
		h.mu.Unlock()
		for _, v := range feeds {
			v.Fail(failure)
		}
		return fmt.Errorf("refresh owner %s: %w", ownerID, err)
	}

	for k, v := range feeds {
		v.Set(slices.Clone(core.FilterKind(txs, k.kind)))
	}
	return nil
}

// ActiveOwners lists owners that currently have at least one observer.
func (h *Hub) ActiveOwners() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]bool)
	var owners []string
	for k, v := range h.feeds {
		if v.Subscribers() == 0 {
			delete(h.feeds, k)
			continue
		}
		if !seen[k.owner] {
			seen[k.owner] = true
			owners = append(owners, k.owner)
		}
	}
	slices.Sort(owners)
	return owners
}

// subscribe finds or creates the feed and subscribes under the same lock, so
// ActiveOwners cannot prune a feed between the two steps.
func (h *Hub) subscribe(ownerID string, kind core.Kind) (*live.Value[[]core.Transaction], Snapshots) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := feedKey{owner: ownerID, kind: kind}
	v, ok := h.feeds[k]
	if !ok {
		v = live.NewEmpty[[]core.Transaction]()
		v.OnIdle(func() { h.release(k, v) })
		h.feeds[k] = v
	}
	return v, v.Subscribe()
}

// release drops the feed for k if it is still v and nobody subscribed in the
// meantime. subscribe holds h.mu while subscribing, so the check cannot race
// with a new observer.
func (h *Hub) release(k feedKey, v *live.Value[[]core.Transaction]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.feeds[k]; ok && cur == v && v.Subscribers() == 0 {
		delete(h.feeds, k)
	}
}

// Feeds is the number of live (owner, kind) feeds.
func (h *Hub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

func (h *Hub) ownerFeeds(ownerID string) map[feedKey]*live.Value[[]core.Transaction] {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[feedKey]*live.Value[[]core.Transaction])
	for k, v := range h.feeds {
		if k.owner == ownerID {
			out[k] = v
		}
	}
	return out
}

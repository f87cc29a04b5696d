package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	origin string
	msgs   chan *notify.OwnerChangedMessage
}

func (b *fakeBus) PublishOwnerChanged(_ context.Context, ownerID string) error {
	b.msgs <- notify.NewOwnerChangedMessage(ownerID, b.origin)
	return nil
}

func (b *fakeBus) Consume(ctx context.Context, h notify.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-b.msgs:
			_ = h(ctx, m)
		}
	}
}

func (b *fakeBus) Origin() string { return b.origin }
func (b *fakeBus) Close() error   { return nil }

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *fakeRefresher) Refresh(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ownerID)
	return r.fail[ownerID]
}

func (r *fakeRefresher) refreshed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func owners(ids ...string) func() []string {
	return func() []string { return ids }
}

func TestHandleOwnerChanged(t *testing.T) {
	ctx := context.Background()
	bus := &fakeBus{origin: "me"}
	ref := &fakeRefresher{}
	w := NewChangeListener(bus, ref, owners("u1"), 0, nil)

	require.NoError(t, w.HandleOwnerChanged(ctx, &notify.OwnerChangedMessage{OwnerID: "u1", Origin: "me"}))
	require.NoError(t, w.HandleOwnerChanged(ctx, &notify.OwnerChangedMessage{OwnerID: "u2", Origin: "other"}))
	assert.Empty(t, ref.refreshed())

	require.NoError(t, w.HandleOwnerChanged(ctx, &notify.OwnerChangedMessage{OwnerID: "u1", Origin: "other"}))
	assert.Equal(t, []string{"u1"}, ref.refreshed())

	ref.fail = map[string]error{"u1": errors.New("down")}
	assert.Error(t, w.HandleOwnerChanged(ctx, &notify.OwnerChangedMessage{OwnerID: "u1", Origin: "other"}))
}

func TestProcessActiveOwners(t *testing.T) {
	ref := &fakeRefresher{fail: map[string]error{"u2": errors.New("down")}}
	w := NewChangeListener(&fakeBus{origin: "me"}, ref, owners("u1", "u2", "u3"), 0, nil)

	err := w.ProcessActiveOwners(context.Background())
	assert.ErrorContains(t, err, "1 of 3")
	assert.Equal(t, []string{"u1", "u2", "u3"}, ref.refreshed())

	empty := NewChangeListener(&fakeBus{origin: "me"}, ref, owners(), 0, nil)
	assert.NoError(t, empty.ProcessActiveOwners(context.Background()))
}

func TestRunConsumesAndSweeps(t *testing.T) {
	bus := &fakeBus{origin: "me", msgs: make(chan *notify.OwnerChangedMessage, 4)}
	ref := &fakeRefresher{}
	w := NewChangeListener(bus, ref, owners("u1"), 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	bus.msgs <- &notify.OwnerChangedMessage{OwnerID: "u1", Origin: "remote"}
	assert.Eventually(t, func() bool { return len(ref.refreshed()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

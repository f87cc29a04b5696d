// Package live provides continuously updated values with explicit
// subscribe/unsubscribe and replace-snapshot semantics.
//
// A Value holds the latest snapshot. Every Set replaces it wholesale and offers
// it to all subscribers. Delivery coalesces: a slow subscriber skips
// intermediate snapshots but always ends up with the latest one.
package live

import (
	"sync"
)

// Value is an observable holder of the latest T.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	has    bool
	nextID uint64
	subs   map[uint64]*Subscription[T]
	idle   func()
}

// NewValue returns a Value that already holds initial. Subscribers receive it
// immediately.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, has: true, subs: make(map[uint64]*Subscription[T])}
}

// NewEmpty returns a Value without a snapshot. Subscribers receive nothing
// until the first Set.
func NewEmpty[T any]() *Value[T] {
	return &Value[T]{subs: make(map[uint64]*Subscription[T])}
}

// Get returns the current snapshot.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Loaded reports whether a snapshot has been set.
func (v *Value[T]) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.has
}

// Set replaces the snapshot and notifies all subscribers.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	v.has = true
	for _, s := range v.subs {
		s.offer(x)
	}
}

// Update applies fn to the current snapshot under the lock and publishes the
// result.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	v.has = true
	for _, s := range v.subs {
		s.offer(v.cur)
	}
	return v.cur
}

// Subscribe registers a new subscriber. If a snapshot exists it is queued for
// delivery right away.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	s := newSubscription[T](func() { v.remove(id) })
	v.subs[id] = s
	if v.has {
		s.offer(v.cur)
	}
	return s
}

// Fail ends every current subscription with err. The value itself stays
// usable and new subscribers are accepted.
func (v *Value[T]) Fail(err error) {
	v.mu.Lock()
	subs := v.subs
	v.subs = make(map[uint64]*Subscription[T])
	v.mu.Unlock()

	for _, s := range subs {
		s.end(err)
	}
}

// OnIdle registers fn to run whenever a Close leaves the value without
// subscribers. fn runs without the value's lock held.
func (v *Value[T]) OnIdle(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idle = fn
}

// Subscribers returns the number of open subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) remove(id uint64) {
	v.mu.Lock()
	delete(v.subs, id)
	var idle func()
	if len(v.subs) == 0 {
		idle = v.idle
	}
	v.mu.Unlock()

	if idle != nil {
		idle()
	}
}

package live

import "sync"

// Subscription receives snapshots from a Value until it is closed or failed.
type Subscription[T any] struct {
	updates chan T
	done    chan struct{}
	once    sync.Once
	detach  func()

	mu  sync.Mutex
	err error
}

func newSubscription[T any](detach func()) *Subscription[T] {
	return &Subscription[T]{
		updates: make(chan T, 1),
		done:    make(chan struct{}),
		detach:  detach,
	}
}

// Updates delivers snapshots. Only the latest undelivered snapshot is kept.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed once the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the subscription, or nil if it was
// closed by its owner or is still open.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.detach != nil {
			s.detach()
		}
	})
}

func (s *Subscription[T]) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// offer is only called with the parent Value locked, so there is a single
// sender at a time.
func (s *Subscription[T]) offer(x T) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- x:
	default:
	}
}

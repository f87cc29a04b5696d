// Package session bundles the per-client objects: one identity Provider, one
// view Controller running on its own goroutine, and the process-wide
// preferences.
package session

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/prefs"
	"fintrack/internal/store"
	"fintrack/internal/viewstate"
	"github.com/google/uuid"
)

// Deps are shared by every session of the process.
type Deps struct {
	Identity identity.Backend
	Store    store.TransactionStore
	Prefs    *prefs.Store
	Logger   *log.Logger
}

type Session struct {
	ID         string
	Provider   *identity.Provider
	Controller *viewstate.Controller
	Prefs      *prefs.Store

	logger *log.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a signed-out session. Close must be called to stop its
// controller.
func New(deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	id := uuid.NewString()
	logger = logger.WithComponent(log.ComponentSession).With("session_id", id)

	provider := identity.NewProvider(deps.Identity, logger)
	ctrl := viewstate.New(deps.Store, provider.CurrentOwner(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		Provider:   provider,
		Controller: ctrl,
		Prefs:      deps.Prefs,
		logger:     logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("View controller stopped", log.FieldError, err)
		}
	}()
	logger.Debug("Session started")
	return s
}

// Owner returns the signed-in owner or nil.
func (s *Session) Owner() *core.Owner {
	return s.Provider.CurrentOwner().Get()
}

// View returns the latest published ViewState.
func (s *Session) View() core.ViewState {
	return s.Controller.State().Get()
}

// WaitSynced blocks until the view belongs to the signed-in owner and is no
// longer loading, or until ctx is done.
func (s *Session) WaitSynced(ctx context.Context) (core.ViewState, error) {
	sub := s.Controller.State().Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return s.View(), ctx.Err()
		case vs := <-sub.Updates():
			owner := s.Owner()
			if owner == nil || (vs.OwnerID == owner.ID && !vs.IsLoading) {
				return vs, nil
			}
		}
	}
}

// Done is closed once the controller has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the controller, waits for it and stops watching the identity
// session. The token is not revoked, so the client can resume it later.
func (s *Session) Close() {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("View controller did not stop in time")
	}
	s.Provider.Detach()
}

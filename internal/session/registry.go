package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/prefs"
)

// Registry maps bearer tokens to live sessions. Idle sessions are evicted
// from the cache and closed; a later request with the same token resumes a
// fresh session.
type Registry struct {
	deps   Deps
	cache  *cache.LRUCache[*Session]
	logger *log.Logger

	// resumeMu keeps two requests with the same uncached token from
	// resuming two sessions.
	resumeMu sync.Mutex
}

func NewRegistry(deps Deps, size int, idle time.Duration) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	r := &Registry{deps: deps, logger: logger.WithComponent(log.ComponentSession)}
	r.cache = cache.NewLRUCache[*Session](size, idle, cache.WithEvict[*Session](func(_ string, s *Session) {
		s.Close()
	}))
	return r
}

// Cache exposes the underlying cache for periodic cleaning.
func (r *Registry) Cache() *cache.LRUCache[*Session] {
	return r.cache
}

// Prefs is the preference store shared by all sessions.
func (r *Registry) Prefs() *prefs.Store {
	return r.deps.Prefs
}

// Open starts a new signed-out session that is not yet registered.
func (r *Registry) Open() *Session {
	return New(r.deps)
}

// Register stores s under its current token. A signed-out session is closed
// instead.
func (r *Registry) Register(s *Session) string {
	token := s.Provider.Token()
	if token == "" {
		s.Close()
		return ""
	}
	r.cache.Set(token, s)
	return token
}

// Lookup returns the session for token, resuming it from the identity
// backend when it is not cached.
func (r *Registry) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("missing session token: %w", core.ErrUnauthorized)
	}
	if s, ok := r.cached(token); ok {
		return s, nil
	}

	r.resumeMu.Lock()
	defer r.resumeMu.Unlock()
	if s, ok := r.cached(token); ok {
		return s, nil
	}

	s := r.Open()
	res := s.Provider.Resume(ctx, token)
	if !res.OK() {
		s.Close()
		r.logger.DebugContext(ctx, "Session resume rejected", log.FieldError, res.Err)
		return nil, fmt.Errorf("resume session: %w", core.ErrUnauthorized)
	}
	r.cache.Set(token, s)
	return s, nil
}

// cached returns a live cached session for token. A cached session whose
// token ended is dropped.
func (r *Registry) cached(token string) (*Session, bool) {
	s, ok := r.cache.Get(token)
	if !ok {
		return nil, false
	}
	if s.Provider.Token() == token {
		return s, true
	}
	r.cache.Delete(token)
	return nil, false
}

// Forget drops token from the registry and closes its session.
func (r *Registry) Forget(token string) {
	r.cache.Delete(token)
}

// Active is the number of cached sessions.
func (r *Registry) Active() int {
	return r.cache.Size()
}

// Close closes every session.
func (r *Registry) Close() {
	r.cache.Purge()
}

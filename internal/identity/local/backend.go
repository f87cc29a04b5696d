// Package local is a self-hosted identity backend: bcrypt password hashes,
// JWT session tokens and in-process session tracking with expiry timers.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input limit
)

type Config struct {
	Secret     string
	Issuer     string
	SessionTTL time.Duration
	BcryptCost int
}

type session struct {
	ownerID string
	timer   *time.Timer
}

type Backend struct {
	users  UserStore
	tokens *TokenManager
	cost   int
	ttl    time.Duration
	logger *log.Logger

	mu        sync.Mutex
	sessions  map[string]*session
	watchers  map[string]map[uint64]func(identity.Event)
	nextWatch uint64
}

func New(users UserStore, cfg Config, logger *log.Logger) *Backend {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "fintrack"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Backend{
		users:    users,
		tokens:   NewTokenManager(cfg.Secret, cfg.Issuer, cfg.SessionTTL),
		cost:     cfg.BcryptCost,
		ttl:      cfg.SessionTTL,
		logger:   logger.WithComponent(log.ComponentIdentity),
		sessions: make(map[string]*session),
		watchers: make(map[string]map[uint64]func(identity.Event)),
	}
}

func (b *Backend) CreateUser(ctx context.Context, email, password string) (identity.Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return identity.Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return identity.Session{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := b.users.CreateUser(ctx, u); err != nil {
		return identity.Session{}, err
	}

	b.logger.InfoContext(ctx, "User created", log.FieldOwnerID, u.ID)
	return b.open(u.Owner())
}

func (b *Backend) UpdateDisplayName(ctx context.Context, ownerID, displayName string) (core.Owner, error) {
	if err := b.users.UpdateDisplayName(ctx, ownerID, strings.TrimSpace(displayName)); err != nil {
		return core.Owner{}, fmt.Errorf("update display name: %w", err)
	}
	u, err := b.users.UserByID(ctx, ownerID)
	if err != nil {
		return core.Owner{}, fmt.Errorf("reload user: %w", err)
	}
	return u.Owner(), nil
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (identity.Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return identity.Session{}, err
	}

	u, err := b.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return identity.Session{}, core.ErrUnauthorized
		}
		return identity.Session{}, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return identity.Session{}, core.ErrUnauthorized
	}
	return b.open(u.Owner())
}

// Verify accepts only tokens that are validly signed and still tracked as an
// open session.
func (b *Backend) Verify(ctx context.Context, token string) (core.Owner, error) {
	ownerID, err := b.tokens.Parse(token)
	if err != nil {
		return core.Owner{}, fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
	}

	b.mu.Lock()
	s, ok := b.sessions[token]
	b.mu.Unlock()
	if !ok || s.ownerID != ownerID {
		return core.Owner{}, fmt.Errorf("session not active: %w", core.ErrUnauthorized)
	}

	u, err := b.users.UserByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Owner{}, core.ErrUnauthorized
		}
		return core.Owner{}, fmt.Errorf("get user: %w", err)
	}
	return u.Owner(), nil
}

// Revoke ends a session. Unknown tokens are ignored.
func (b *Backend) Revoke(_ context.Context, token string) error {
	b.end(token, identity.SessionRevoked)
	return nil
}

func (b *Backend) RevokeAll(ctx context.Context, ownerID string) error {
	b.mu.Lock()
	var tokens []string
	for t, s := range b.sessions {
		if s.ownerID == ownerID {
			tokens = append(tokens, t)
		}
	}
	b.mu.Unlock()

	for _, t := range tokens {
		b.end(t, identity.SessionRevoked)
	}
	b.logger.InfoContext(ctx, "Sessions revoked", log.FieldOwnerID, ownerID, log.FieldCount, len(tokens))
	return nil
}

// Watch registers fn for the end of token's session. A token that is not open
// is reported as revoked right away.
func (b *Backend) Watch(token string, fn func(identity.Event)) func() {
	b.mu.Lock()
	if _, ok := b.sessions[token]; !ok {
		b.mu.Unlock()
		go fn(identity.Event{Kind: identity.SessionRevoked, Token: token})
		return func() {}
	}
	id := b.nextWatch
	b.nextWatch++
	if b.watchers[token] == nil {
		b.watchers[token] = make(map[uint64]func(identity.Event))
	}
	b.watchers[token][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.watchers[token], id)
		if len(b.watchers[token]) == 0 {
			delete(b.watchers, token)
		}
	}
}

// Watchers reports how many session watches are registered.
func (b *Backend) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ws := range b.watchers {
		n += len(ws)
	}
	return n
}

// ActiveSessions reports how many sessions are open.
func (b *Backend) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Backend) open(owner core.Owner) (identity.Session, error) {
	token, exp, err := b.tokens.Issue(owner.ID)
	if err != nil {
		return identity.Session{}, fmt.Errorf("issue token: %w", err)
	}

	b.mu.Lock()
	b.sessions[token] = &session{
		ownerID: owner.ID,
		timer:   time.AfterFunc(time.Until(exp), func() { b.end(token, identity.SessionExpired) }),
	}
	b.mu.Unlock()

	return identity.Session{Token: token, Owner: owner, ExpiresAt: exp}, nil
}

// end closes a session and notifies its watchers outside the lock, each on
// its own goroutine so a watcher may call back into the backend.
func (b *Backend) end(token string, kind identity.EventKind) {
	b.mu.Lock()
	s, ok := b.sessions[token]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.sessions, token)
	s.timer.Stop()
	watchers := b.watchers[token]
	delete(b.watchers, token)
	b.mu.Unlock()

	ev := identity.Event{Kind: kind, Token: token, OwnerID: s.ownerID}
	for _, fn := range watchers {
		go fn(ev)
	}
	b.logger.Debug("Session ended", log.FieldOwnerID, s.ownerID, "reason", kind.String())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	var errs []core.FieldError
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, core.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(password) < minPasswordLength {
		errs = append(errs, core.FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)})
	} else if len(password) > maxPasswordLength {
		errs = append(errs, core.FieldError{Field: "password", Message: fmt.Sprintf("must be at most %d characters", maxPasswordLength)})
	}
	if len(errs) > 0 {
		return core.NewValidationErrors(errs)
	}
	return nil
}

var _ identity.Backend = (*Backend)(nil)

// Package identity owns the signed-in owner of a session and the operations
// that change it.
package identity

import (
	"context"
	"time"

	"fintrack/internal/core"
)

type EventKind int

const (
	// SessionExpired is sent when a session token reaches its TTL.
	SessionExpired EventKind = iota + 1
	// SessionRevoked is sent when a session is revoked, locally or by a
	// revoke-all for its owner.
	SessionRevoked
)

func (k EventKind) String() string {
	switch k {
	case SessionExpired:
		return "expired"
	case SessionRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Event is a push notification about one session.
type Event struct {
	Kind    EventKind
	Token   string
	OwnerID string
}

// Session is an authenticated identity plus the token that proves it.
type Session struct {
	Token     string
	Owner     core.Owner
	ExpiresAt time.Time
}

// Backend is the identity service the Provider delegates to.
type Backend interface {
	// CreateUser registers the credentials and opens a session for the new
	// identity. The display name is set separately.
	CreateUser(ctx context.Context, email, password string) (Session, error)
	UpdateDisplayName(ctx context.Context, ownerID, displayName string) (core.Owner, error)
	// Authenticate returns core.ErrUnauthorized for unknown emails and wrong
	// passwords alike.
	Authenticate(ctx context.Context, email, password string) (Session, error)
	// Verify resolves a live token to its owner.
	Verify(ctx context.Context, token string) (core.Owner, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, ownerID string) error
	// Watch calls fn when the session behind token ends. fn must not block for
	// long and may run on any goroutine. The returned func stops the watch.
	Watch(token string, fn func(Event)) (cancel func())
}

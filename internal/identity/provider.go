package identity

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/live"
	"fintrack/internal/log"
)

// Provider tracks the owner signed in to one session. CurrentOwner holds nil
// while signed out.
type Provider struct {
	backend Backend
	logger  *log.Logger
	current *live.Value[*core.Owner]

	mu      sync.Mutex
	token   string
	unwatch func()
}

func NewProvider(backend Backend, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Discard()
	}
	return &Provider{
		backend: backend,
		logger:  logger.WithComponent(log.ComponentIdentity),
		current: live.NewValue[*core.Owner](nil),
	}
}

func (p *Provider) CurrentOwner() *live.Value[*core.Owner] {
	return p.current
}

// Token returns the active session token, or "" when signed out.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (res Result) {
	defer recoverInto(&res)

	sess, err := p.backend.Authenticate(ctx, email, password)
	if err != nil {
		p.logger.WarnContext(ctx, "Sign-in failed", log.FieldOperation, log.OpSignIn, log.FieldError, err)
		return Result{Err: fmt.Errorf("sign in: %w", err)}
	}
	p.attach(ctx, sess)
	p.logger.InfoContext(ctx, "Signed in", log.FieldOwnerID, sess.Owner.ID)
	owner := sess.Owner
	return Result{Owner: &owner}
}

// SignUp creates the identity and then sets its display name. When the second
// step fails the session stays open and the result carries both the partial
// owner and core.ErrPartialSignUp.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (res Result) {
	defer recoverInto(&res)

	sess, err := p.backend.CreateUser(ctx, email, password)
	if err != nil {
		p.logger.WarnContext(ctx, "Sign-up failed", log.FieldOperation, log.OpSignUp, log.FieldError, err)
		return Result{Err: fmt.Errorf("sign up: %w", err)}
	}
	p.attach(ctx, sess)

	owner, err := p.backend.UpdateDisplayName(ctx, sess.Owner.ID, displayName)
	if err != nil {
		p.logger.ErrorContext(ctx, "Sign-up left incomplete",
			log.FieldOwnerID, sess.Owner.ID, log.FieldError, err)
		partial := sess.Owner
		return Result{Owner: &partial, Err: fmt.Errorf("%w: %w", core.ErrPartialSignUp, err)}
	}

	p.mu.Lock()
	if p.token == sess.Token {
		p.current.Set(&owner)
	}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Signed up", log.FieldOwnerID, owner.ID)
	return Result{Owner: &owner}
}

// Resume attaches an existing session token, for transports that outlive the
// process that issued it.
func (p *Provider) Resume(ctx context.Context, token string) (res Result) {
	defer recoverInto(&res)

	owner, err := p.backend.Verify(ctx, token)
	if err != nil {
		return Result{Err: fmt.Errorf("resume session: %w", err)}
	}
	p.attach(ctx, Session{Token: token, Owner: owner})
	return Result{Owner: &owner}
}

// SignOut clears the local session first, so CurrentOwner is nil even when
// the backend cannot be reached to revoke the token.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.detachLocked()
	p.current.Set(nil)
	p.mu.Unlock()

	if token == "" {
		return nil
	}
	p.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpSignOut)
	if err := p.backend.Revoke(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Detach drops the local session and stops watching it without revoking the
// token, which stays valid for a later Resume.
func (p *Provider) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return
	}
	p.detachLocked()
	p.current.Set(nil)
}

// attach makes sess the active session, replacing and revoking any previous
// one.
func (p *Provider) attach(ctx context.Context, sess Session) {
	p.mu.Lock()
	prev := p.token
	p.detachLocked()
	p.token = sess.Token
	p.unwatch = p.backend.Watch(sess.Token, p.onEvent)
	owner := sess.Owner
	p.current.Set(&owner)
	p.mu.Unlock()

	if prev != "" && prev != sess.Token {
		if err := p.backend.Revoke(ctx, prev); err != nil {
			p.logger.WarnContext(ctx, "Failed to revoke replaced session", log.FieldError, err)
		}
	}
}

func (p *Provider) detachLocked() {
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch = nil
	}
	p.token = ""
}

func (p *Provider) onEvent(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Token == "" || ev.Token != p.token {
		return
	}
	p.detachLocked()
	p.current.Set(nil)
	p.logger.Info("Session ended", log.FieldOwnerID, ev.OwnerID, "reason", ev.Kind.String())
}

func recoverInto(res *Result) {
	if r := recover(); r != nil {
		*res = Result{Err: fmt.Errorf("identity backend panic: %v", r)}
	}
}

package auth

import (
	"context"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is one auth-state change notification. Session is nil on sign-out
// and on a token refresh that failed to produce a session.
type Event struct {
	Kind    EventKind
	Session *Session
}

type SignUpResult struct {
	UserID uuid.UUID

	// Session is nil when account confirmation is still pending.
	Session *Session
}

// Backend is the authentication provider consumed by the core. SignIn and
// SignUp errors must already be classified into the package taxonomy.
type Backend interface {
	SignIn(ctx context.Context, principal, secret string) (*Session, error)
	SignUp(ctx context.Context, principal, secret string, metadata map[string]string) (SignUpResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)

	// Subscribe registers a handler for auth-state events and returns an
	// unsubscribe func. Handlers are invoked sequentially in delivery order.
	Subscribe(handler func(Event)) (unsubscribe func())
}

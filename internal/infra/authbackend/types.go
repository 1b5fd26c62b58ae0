package authbackend

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Account is one provisioned auth identity. The secret is stored only as a
// bcrypt hash; the deterministic raw secret never persists.
type Account struct {
	ID         uuid.UUID
	Email      string
	SecretHash string
	Confirmed  bool
}

// AccountStore persists auth accounts. Create must be atomic with any
// bootstrap rows it writes (default role grant).
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, account Account, metadata map[string]string) (Account, error)
	Confirm(ctx context.Context, id uuid.UUID) error
}

// SessionMeta is the backend-specific payload carried in Session.Raw.
type SessionMeta struct {
	AccessExpiresAt time.Time
}

// SessionRecord is one refresh-token session.
type SessionRecord struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// SessionStore persists refresh-token sessions with a TTL.
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Find(ctx context.Context, token string) (SessionRecord, error)
	Delete(ctx context.Context, token string) error
}

// TokenVault is the locally persisted pointer to the live refresh token,
// used to rehydrate the session after a restart and wiped on logout.
type TokenVault interface {
	SaveRefreshToken(ctx context.Context, token string, ttl time.Duration) error
	CurrentRefreshToken(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

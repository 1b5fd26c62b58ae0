package authbackend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	authsvc "github.com/akulichev/memberdash/internal/services/auth"
)

const (
	minRefreshTTL = 24 * time.Hour
	maxRefreshTTL = 90 * 24 * time.Hour
)

type Config struct {
	RefreshTTL time.Duration

	// RequireEmailVerification makes SignUp return an account without a
	// session, leaving confirmation to an out-of-band step.
	RequireEmailVerification bool
}

// Adapter implements the auth backend over local stores: bcrypt-checked
// accounts, JWT access tokens, TTL-bound refresh sessions and a persisted
// refresh-token pointer for rehydration. All failures leave the adapter
// already classified into the core taxonomy.
type Adapter struct {
	accounts AccountStore
	sessions SessionStore
	vault    TokenVault
	tokens   *TokenManager
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	current  *authsvc.Session
	handlers map[int]func(authsvc.Event)
	nextID   int

	// emitMu keeps event delivery strictly ordered.
	emitMu sync.Mutex
}

func New(accounts AccountStore, sessions SessionStore, vault TokenVault, tokens *TokenManager, cfg Config, log *zap.Logger) *Adapter {
	if cfg.RefreshTTL < minRefreshTTL {
		cfg.RefreshTTL = minRefreshTTL
	}
	if cfg.RefreshTTL > maxRefreshTTL {
		cfg.RefreshTTL = maxRefreshTTL
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		accounts: accounts,
		sessions: sessions,
		vault:    vault,
		tokens:   tokens,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		handlers: make(map[int]func(authsvc.Event)),
	}
}

func (a *Adapter) SignIn(ctx context.Context, principal, secret string) (*authsvc.Session, error) {
	email := strings.ToLower(strings.TrimSpace(principal))
	if email == "" || secret == "" {
		return nil, authsvc.ErrInvalidCredentials
	}

	account, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, authsvc.ErrInvalidCredentials
		}
		return nil, classify(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)) != nil {
		return nil, authsvc.ErrInvalidCredentials
	}
	if !account.Confirmed {
		return nil, authsvc.ErrEmailNotConfirmed
	}

	session, err := a.issueSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	a.setCurrent(session)
	a.emit(authsvc.Event{Kind: authsvc.EventSignedIn, Session: session})
	return session, nil
}

func (a *Adapter) SignUp(ctx context.Context, principal, secret string, metadata map[string]string) (authsvc.SignUpResult, error) {
	email := strings.ToLower(strings.TrimSpace(principal))
	if email == "" || secret == "" {
		return authsvc.SignUpResult{}, fmt.Errorf("%w: empty credentials", authsvc.ErrSignupFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return authsvc.SignUpResult{}, fmt.Errorf("hash secret: %w", err)
	}

	account, err := a.accounts.Create(ctx, Account{
		Email:      email,
		SecretHash: string(hash),
		Confirmed:  !a.cfg.RequireEmailVerification,
	}, metadata)
	if err != nil {
		return authsvc.SignUpResult{}, classify(err)
	}

	a.log.Info("account created",
		zap.String("email", email),
		zap.Bool("confirmation_pending", a.cfg.RequireEmailVerification))

	if a.cfg.RequireEmailVerification {
		return authsvc.SignUpResult{UserID: account.ID}, nil
	}

	session, err := a.issueSession(ctx, account.ID)
	if err != nil {
		return authsvc.SignUpResult{}, err
	}
	a.setCurrent(session)
	a.emit(authsvc.Event{Kind: authsvc.EventSignedIn, Session: session})
	return authsvc.SignUpResult{UserID: account.ID, Session: session}, nil
}

func (a *Adapter) SignOut(ctx context.Context) error {
	a.mu.Lock()
	current := a.current
	a.current = nil
	a.mu.Unlock()

	var firstErr error
	if current != nil && current.Tokens.RefreshToken != "" {
		if err := a.sessions.Delete(ctx, current.Tokens.RefreshToken); err != nil && !errors.Is(err, ErrSessionNotFound) {
			firstErr = classify(err)
		}
	}
	if a.vault != nil {
		if err := a.vault.Clear(ctx); err != nil && firstErr == nil {
			firstErr = classify(err)
		}
	}

	if current != nil {
		a.emit(authsvc.Event{Kind: authsvc.EventSignedOut})
	}
	return firstErr
}

// GetSession returns the live session, rehydrating from the persisted
// refresh token after a restart. A nil session with nil error means
// "not signed in".
func (a *Adapter) GetSession(ctx context.Context) (*authsvc.Session, error) {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current != nil {
		return current, nil
	}
	if a.vault == nil {
		return nil, nil
	}

	token, err := a.vault.CurrentRefreshToken(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if token == "" {
		return nil, nil
	}

	record, err := a.sessions.Find(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	if a.now().After(record.ExpiresAt) {
		return nil, nil
	}

	session, err := a.buildSession(record.UserID, token, record.ExpiresAt)
	if err != nil {
		return nil, err
	}
	a.setCurrent(session)
	return session, nil
}

// Refresh rotates the refresh token and reissues the access token. On an
// expired or missing session it emits a token-refresh event without a
// session, which drives the listener's forced sign-out path.
func (a *Adapter) Refresh(ctx context.Context) (*authsvc.Session, error) {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil || current.Tokens.RefreshToken == "" {
		a.emit(authsvc.Event{Kind: authsvc.EventTokenRefreshed})
		return nil, ErrSessionNotFound
	}

	record, err := a.sessions.Find(ctx, current.Tokens.RefreshToken)
	if err != nil || a.now().After(record.ExpiresAt) {
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return nil, classify(err)
		}
		a.mu.Lock()
		a.current = nil
		a.mu.Unlock()
		a.emit(authsvc.Event{Kind: authsvc.EventTokenRefreshed})
		return nil, ErrSessionNotFound
	}

	if err := a.sessions.Delete(ctx, record.Token); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, classify(err)
	}
	session, err := a.issueSession(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	a.setCurrent(session)
	a.emit(authsvc.Event{Kind: authsvc.EventTokenRefreshed, Session: session})
	return session, nil
}

// Subscribe registers an auth-state handler. Events are delivered
// synchronously in emission order.
func (a *Adapter) Subscribe(handler func(authsvc.Event)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = handler
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.handlers, id)
		a.mu.Unlock()
	}
}

func (a *Adapter) issueSession(ctx context.Context, userID uuid.UUID) (*authsvc.Session, error) {
	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := a.now().Add(a.cfg.RefreshTTL)
	if err := a.sessions.Save(ctx, SessionRecord{
		Token:     refreshToken,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, classify(err)
	}
	if a.vault != nil {
		if err := a.vault.SaveRefreshToken(ctx, refreshToken, a.cfg.RefreshTTL); err != nil {
			return nil, classify(err)
		}
	}

	return a.buildSession(userID, refreshToken, expiresAt)
}

func (a *Adapter) buildSession(userID uuid.UUID, refreshToken string, expiresAt time.Time) (*authsvc.Session, error) {
	accessToken, accessExpires, err := a.tokens.GenerateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	return &authsvc.Session{
		UserID: userID,
		Tokens: authsvc.TokenSet{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
		ExpiresAt: expiresAt,
		Raw:       SessionMeta{AccessExpiresAt: accessExpires},
	}, nil
}

func (a *Adapter) setCurrent(session *authsvc.Session) {
	a.mu.Lock()
	a.current = session
	a.mu.Unlock()
}

func (a *Adapter) emit(ev authsvc.Event) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	handlers := make([]func(authsvc.Event), 0, len(a.handlers))
	for _, h := range a.handlers {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

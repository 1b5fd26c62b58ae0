package authbackend

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"

	authsvc "github.com/akulichev/memberdash/internal/services/auth"
)

type memAccounts struct {
	mu       sync.Mutex
	byEmail  map[string]Account
	metadata map[string]map[string]string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byEmail:  make(map[string]Account),
		metadata: make(map[string]map[string]string),
	}
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memAccounts) Create(_ context.Context, account Account, metadata map[string]string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[account.Email]; exists {
		return Account{}, ErrAccountExists
	}
	account.ID = uuid.New()
	s.byEmail[account.Email] = account
	s.metadata[account.Email] = metadata
	return account, nil
}

func (s *memAccounts) Confirm(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, account := range s.byEmail {
		if account.ID == id {
			account.Confirmed = true
			s.byEmail[email] = account
			return nil
		}
	}
	return ErrAccountNotFound
}

type memSessions struct {
	mu      sync.Mutex
	records map[string]SessionRecord
}

func newMemSessions() *memSessions {
	return &memSessions{records: make(map[string]SessionRecord)}
}

func (s *memSessions) Save(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Token] = record
	return nil
}

func (s *memSessions) Find(_ context.Context, token string) (SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	return record, nil
}

func (s *memSessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[token]; !ok {
		return ErrSessionNotFound
	}
	delete(s.records, token)
	return nil
}

type memVault struct {
	mu    sync.Mutex
	token string
}

func (v *memVault) SaveRefreshToken(_ context.Context, token string, _ time.Duration) error {
	v.mu.Lock()
	v.token = token
	v.mu.Unlock()
	return nil
}

func (v *memVault) CurrentRefreshToken(_ context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token, nil
}

func (v *memVault) Clear(_ context.Context) error {
	v.mu.Lock()
	v.token = ""
	v.mu.Unlock()
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []authsvc.Event
}

func (l *eventLog) record(ev authsvc.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []authsvc.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]authsvc.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

type adapterFixture struct {
	accounts *memAccounts
	sessions *memSessions
	vault    *memVault
	adapter  *Adapter
	events   *eventLog
}

func newAdapterFixture(requireVerification bool) *adapterFixture {
	f := &adapterFixture{
		accounts: newMemAccounts(),
		sessions: newMemSessions(),
		vault:    &memVault{},
		events:   &eventLog{},
	}
	f.adapter = New(f.accounts, f.sessions, f.vault, NewTokenManager("test-secret", 15*time.Minute), Config{
		RefreshTTL:               48 * time.Hour,
		RequireEmailVerification: requireVerification,
	}, nil)
	f.adapter.Subscribe(f.events.record)
	return f
}

func TestSignUpWithVerificationPending(t *testing.T) {
	f := newAdapterFixture(true)
	ctx := context.Background()

	res, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", map[string]string{"member_number": "AB123"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if res.UserID == uuid.Nil {
		t.Fatalf("signup must return the new account id")
	}
	if res.Session != nil {
		t.Fatalf("no session may be issued while confirmation is pending")
	}
	if f.accounts.metadata["ab123@temp.com"]["member_number"] != "AB123" {
		t.Fatalf("signup metadata was not persisted")
	}

	if _, err := f.adapter.SignIn(ctx, "ab123@temp.com", "AB123"); !errors.Is(err, authsvc.ErrEmailNotConfirmed) {
		t.Fatalf("unconfirmed account must not sign in, got %v", err)
	}

	if err := f.accounts.Confirm(ctx, res.UserID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	session, err := f.adapter.SignIn(ctx, "ab123@temp.com", "AB123")
	if err != nil {
		t.Fatalf("sign in after confirmation: %v", err)
	}
	if session.UserID != res.UserID {
		t.Fatalf("session user mismatch: %s vs %s", session.UserID, res.UserID)
	}
}

func TestSignUpWithoutVerificationEstablishesSession(t *testing.T) {
	f := newAdapterFixture(false)

	res, err := f.adapter.SignUp(context.Background(), "ab123@temp.com", "AB123", nil)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if res.Session == nil {
		t.Fatalf("signup without verification must establish a session")
	}
	if res.Session.Tokens.AccessToken == "" || res.Session.Tokens.RefreshToken == "" {
		t.Fatalf("session tokens missing: %+v", res.Session.Tokens)
	}

	kinds := f.events.kinds()
	if len(kinds) != 1 || kinds[0] != authsvc.EventSignedIn {
		t.Fatalf("expected one signed-in event, got %v", kinds)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newAdapterFixture(false)
	ctx := context.Background()

	if _, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", nil); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if _, err := f.adapter.SignIn(ctx, "ab123@temp.com", "wrong"); !errors.Is(err, authsvc.ErrInvalidCredentials) {
		t.Fatalf("wrong secret must read as invalid credentials, got %v", err)
	}
	if _, err := f.adapter.SignIn(ctx, "unknown@temp.com", "AB123"); !errors.Is(err, authsvc.ErrInvalidCredentials) {
		t.Fatalf("unknown principal must read as invalid credentials, got %v", err)
	}
}

func TestSignOutClearsEverything(t *testing.T) {
	f := newAdapterFixture(false)
	ctx := context.Background()

	res, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", nil)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	refreshToken := res.Session.Tokens.RefreshToken

	if err := f.adapter.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if token, _ := f.vault.CurrentRefreshToken(ctx); token != "" {
		t.Fatalf("vault must be cleared on sign-out")
	}
	if _, err := f.sessions.Find(ctx, refreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("refresh session must be deleted on sign-out")
	}
	if session, err := f.adapter.GetSession(ctx); err != nil || session != nil {
		t.Fatalf("no session may remain after sign-out: session=%v err=%v", session, err)
	}

	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[1] != authsvc.EventSignedOut {
		t.Fatalf("expected signed-in then signed-out, got %v", kinds)
	}
}

func TestGetSessionRehydratesFromVault(t *testing.T) {
	f := newAdapterFixture(false)
	ctx := context.Background()

	res, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", nil)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	// A fresh adapter over the same stores stands in for a process restart.
	restarted := New(f.accounts, f.sessions, f.vault, NewTokenManager("test-secret", 15*time.Minute), Config{
		RefreshTTL: 48 * time.Hour,
	}, nil)

	session, err := restarted.GetSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session == nil || session.UserID != res.UserID {
		t.Fatalf("rehydrated session mismatch: %+v", session)
	}
}

func TestGetSessionIgnoresExpiredRecord(t *testing.T) {
	f := newAdapterFixture(false)
	ctx := context.Background()

	if _, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", nil); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	restarted := New(f.accounts, f.sessions, f.vault, NewTokenManager("test-secret", 15*time.Minute), Config{
		RefreshTTL: 48 * time.Hour,
	}, nil)
	restarted.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	session, err := restarted.GetSession(ctx)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session != nil {
		t.Fatalf("an expired refresh session must not rehydrate")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newAdapterFixture(false)
	ctx := context.Background()

	res, err := f.adapter.SignUp(ctx, "ab123@temp.com", "AB123", nil)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	oldToken := res.Session.Tokens.RefreshToken

	session, err := f.adapter.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if session.Tokens.RefreshToken == oldToken {
		t.Fatalf("refresh token was not rotated")
	}
	if _, err := f.sessions.Find(ctx, oldToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old refresh session must be deleted")
	}

	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[1] != authsvc.EventTokenRefreshed {
		t.Fatalf("expected signed-in then token-refreshed, got %v", kinds)
	}
}

func TestRefreshWithoutSessionEmitsEmptyEvent(t *testing.T) {
	f := newAdapterFixture(false)

	_, err := f.adapter.Refresh(context.Background())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	if len(f.events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.events.events))
	}
	ev := f.events.events[0]
	if ev.Kind != authsvc.EventTokenRefreshed || ev.Session != nil {
		t.Fatalf("expected token-refresh without session, got %+v", ev)
	}
}

func TestClassifyTransientErrors(t *testing.T) {
	if !errors.Is(classify(syscall.ECONNREFUSED), authsvc.ErrNetworkTransient) {
		t.Fatalf("connection refused must classify as transient")
	}
	if !errors.Is(classify(context.DeadlineExceeded), authsvc.ErrNetworkTransient) {
		t.Fatalf("deadline exceeded must classify as transient")
	}
	if errors.Is(classify(errors.New("constraint violation")), authsvc.ErrNetworkTransient) {
		t.Fatalf("a plain failure must not classify as transient")
	}
	if classify(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestTokenManagerRoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, expires, err := m.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("token already expired")
	}

	parsed, _, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != userID {
		t.Fatalf("subject mismatch: %s vs %s", parsed, userID)
	}

	other := NewTokenManager("other-secret", 15*time.Minute)
	if _, _, err := other.ParseAccessToken(token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("a foreign secret must reject the token, got %v", err)
	}
}

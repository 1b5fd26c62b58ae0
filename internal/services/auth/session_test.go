package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akulichev/memberdash/internal/services/roles"
)

type stepTrace struct {
	mu    sync.Mutex
	steps []string
}

func (t *stepTrace) add(step string) {
	t.mu.Lock()
	t.steps = append(t.steps, step)
	t.mu.Unlock()
}

func (t *stepTrace) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

func TestStartAdoptsExistingSession(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
	}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)

	if _, loading := m.Current(); !loading {
		t.Fatalf("manager must report loading before Start")
	}

	m.Start(context.Background())
	defer m.Close()

	session, loading := m.Current()
	if loading {
		t.Fatalf("manager still loading after Start")
	}
	if session == nil || session.UserID != userID {
		t.Fatalf("existing session was not adopted")
	}
}

func TestStartSurvivesSessionFetchError(t *testing.T) {
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return nil, errors.New("backend unreachable")
		},
	}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)

	m.Start(context.Background())
	defer m.Close()

	session, loading := m.Current()
	if loading {
		t.Fatalf("fetch failure must still end the loading state")
	}
	if session != nil {
		t.Fatalf("fetch failure must resolve to no session")
	}
}

func TestLogoutClearsLocalStateBeforeBackendSignOut(t *testing.T) {
	trace := &stepTrace{}
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
		trace: trace.add,
	}
	cache := &fakeCache{trace: trace.add}
	store := &fakeLocalStore{trace: trace.add}
	nav := &fakeNavigator{}
	m := NewManager(backend, cache, store, nav, nil)
	m.Start(context.Background())
	defer m.Close()

	m.Logout(context.Background())

	want := []string{"cache_invalidate_all", "store_clear", "sign_out"}
	got := trace.snapshot()
	if len(got) != len(want) {
		t.Fatalf("unexpected teardown steps: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("teardown step #%d: got %q want %q (full: %v)", i+1, got[i], want[i], got)
		}
	}
	if session, _ := m.Current(); session != nil {
		t.Fatalf("session must be gone after logout")
	}
	if nav.last() != "login" {
		t.Fatalf("logout must navigate to login, got %q", nav.last())
	}
}

func TestLogoutEndsSessionDespiteBackendFailure(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
		signOutErr: errors.New("backend unreachable"),
	}
	nav := &fakeNavigator{}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, nav, nil)
	m.Start(context.Background())
	defer m.Close()

	m.Logout(context.Background())

	if session, _ := m.Current(); session != nil {
		t.Fatalf("a failed backend sign-out must still log out locally")
	}
	if nav.last() != "login" {
		t.Fatalf("logout must navigate to login, got %q", nav.last())
	}
}

func TestLogoutSurvivesSynchronousSignedOutEvent(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
	}
	backend.signOutFn = func(_ context.Context) error {
		// The production adapter notifies subscribers before SignOut
		// returns, on the caller's goroutine.
		backend.handler(Event{Kind: EventSignedOut})
		return nil
	}
	nav := &fakeNavigator{}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, nav, nil)
	m.Start(context.Background())
	defer m.Close()

	done := make(chan struct{})
	go func() {
		m.Logout(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("logout hung against a backend that emits signed-out synchronously")
	}

	if session, _ := m.Current(); session != nil {
		t.Fatalf("session must be gone after logout")
	}
	if got := backend.signOutCount(); got != 1 {
		t.Fatalf("unexpected sign-out count: %d", got)
	}
	if nav.last() != "login" {
		t.Fatalf("logout must navigate to login, got %q", nav.last())
	}
}

func TestLogoutConcurrentCallsCollapseToOneSignOut(t *testing.T) {
	userID := uuid.New()
	entered := make(chan struct{})
	proceed := make(chan struct{})
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
	}
	backend.signOutFn = func(_ context.Context) error {
		select {
		case entered <- struct{}{}:
			<-proceed
		default:
		}
		backend.handler(Event{Kind: EventSignedOut})
		return nil
	}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)
	m.Start(context.Background())
	defer m.Close()

	done := make(chan struct{})
	go func() {
		m.Logout(context.Background())
		close(done)
	}()

	// Second call lands while the first is mid sign-out and collapses.
	<-entered
	m.Logout(context.Background())
	close(proceed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("logout did not finish")
	}

	if got := backend.signOutCount(); got != 1 {
		t.Fatalf("overlapping logouts must produce one sign-out, got %d", got)
	}

	// The guard releases once the first logout completes.
	m.Logout(context.Background())
	if got := backend.signOutCount(); got != 2 {
		t.Fatalf("logout after completion must run, got %d sign-outs", got)
	}
}

func TestLogoutSkippedWhileGuardHeld(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)

	release, ok := m.beginExclusive()
	if !ok {
		t.Fatalf("guard should be free")
	}

	m.Logout(context.Background())
	if got := backend.signOutCount(); got != 0 {
		t.Fatalf("overlapping logout must collapse, got %d sign-outs", got)
	}

	release()
	m.Logout(context.Background())
	if got := backend.signOutCount(); got != 1 {
		t.Fatalf("logout after release must run, got %d sign-outs", got)
	}
}

func TestSignedOutEventClearsSession(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
	}
	cache := &fakeCache{}
	nav := &fakeNavigator{}
	m := NewManager(backend, cache, &fakeLocalStore{}, nav, nil)
	m.Start(context.Background())
	defer m.Close()

	backend.handler(Event{Kind: EventSignedOut})

	if session, _ := m.Current(); session != nil {
		t.Fatalf("signed-out event must clear the session")
	}
	if cache.alls == 0 {
		t.Fatalf("signed-out event must wipe the query cache")
	}
	if nav.last() != "login" {
		t.Fatalf("signed-out event must navigate to login, got %q", nav.last())
	}
}

func TestTokenRefreshWithoutSessionClears(t *testing.T) {
	userID := uuid.New()
	backend := &fakeBackend{
		getSession: func(_ context.Context) (*Session, error) {
			return testSession(userID), nil
		},
	}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)
	m.Start(context.Background())
	defer m.Close()

	backend.handler(Event{Kind: EventTokenRefreshed, Session: nil})

	if session, _ := m.Current(); session != nil {
		t.Fatalf("token refresh without a session is a sign-out")
	}
}

func TestSignedInEventInvalidatesRoleCache(t *testing.T) {
	backend := &fakeBackend{}
	cache := &fakeCache{}
	m := NewManager(backend, cache, &fakeLocalStore{}, &fakeNavigator{}, nil)
	m.Start(context.Background())
	defer m.Close()

	userID := uuid.New()
	backend.handler(Event{Kind: EventSignedIn, Session: testSession(userID)})

	session, _ := m.Current()
	if session == nil || session.UserID != userID {
		t.Fatalf("signed-in event must adopt the session")
	}
	if len(cache.keyCalls) != 1 {
		t.Fatalf("expected one targeted invalidation, got %v", cache.keyCalls)
	}
	if len(cache.keyCalls[0]) != 1 || cache.keyCalls[0][0] != roles.CacheKeyUserRoles {
		t.Fatalf("sign-in must invalidate the role cache only, got %v", cache.keyCalls[0])
	}
	if cache.alls != 0 {
		t.Fatalf("sign-in event must not wipe the whole cache")
	}
}

func TestWatchNotifiesAndCancelStops(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)

	var mu sync.Mutex
	var seen []SessionState
	cancel := m.Watch(func(state SessionState) {
		mu.Lock()
		seen = append(seen, state)
		mu.Unlock()
	})

	m.Start(context.Background())
	defer m.Close()

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("watcher should fire once on Start, got %d", n)
	}

	cancel()
	userID := uuid.New()
	backend.handler(Event{Kind: EventSignedIn, Session: testSession(userID)})

	mu.Lock()
	n = len(seen)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("cancelled watcher must not fire, got %d notifications", n)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, &fakeCache{}, &fakeLocalStore{}, &fakeNavigator{}, nil)
	m.Start(context.Background())

	m.Close()
	if backend.unsubs != 1 {
		t.Fatalf("Close must release the subscription, got %d", backend.unsubs)
	}

	m.Close()
	if backend.unsubs != 1 {
		t.Fatalf("second Close must be a no-op, got %d", backend.unsubs)
	}
}

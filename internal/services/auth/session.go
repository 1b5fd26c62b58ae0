package auth

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/services/roles"
)

// Invalidator drops cached query state so views refetch. InvalidateAll wipes
// everything; Invalidate drops the named keys only.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
	Invalidate(ctx context.Context, keys ...string) error
}

// LocalStore is the locally persisted auth state (tokens on disk, browser
// storage, etc.) cleared on logout.
type LocalStore interface {
	Clear(ctx context.Context) error
}

// Navigator receives forced navigation decisions.
type Navigator interface {
	ToLogin()
	ToDashboard()
}

type SessionState struct {
	Session *Session
	Loading bool
}

// Manager owns the current session. It is the only writer: the orchestrator
// hands established sessions over, the auth-state subscription drives
// transitions, and Logout tears everything down local-first.
type Manager struct {
	backend Backend
	cache   Invalidator
	store   LocalStore
	nav     Navigator
	log     *zap.Logger

	// handlerMu serializes auth-event handling and logout so one state
	// transition completes before the next begins.
	handlerMu sync.Mutex

	mu          sync.Mutex
	current     *Session
	loading     bool
	busy        bool
	baseCtx     context.Context
	unsubscribe func()
	watchers    map[int]func(SessionState)
	nextWatcher int
}

func NewManager(backend Backend, cache Invalidator, store LocalStore, nav Navigator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		backend:  backend,
		cache:    cache,
		store:    store,
		nav:      nav,
		log:      log,
		loading:  true,
		baseCtx:  context.Background(),
		watchers: make(map[int]func(SessionState)),
	}
}

// Start subscribes to auth-state events and performs the one-time fetch of
// the current session. A failed fetch is logged and treated as "no session";
// the manager still comes up.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = context.WithoutCancel(ctx)
	m.mu.Unlock()

	if m.backend == nil {
		m.log.Error("session manager started without a backend")
		m.setSession(nil)
		return
	}

	unsubscribe := m.backend.Subscribe(m.handleEvent)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	session, err := m.backend.GetSession(ctx)
	if err != nil {
		m.log.Error("initialize session", zap.Error(err))
		session = nil
	}
	m.setSession(session)
}

// Close releases the auth-state subscription. Safe to call on every exit
// path, including after a failed Start.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Current returns the live session (nil if none) and whether the initial
// session state is still loading.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.loading
}

// Watch registers a listener for session-state changes and returns a cancel
// func. The listener fires after each committed transition.
func (m *Manager) Watch(fn func(SessionState)) func() {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Logout ends the session. Single-flight: overlapping calls collapse onto
// the one in progress. Teardown is local-first; a failed backend sign-out is
// logged and the user is still logged out locally.
func (m *Manager) Logout(ctx context.Context) {
	release, ok := m.beginExclusive()
	if !ok {
		m.log.Debug("logout already in progress, skipping")
		return
	}
	defer release()

	m.handlerMu.Lock()
	if m.cache != nil {
		if err := m.cache.InvalidateAll(ctx); err != nil {
			m.log.Warn("clear query cache on logout", zap.Error(err))
		}
	}
	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			m.log.Warn("clear local storage on logout", zap.Error(err))
		}
	}
	m.setSession(nil)
	if m.nav != nil {
		m.nav.ToLogin()
	}
	m.handlerMu.Unlock()

	// The backend emits its signed-out event synchronously from SignOut,
	// re-entering handleEvent on this goroutine. handlerMu must already be
	// released here; the busy guard still keeps other logins/logouts out.
	if m.backend != nil {
		if err := m.backend.SignOut(ctx); err != nil {
			// Local state is already gone; the session ends regardless.
			m.log.Warn("backend sign-out failed, session ended locally", zap.Error(err))
		}
	}
}

// beginExclusive claims the session-mutating guard shared by logout and
// login. Reports false when another operation holds it.
func (m *Manager) beginExclusive() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return nil, false
	}
	m.busy = true
	return func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}, true
}

// establish adopts a freshly authenticated session and invalidates all
// cached query state so downstream views refetch under the new identity.
// Caller holds the exclusive guard.
func (m *Manager) establish(ctx context.Context, session *Session) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()

	m.setSession(session)
	if m.cache != nil {
		if err := m.cache.InvalidateAll(ctx); err != nil {
			m.log.Warn("invalidate caches after login", zap.Error(err))
		}
	}
	if m.nav != nil {
		m.nav.ToDashboard()
	}
}

// clearStale wipes any pre-existing session before a new login attempt so no
// stale token bleeds into it. Every failure is logged and swallowed.
func (m *Manager) clearStale(ctx context.Context) {
	if m.backend != nil {
		if err := m.backend.SignOut(ctx); err != nil {
			m.log.Debug("clear stale backend session", zap.Error(err))
		}
	}
	if m.cache != nil {
		if err := m.cache.InvalidateAll(ctx); err != nil {
			m.log.Debug("clear stale query cache", zap.Error(err))
		}
	}
	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			m.log.Debug("clear stale local storage", zap.Error(err))
		}
	}
	m.setSession(nil)
}

// handleEvent reacts to one auth-state notification. handlerMu keeps
// invocations strictly sequential in delivery order.
func (m *Manager) handleEvent(ev Event) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()

	m.mu.Lock()
	ctx := m.baseCtx
	m.mu.Unlock()

	switch {
	case ev.Kind == EventSignedOut || (ev.Kind == EventTokenRefreshed && ev.Session == nil):
		m.log.Info("auth state: signed out or token refresh without session")
		m.setSession(nil)
		if m.cache != nil {
			if err := m.cache.InvalidateAll(ctx); err != nil {
				m.log.Warn("invalidate caches on sign-out event", zap.Error(err))
			}
		}
		if m.nav != nil {
			m.nav.ToLogin()
		}

	case (ev.Kind == EventSignedIn || ev.Kind == EventTokenRefreshed) && ev.Session != nil:
		m.log.Info("auth state: session adopted", zap.String("event", string(ev.Kind)))
		m.setSession(ev.Session)
		if m.cache != nil {
			if err := m.cache.Invalidate(ctx, roles.CacheKeyUserRoles); err != nil {
				m.log.Warn("invalidate role cache on sign-in event", zap.Error(err))
			}
		}
	}
}

// setSession commits the new state and notifies watchers outside the state
// lock.
func (m *Manager) setSession(session *Session) {
	m.mu.Lock()
	m.current = session
	m.loading = false
	state := SessionState{Session: session, Loading: false}
	listeners := make([]func(SessionState), 0, len(m.watchers))
	for _, fn := range m.watchers {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

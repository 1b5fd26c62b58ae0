package routing

import (
	"github.com/akulichev/memberdash/internal/domain/enums"
	authsvc "github.com/akulichev/memberdash/internal/services/auth"
	"github.com/akulichev/memberdash/internal/services/roles"
)

const (
	LoginPath = "/login"

	ReasonNoSession        = "no session"
	ReasonInsufficientRole = "insufficient role"
)

// Decision is a per-route access verdict. A value, never stored.
type Decision struct {
	Allow bool

	// Defer means role state is still loading: render a loading indicator
	// and issue no redirect, so a slow role fetch never flashes the user
	// back to login.
	Defer bool

	Reason         string
	RedirectTarget string
}

// Decide composes session and role state into one navigation verdict.
// Pure; both inputs are snapshots.
func Decide(session *authsvc.Session, roleState roles.State, tab enums.Tab) Decision {
	if session == nil {
		return Decision{Reason: ReasonNoSession, RedirectTarget: LoginPath}
	}
	if roleState.Loading() {
		return Decision{Defer: true}
	}
	if !roles.CanAccess(roleState, tab) {
		return Decision{Reason: ReasonInsufficientRole}
	}
	return Decision{Allow: true}
}

// Guard binds the decision to the live session manager and role resolver.
type Guard struct {
	sessions *authsvc.Manager
	resolver *roles.Resolver
}

func NewGuard(sessions *authsvc.Manager, resolver *roles.Resolver) *Guard {
	return &Guard{sessions: sessions, resolver: resolver}
}

func (g *Guard) Decide(tab enums.Tab) Decision {
	session, loading := g.sessions.Current()
	if loading {
		// Session state itself is still initializing; same safe window as
		// loading roles.
		return Decision{Defer: true}
	}
	return Decide(session, g.resolver.Snapshot(), tab)
}

package roles

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/domain/enums"
)

var ErrValidation = errors.New("validation error")

// Assignment binds one role to one user. A user may hold several.
type Assignment struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Store is the authoritative role source. ListRoles returns every
// assignment for the user, empty slice when none.
type Store interface {
	ListRoles(ctx context.Context, userID uuid.UUID) ([]Assignment, error)
	InsertRole(ctx context.Context, userID uuid.UUID, role enums.Role) error
	DeleteRole(ctx context.Context, userID uuid.UUID, role enums.Role) error
}

// State is the cached RoleSet for the current user. Resolved distinguishes
// "not loaded yet" from "loaded and empty"; access checks must deny while
// unresolved rather than conflate the two.
type State struct {
	Roles    []enums.Role
	Resolved bool
	Err      error
}

func (s State) Loading() bool { return !s.Resolved }

func (s State) Has(role enums.Role) bool {
	if !s.Resolved {
		return false
	}
	for _, held := range s.Roles {
		if held == role {
			return true
		}
	}
	return false
}

// Resolver holds the RoleSet for the current session's user. Always derived
// from the store, never mutated independently; only Load, Reset and the sync
// service's replace touch it.
type Resolver struct {
	store Store
	log   *zap.Logger

	mu     sync.RWMutex
	userID uuid.UUID
	state  State
}

func NewResolver(store Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, log: log}
}

// Load fetches the RoleSet for the given user and atomically replaces the
// cached state. While the fetch runs the previous state stays visible, so
// readers never observe a half-written set.
func (r *Resolver) Load(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrValidation
	}
	if r.store == nil {
		return fmt.Errorf("role store is nil")
	}

	assignments, err := r.store.ListRoles(ctx, userID)
	if err != nil {
		r.mu.Lock()
		r.state.Err = err
		r.mu.Unlock()
		return fmt.Errorf("list roles for %s: %w", userID, err)
	}

	r.replace(userID, rolesOf(assignments))
	return nil
}

// Reset drops the RoleSet back to the unresolved state, used when the
// session ends.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.userID = uuid.Nil
	r.state = State{}
	r.mu.Unlock()
}

func (r *Resolver) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.state
	state.Roles = append([]enums.Role(nil), r.state.Roles...)
	return state
}

func (r *Resolver) UserID() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID
}

func (r *Resolver) HasRole(role enums.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Has(role)
}

func (r *Resolver) HasAnyRole(candidates ...enums.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range candidates {
		if r.state.Has(role) {
			return true
		}
	}
	return false
}

// HighestRole returns the strongest held role by fixed precedence
// (admin > collector > member). ok is false while unresolved or when no role
// is held.
func (r *Resolver) HighestRole() (enums.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return highestOf(r.state)
}

// CanAccessTab answers the per-tab policy for the current RoleSet. Always
// false while the set is unresolved.
func (r *Resolver) CanAccessTab(tab enums.Tab) bool {
	return CanAccess(r.Snapshot(), tab)
}

// replace atomically installs a freshly fetched RoleSet.
func (r *Resolver) replace(userID uuid.UUID, set []enums.Role) {
	r.mu.Lock()
	r.userID = userID
	r.state = State{Roles: set, Resolved: true}
	r.mu.Unlock()
}

func rolesOf(assignments []Assignment) []enums.Role {
	set := make([]enums.Role, 0, len(assignments))
	seen := make(map[enums.Role]struct{}, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.Role]; dup {
			continue
		}
		seen[a.Role] = struct{}{}
		set = append(set, a.Role)
	}
	return set
}

func highestOf(state State) (enums.Role, bool) {
	for _, role := range enums.RolePrecedence {
		if state.Has(role) {
			return role, true
		}
	}
	return "", false
}

package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/domain/enums"
)

// CacheKeyUserRoles is the query-cache key for the current user's RoleSet.
const CacheKeyUserRoles = "user_roles"

// DependentCacheKeys enumerates every cache key derived from role or
// collector data. Any role mutation or sync invalidates all of them so no
// view observes a stale role next to fresh dependent data.
var DependentCacheKeys = []string{
	CacheKeyUserRoles,
	"collectors",
	"collector_roles",
	"members",
	"payments",
}

// Cache drops the named query-cache keys.
type Cache interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// SyncService reconciles authoritative role assignments against the cached
// RoleSet after mutation or on demand.
type SyncService struct {
	store    Store
	resolver *Resolver
	cache    Cache
	log      *zap.Logger
}

func NewSyncService(store Store, resolver *Resolver, cache Cache, log *zap.Logger) *SyncService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{
		store:    store,
		resolver: resolver,
		cache:    cache,
		log:      log,
	}
}

// Sync re-fetches assignments for the given users and atomically replaces
// the cached RoleSet where one of them is the current user. Idempotent: two
// consecutive calls with no mutation in between yield the same RoleSet, and
// dependent caches are invalidated on every call.
func (s *SyncService) Sync(ctx context.Context, userIDs []uuid.UUID) error {
	if s.store == nil {
		return fmt.Errorf("role store is nil")
	}

	current := uuid.Nil
	if s.resolver != nil {
		current = s.resolver.UserID()
	}

	for _, userID := range userIDs {
		if userID == uuid.Nil {
			return ErrValidation
		}

		assignments, err := s.store.ListRoles(ctx, userID)
		if err != nil {
			return fmt.Errorf("sync roles for %s: %w", userID, err)
		}

		if s.resolver != nil && userID == current {
			s.resolver.replace(userID, rolesOf(assignments))
		}
		s.log.Debug("roles synced",
			zap.String("user_id", userID.String()),
			zap.Int("assignments", len(assignments)))
	}

	return s.invalidateDependents(ctx)
}

// Grant assigns a role, then refreshes cached state and dependents.
func (s *SyncService) Grant(ctx context.Context, userID uuid.UUID, role enums.Role) error {
	if err := s.mutate(ctx, userID, role, s.store.InsertRole, "grant"); err != nil {
		return err
	}
	return s.Sync(ctx, []uuid.UUID{userID})
}

// Revoke removes a role, then refreshes cached state and dependents.
func (s *SyncService) Revoke(ctx context.Context, userID uuid.UUID, role enums.Role) error {
	if err := s.mutate(ctx, userID, role, s.store.DeleteRole, "revoke"); err != nil {
		return err
	}
	return s.Sync(ctx, []uuid.UUID{userID})
}

func (s *SyncService) mutate(ctx context.Context, userID uuid.UUID, role enums.Role, op func(context.Context, uuid.UUID, enums.Role) error, name string) error {
	if s.store == nil {
		return fmt.Errorf("role store is nil")
	}
	if userID == uuid.Nil {
		return ErrValidation
	}
	if _, ok := enums.ParseRole(string(role)); !ok {
		return ErrValidation
	}

	if err := op(ctx, userID, role); err != nil {
		return fmt.Errorf("%s role %s for %s: %w", name, role, userID, err)
	}
	s.log.Info("role mutated",
		zap.String("op", name),
		zap.String("user_id", userID.String()),
		zap.String("role", string(role)))
	return nil
}

func (s *SyncService) invalidateDependents(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, DependentCacheKeys...); err != nil {
		return fmt.Errorf("invalidate role-dependent caches: %w", err)
	}
	return nil
}

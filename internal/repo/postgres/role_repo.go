package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akulichev/memberdash/internal/domain/enums"
	"github.com/akulichev/memberdash/internal/services/roles"
)

// RoleRepo is the authoritative role assignment store.
type RoleRepo struct {
	pool *pgxpool.Pool
}

func NewRoleRepo(pool *pgxpool.Pool) *RoleRepo {
	return &RoleRepo{pool: pool}
}

func (r *RoleRepo) ListRoles(ctx context.Context, userID uuid.UUID) ([]roles.Assignment, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if userID == uuid.Nil {
		return nil, roles.ErrValidation
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, role
FROM user_roles
WHERE user_id = $1
ORDER BY created_at ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	assignments := make([]roles.Assignment, 0, 4)
	for rows.Next() {
		var (
			assignment roles.Assignment
			role       string
		)
		if err := rows.Scan(&assignment.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		parsed, ok := enums.ParseRole(role)
		if !ok {
			continue
		}
		assignment.Role = parsed
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return assignments, nil
}

func (r *RoleRepo) InsertRole(ctx context.Context, userID uuid.UUID, role enums.Role) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID == uuid.Nil {
		return roles.ErrValidation
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO user_roles (user_id, role, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id, role) DO NOTHING
`, userID, string(role)); err != nil {
		return fmt.Errorf("insert user role: %w", err)
	}

	return nil
}

func (r *RoleRepo) DeleteRole(ctx context.Context, userID uuid.UUID, role enums.Role) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID == uuid.Nil {
		return roles.ErrValidation
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM user_roles
WHERE user_id = $1
  AND role = $2
`, userID, string(role)); err != nil {
		return fmt.Errorf("delete user role: %w", err)
	}

	return nil
}

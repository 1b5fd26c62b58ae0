package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akulichev/memberdash/internal/infra/authbackend"
)

// AccountRepo persists auth accounts. Creation also grants the default
// member role in the same transaction so a fresh account is never observed
// without it.
type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (authbackend.Account, error) {
	if r.pool == nil {
		return authbackend.Account{}, fmt.Errorf("postgres pool is nil")
	}
	clean := strings.ToLower(strings.TrimSpace(email))
	if clean == "" {
		return authbackend.Account{}, authbackend.ErrAccountNotFound
	}

	var account authbackend.Account
	err := r.pool.QueryRow(ctx, `
SELECT id, email, secret_hash, confirmed
FROM auth_accounts
WHERE email = $1
LIMIT 1
`, clean).Scan(&account.ID, &account.Email, &account.SecretHash, &account.Confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authbackend.Account{}, authbackend.ErrAccountNotFound
		}
		return authbackend.Account{}, fmt.Errorf("find account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepo) Create(ctx context.Context, account authbackend.Account, metadata map[string]string) (authbackend.Account, error) {
	clean := strings.ToLower(strings.TrimSpace(account.Email))
	if clean == "" || account.SecretHash == "" {
		return authbackend.Account{}, fmt.Errorf("invalid account payload")
	}

	created := account
	created.Email = clean
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
INSERT INTO auth_accounts (id, email, secret_hash, confirmed, metadata, created_at, updated_at)
VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW(), NOW())
RETURNING id
`, clean, account.SecretHash, account.Confirmed, metadata).Scan(&created.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return authbackend.ErrAccountExists
			}
			return fmt.Errorf("insert auth account: %w", err)
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO user_roles (user_id, role, created_at)
VALUES ($1, 'member', NOW())
ON CONFLICT (user_id, role) DO NOTHING
`, created.ID); err != nil {
			return fmt.Errorf("grant default member role: %w", err)
		}

		return nil
	})
	if err != nil {
		return authbackend.Account{}, err
	}

	return created, nil
}

// DeleteUnconfirmedBefore prunes accounts whose confirmation never arrived,
// together with the bootstrap role grants they received at signup.
func (r *AccountRepo) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var deleted int64
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
DELETE FROM user_roles
WHERE user_id IN (
	SELECT id FROM auth_accounts
	WHERE confirmed = FALSE AND created_at < $1
)
`, cutoff); err != nil {
			return fmt.Errorf("delete roles of stale accounts: %w", err)
		}

		tag, err := tx.Exec(ctx, `
DELETE FROM auth_accounts
WHERE confirmed = FALSE AND created_at < $1
`, cutoff)
		if err != nil {
			return fmt.Errorf("delete stale accounts: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func (r *AccountRepo) Confirm(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if id == uuid.Nil {
		return fmt.Errorf("invalid account id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE auth_accounts
SET confirmed = TRUE, updated_at = NOW()
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("confirm auth account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authbackend.ErrAccountNotFound
	}

	return nil
}

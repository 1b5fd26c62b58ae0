package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akulichev/memberdash/internal/domain/enums"
	"github.com/akulichev/memberdash/internal/services/members"
)

// MemberRepo reads the external member registry. The core never writes
// member records.
type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) FindActiveMember(ctx context.Context, memberNumber string) (members.Member, error) {
	if r.pool == nil {
		return members.Member{}, fmt.Errorf("postgres pool is nil")
	}
	clean := strings.TrimSpace(memberNumber)
	if clean == "" {
		return members.Member{}, members.ErrValidation
	}

	var (
		member members.Member
		status string
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, member_number, status
FROM members
WHERE member_number = $1
  AND status = 'active'
LIMIT 1
`, clean).Scan(&member.ID, &member.MemberNumber, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return members.Member{}, members.ErrNotFound
		}
		return members.Member{}, fmt.Errorf("find active member: %w", err)
	}

	member.Status = enums.MemberStatus(status)
	return member, nil
}

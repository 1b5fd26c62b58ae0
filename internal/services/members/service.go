package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/domain/enums"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("member not found or inactive")
)

// Member is a registry record. The core never mutates it.
type Member struct {
	ID           uuid.UUID
	MemberNumber string
	Status       enums.MemberStatus
}

// Registry is the external member directory. FindActiveMember returns
// ErrNotFound when no active record matches, including the backend's
// "no rows" condition.
type Registry interface {
	FindActiveMember(ctx context.Context, memberNumber string) (Member, error)
}

// Verifier gates authentication on registry membership: no credential
// attempt may happen for an unknown or deactivated member.
type Verifier struct {
	registry Registry
	log      *zap.Logger
}

func NewVerifier(registry Registry, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{registry: registry, log: log}
}

func (v *Verifier) Verify(ctx context.Context, memberNumber string) (Member, error) {
	clean := strings.TrimSpace(memberNumber)
	if clean == "" {
		return Member{}, ErrValidation
	}
	if v.registry == nil {
		return Member{}, fmt.Errorf("member registry is nil")
	}

	member, err := v.registry.FindActiveMember(ctx, clean)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.log.Info("member verification rejected", zap.String("member_number", clean))
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("verify member %q: %w", clean, err)
	}

	// The registry query already filters on status, but a permissive
	// implementation must not slip an inactive record through.
	if member.Status != enums.MemberStatusActive {
		return Member{}, ErrNotFound
	}

	return member, nil
}

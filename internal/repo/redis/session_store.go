package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/akulichev/memberdash/internal/infra/authbackend"
)

const refreshPrefix = "refresh:"

// SessionStore holds refresh-token sessions for the auth backend, expiring
// with the token itself.
type SessionStore struct {
	client *goredis.Client
}

func NewSessionStore(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Save(ctx context.Context, record authbackend.SessionRecord) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(record.Token) == "" || record.UserID == uuid.Nil {
		return fmt.Errorf("invalid session record")
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session record already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, refreshKey(record.Token), map[string]interface{}{
		"user_id":    record.UserID.String(),
		"expires_at": record.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, refreshKey(record.Token), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}

	return nil
}

func (s *SessionStore) Find(ctx context.Context, token string) (authbackend.SessionRecord, error) {
	if s.client == nil {
		return authbackend.SessionRecord{}, fmt.Errorf("redis client is nil")
	}

	values, err := s.client.HGetAll(ctx, refreshKey(token)).Result()
	if err != nil {
		return authbackend.SessionRecord{}, fmt.Errorf("get refresh session: %w", err)
	}
	if len(values) == 0 {
		return authbackend.SessionRecord{}, authbackend.ErrSessionNotFound
	}

	userID, err := uuid.Parse(values["user_id"])
	if err != nil {
		return authbackend.SessionRecord{}, fmt.Errorf("parse session user_id: %w", err)
	}
	expiresUnix, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return authbackend.SessionRecord{}, fmt.Errorf("parse session expires_at: %w", err)
	}

	return authbackend.SessionRecord{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Unix(expiresUnix, 0).UTC(),
	}, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	deleted, err := s.client.Del(ctx, refreshKey(token)).Result()
	if err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	if deleted == 0 {
		return authbackend.ErrSessionNotFound
	}
	return nil
}

func refreshKey(token string) string {
	return refreshPrefix + token
}

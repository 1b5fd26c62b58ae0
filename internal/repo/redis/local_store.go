package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const localPrefix = "local:"

// LocalStore is the locally persisted auth state: the pointer to the live
// refresh token plus anything else namespaced under local:. Logout wipes the
// whole namespace.
type LocalStore struct {
	client *goredis.Client
}

func NewLocalStore(client *goredis.Client) *LocalStore {
	return &LocalStore{client: client}
}

func (s *LocalStore) SaveRefreshToken(ctx context.Context, token string, ttl time.Duration) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := s.client.Set(ctx, localPrefix+"refresh_token", token, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *LocalStore) CurrentRefreshToken(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}

	token, err := s.client.Get(ctx, localPrefix+"refresh_token").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get refresh token: %w", err)
	}
	return token, nil
}

// Clear drops every locally persisted auth key.
func (s *LocalStore) Clear(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	iter := s.client.Scan(ctx, 0, localPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clear local auth state: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan local auth state: %w", err)
	}
	return nil
}

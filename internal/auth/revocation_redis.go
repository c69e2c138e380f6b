package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore keeps one key per revoked jti, set to expire with the
// token itself, so expired records vanish without a cleanup job.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revoked"
	}

	return &RedisRevocationStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if strings.TrimSpace(jti) == "" {
		return false, nil
	}

	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked token: %w", err)
	}

	return n > 0, nil
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	err := s.client.SetArgs(ctx, s.key(jti), s.now().UTC().Unix(), redis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis set revoked token: %w", err)
	}

	return nil
}

// PruneExpired is a no-op: Redis expires the keys itself.
func (s *RedisRevocationStore) PruneExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (s *RedisRevocationStore) key(jti string) string {
	return s.prefix + ":" + jti
}

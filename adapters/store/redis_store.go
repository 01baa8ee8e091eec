package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletauth/ports"
)

// DefaultKeyPrefix namespaces credential keys in Redis.
const DefaultKeyPrefix = "walletauth:credential:"

// RedisStore keeps credentials in Redis so several processes of one client
// can share a session. A non-zero ttl only bounds keys orphaned when sign-out
// never runs; it should outlive any session the relying party issues.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl means keys never expire.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Put stores the credential under scope.
func (s *RedisStore) Put(ctx context.Context, scope, credential string) error {
	if err := s.client.Set(ctx, s.prefix+scope, credential, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Get returns the credential stored under scope.
func (s *RedisStore) Get(ctx context.Context, scope string) (string, error) {
	credential, err := s.client.Get(ctx, s.prefix+scope).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return credential, nil
}

// Delete removes scope.
func (s *RedisStore) Delete(ctx context.Context, scope string) error {
	if err := s.client.Del(ctx, s.prefix+scope).Err(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

package cart

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type keyValueStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartIDKey(deviceID string) string
}

// RedisIDStore keeps each device's cart id under sf:device:<id>:shopifyCartId.
type RedisIDStore struct {
	kv  keyValueStore
	ttl time.Duration
}

// NewRedisIDStore wraps the key-value client. A zero ttl keeps ids forever.
func NewRedisIDStore(kv keyValueStore, ttl time.Duration) (*RedisIDStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("key-value store required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisIDStore{kv: kv, ttl: ttl}, nil
}

func (s *RedisIDStore) Load(ctx context.Context, deviceID string) (string, bool, error) {
	value, ok, err := s.kv.Lookup(ctx, s.kv.CartIDKey(deviceID))
	if err != nil {
		return "", false, fmt.Errorf("load cart id: %w", err)
	}
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (s *RedisIDStore) Save(ctx context.Context, deviceID, cartID string) error {
	if err := s.kv.Set(ctx, s.kv.CartIDKey(deviceID), cartID, s.ttl); err != nil {
		return fmt.Errorf("save cart id: %w", err)
	}
	return nil
}

func (s *RedisIDStore) Clear(ctx context.Context, deviceID string) error {
	if err := s.kv.Del(ctx, s.kv.CartIDKey(deviceID)); err != nil {
		return fmt.Errorf("clear cart id: %w", err)
	}
	return nil
}

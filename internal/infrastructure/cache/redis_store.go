package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"identity-hub/internal/domain"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the shared upstream token.
const DefaultRedisKey = "identity-hub:upstream-token"

// redisToken is the stored form of a cached token.
type redisToken struct {
	Value       string `json:"value"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

// RedisTokenStore shares the token slot between proxy instances.
// Implements domain.TokenStore.
type RedisTokenStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisTokenStore creates a store on an existing client.
func NewRedisTokenStore(client *redis.Client, key string) *RedisTokenStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisTokenStore{client: client, key: key, now: time.Now}
}

// NewRedisTokenStoreWithURL creates a store from a redis:// URL.
func NewRedisTokenStoreWithURL(url string) (*RedisTokenStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisTokenStore(redis.NewClient(opts), DefaultRedisKey), nil
}

// Ping checks connectivity.
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

// Load reads the shared slot.
func (s *RedisTokenStore) Load(ctx context.Context) (domain.CachedToken, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CachedToken{}, false, nil
	}
	if err != nil {
		return domain.CachedToken{}, false, err
	}

	var stored redisToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.CachedToken{}, false, err
	}
	return domain.CachedToken{
		Value:     stored.Value,
		ExpiresAt: time.UnixMilli(stored.ExpiresAtMs),
	}, true, nil
}

// Save writes the shared slot with a key expiry matching the token's usable lifetime.
// Tokens that are already unusable are not written.
func (s *RedisTokenStore) Save(ctx context.Context, token domain.CachedToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(redisToken{
		Value:       token.Value,
		ExpiresAtMs: token.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

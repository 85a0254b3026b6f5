package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultOpTimeout bounds every Redis round trip.
const DefaultOpTimeout = 5 * time.Second

// deleteIfValueScript removes KEYS[1] only while it holds ARGV[1].
var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Prefix is prepended to every key, separated by ':'.
	// Default: none
	Prefix string

	// OpTimeout bounds each backend call.
	// Default: 5 seconds
	OpTimeout time.Duration
}

// RedisStore is a Store backed by Redis native TTLs.
// The caller owns the client lifecycle.
type RedisStore struct {
	client redis.UniversalClient
	config RedisConfig
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, config RedisConfig) *RedisStore {
	if config.OpTimeout <= 0 {
		config.OpTimeout = DefaultOpTimeout
	}
	return &RedisStore{client: client, config: config}
}

// OpenRedis parses a redis:// URL and returns a connected client.
// A non-empty password overrides the one in the URL.
func OpenRedis(url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts), nil
}

// Get retrieves a value. redis.Nil is reported as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	return val, true, nil
}

// SetWithExpiry issues SET key value EX ttl.
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateWrite(key, ttl); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Expire issues EXPIRE key ttl.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateWrite(key, ttl); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	ok, err := s.client.Expire(ctx, s.key(key), ttl).Result()
	if err != nil {
		return false, unavailable("expire", err)
	}
	return ok, nil
}

// SetIfAbsent issues SET key value NX EX ttl.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateWrite(key, ttl); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

// DeleteIfValue runs a compare-and-delete script.
func (s *RedisStore) DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	n, err := deleteIfValueScript.Run(ctx, s.client, []string{s.key(key)}, value).Int64()
	if err != nil {
		return false, unavailable("compare-and-delete", err)
	}
	return n == 1, nil
}

// Delete issues DEL key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// Ping issues PING.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.OpTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return s.config.Prefix + ":" + key
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", ErrUnavailable, op, err)
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

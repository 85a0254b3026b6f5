package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a store key.
const MaxKeyLength = 512

// Sentinel errors for store operations.
var (
	ErrNilStore    = errors.New("cache: store is nil")
	ErrInvalidKey  = errors.New("cache: key is invalid")
	ErrKeyTooLong  = errors.New("cache: key exceeds max length")
	ErrInvalidTTL  = errors.New("cache: ttl must be positive")
	ErrUnavailable = errors.New("cache: store unavailable")
)

// Store is the external key-value backend holding serialized datasets.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Atomicity: every method is a single atomic backend primitive.
// - Errors: a miss is (nil, false, nil). Backend failures wrap ErrUnavailable.
// - Context: methods honor cancellation/deadlines.
type Store interface {
	// Get retrieves a value. Returns (nil, false, nil) on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetWithExpiry stores value under key, replacing any previous value and TTL.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Expire resets the remaining lifetime of key to ttl without touching the value.
	// Returns false when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfAbsent stores value only when key does not exist.
	// Returns true when the value was written.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// DeleteIfValue removes key only while it still holds value.
	// Returns true when the key was removed.
	DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error)

	// Delete removes key. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ValidateKey checks if a key is valid for the store.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

func validateWrite(key string, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

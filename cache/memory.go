package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore is an in-process Store. Entries expire lazily against its clock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	clock   clockwork.Clock
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for expiry. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a value from the store. Returns (nil, false, nil) on miss or expiry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if s.expired(entry) {
		// Expired - clean up lazily
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && s.expired(current) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	return bytes.Clone(entry.value), true, nil
}

// SetWithExpiry stores a value with the given TTL.
func (s *MemoryStore) SetWithExpiry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateWrite(key, ttl); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = &memoryEntry{
		value:     bytes.Clone(value),
		expiresAt: s.clock.Now().Add(ttl),
	}
	s.mu.Unlock()

	return nil
}

// Expire resets the expiry of a live key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateWrite(key, ttl); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if s.expired(entry) {
		delete(s.entries, key)
		return false, nil
	}
	entry.expiresAt = s.clock.Now().Add(ttl)
	return true, nil
}

// SetIfAbsent stores value only when no live entry exists under key.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateWrite(key, ttl); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && !s.expired(entry) {
		return false, nil
	}
	s.entries[key] = &memoryEntry{
		value:     bytes.Clone(value),
		expiresAt: s.clock.Now().Add(ttl),
	}
	return true, nil
}

// DeleteIfValue removes key only while it still holds value.
func (s *MemoryStore) DeleteIfValue(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.expired(entry) || !bytes.Equal(entry.value, value) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Delete removes a value from the store. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// TTL returns the remaining lifetime of key, or false if it is absent.
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return 0, false
	}
	return entry.expiresAt.Sub(s.clock.Now()), true
}

// Len returns the number of stored entries, including ones not yet reaped.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(entry *memoryEntry) bool {
	return !s.clock.Now().Before(entry.expiresAt)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

package cache

import (
	"fmt"
	"time"
)

// Policy configures entry lifetimes.
type Policy struct {
	// DefaultTTL is the lifetime of a freshly written dataset and the
	// lifetime an extension resets it to.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// LockTTL bounds how long an in-progress marker survives a crashed loader.
	LockTTL time.Duration
}

// DefaultPolicy returns the default dataset policy.
// DefaultTTL: 1 hour, MaxTTL: 24 hours, LockTTL: 1 minute
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: time.Hour,
		MaxTTL:     24 * time.Hour,
		LockTTL:    time.Minute,
	}
}

// Validate checks that the policy can be used to write entries.
func (p Policy) Validate() error {
	if p.DefaultTTL <= 0 {
		return fmt.Errorf("cache: default ttl must be positive, got %v", p.DefaultTTL)
	}
	if p.MaxTTL > 0 && p.DefaultTTL > p.MaxTTL {
		return fmt.Errorf("cache: default ttl %v exceeds max ttl %v", p.DefaultTTL, p.MaxTTL)
	}
	if p.LockTTL <= 0 {
		return fmt.Errorf("cache: lock ttl must be positive, got %v", p.LockTTL)
	}
	return nil
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	// Use default if no override (or negative override)
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	// Clamp to MaxTTL if set
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

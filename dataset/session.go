package dataset

import (
	"context"

	"github.com/jonwraymond/dataops/observe"
)

// Extender keeps sessions alive by resetting an entry's TTL to the policy
// default. The stored value is never touched.
type Extender struct {
	cfg Config
}

// NewExtender creates an Extender. Only cfg.Store is required.
func NewExtender(cfg Config) (*Extender, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Extender{cfg: cfg}, nil
}

// Extend resets the TTL of key. It reports false, without error, when the
// key is absent or already expired; an expired entry is never revived.
func (e *Extender) Extend(ctx context.Context, key string) (bool, error) {
	var extended bool
	err := e.cfg.Instrument.Run(ctx, observe.OpMeta{Name: opExtend, Key: key}, func(ctx context.Context) error {
		if !e.cfg.Deriver.Valid(key) {
			return newError(opExtend, key, ErrInvalidRequest, nil)
		}
		ok, err := e.cfg.Store.Expire(ctx, key, e.cfg.Policy.EffectiveTTL(0))
		if err != nil {
			return newError(opExtend, key, ErrStoreUnavailable, err)
		}
		extended = ok
		return nil
	})
	return extended, err
}

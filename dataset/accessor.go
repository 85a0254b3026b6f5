package dataset

import (
	"context"

	"github.com/jonwraymond/dataops/observe"
)

// Accessor reads stored datasets by key. Reads never refresh the TTL.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: a malformed key is ErrInvalidRequest; an absent, expired or
//     unreadable entry is ErrDatasetNotFound; a backend failure is
//     ErrStoreUnavailable.
//   - Every read decodes the payload and checks it against the stored
//     shape, so Metadata never describes a payload Payload would reject.
type Accessor struct {
	cfg Config
}

// NewAccessor creates an Accessor. Only cfg.Store is required.
func NewAccessor(cfg Config) (*Accessor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Accessor{cfg: cfg}, nil
}

// Metadata returns every stored field except the payload.
func (a *Accessor) Metadata(ctx context.Context, key string) (*Metadata, error) {
	var md *Metadata
	err := a.cfg.Instrument.Run(ctx, observe.OpMeta{Name: opMetadata, Key: key}, func(ctx context.Context) error {
		entry, _, err := a.get(ctx, opMetadata, key)
		if err != nil {
			return err
		}
		md = &entry.Metadata
		return nil
	})
	return md, err
}

// Payload returns the full table.
func (a *Accessor) Payload(ctx context.Context, key string) (*Table, error) {
	var table *Table
	err := a.cfg.Instrument.Run(ctx, observe.OpMeta{Name: opPayload, Key: key}, func(ctx context.Context) error {
		_, t, err := a.get(ctx, opPayload, key)
		if err != nil {
			return err
		}
		table = t
		return nil
	})
	return table, err
}

// RawPayload returns the encoded table bytes as stored. The bytes are
// msgpack.
func (a *Accessor) RawPayload(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := a.cfg.Instrument.Run(ctx, observe.OpMeta{Name: opPayload, Key: key}, func(ctx context.Context) error {
		entry, _, err := a.get(ctx, opPayload, key)
		if err != nil {
			return err
		}
		raw = entry.Payload
		return nil
	})
	return raw, err
}

func (a *Accessor) get(ctx context.Context, op, key string) (*Entry, *Table, error) {
	if !a.cfg.Deriver.Valid(key) {
		return nil, nil, newError(op, key, ErrInvalidRequest, nil)
	}
	data, ok, err := a.cfg.Store.Get(ctx, key)
	if err != nil {
		return nil, nil, newError(op, key, ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, nil, newError(op, key, ErrDatasetNotFound, nil)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, nil, a.corrupt(ctx, op, key, err)
	}
	table, err := decodeTable(entry)
	if err != nil {
		return nil, nil, a.corrupt(ctx, op, key, err)
	}
	return entry, table, nil
}

func (a *Accessor) corrupt(ctx context.Context, op, key string, err error) error {
	a.cfg.Instrument.Logger().WithOp(observe.OpMeta{Name: op, Key: key}).
		Warn(ctx, "unreadable dataset entry", observe.Field{Key: "error", Value: err.Error()})
	return newError(op, key, ErrDatasetNotFound, err)
}

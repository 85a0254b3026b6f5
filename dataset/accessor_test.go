package dataset

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/dataops/cache"
)

func TestNewAccessor_RequiresStore(t *testing.T) {
	if _, err := NewAccessor(Config{}); !errors.Is(err, ErrNilStore) {
		t.Fatalf("NewAccessor(Config{}) = %v, want ErrNilStore", err)
	}
}

func TestAccessor_Payload(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	res, err := c.Load(ctx, ordersRequest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	table, err := c.Payload(ctx, res.Key)
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	want := &Table{
		Columns: []string{"region", "revenue", "units"},
		Rows: [][]any{
			{"EU", 10.5, int64(3)},
			{"US", 20.0, int64(5)},
			{"EU", 7.25, int64(1)},
		},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("Payload mismatch (-want +got):\n%s", diff)
	}

	raw, err := c.RawPayload(ctx, res.Key)
	if err != nil {
		t.Fatalf("RawPayload: %v", err)
	}
	if int64(len(raw)) != res.Metadata.SizeBytes {
		t.Errorf("raw payload is %d bytes, metadata says %d", len(raw), res.Metadata.SizeBytes)
	}
}

func TestAccessor_Metadata(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	res, err := c.Load(ctx, ordersRequest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	md, err := c.Metadata(ctx, res.Key)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if diff := cmp.Diff(res.Metadata, *md, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Metadata mismatch (-load +metadata):\n%s", diff)
	}
	if _, ok := reflect.TypeOf(*md).FieldByName("Payload"); ok {
		t.Error("Metadata must not carry the payload")
	}
}

func TestAccessor_NotFound(t *testing.T) {
	a, err := NewAccessor(Config{Store: cache.NewMemoryStore()})
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}
	ctx := context.Background()
	key := DeriveKey(ordersRequest)

	_, err = a.Metadata(ctx, key)
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("Metadata = %v, want ErrDatasetNotFound", err)
	}
	if !strings.Contains(err.Error(), "reload your data") {
		t.Errorf("error %q should tell the caller to reload", err)
	}

	if _, err := a.Payload(ctx, key); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("Payload = %v, want ErrDatasetNotFound", err)
	}
	if _, err := a.RawPayload(ctx, key); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("RawPayload = %v, want ErrDatasetNotFound", err)
	}
}

func TestAccessor_Expired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := cache.NewMemoryStore(cache.WithClock(clock))
	c := newTestCache(t, Config{Store: store, Clock: clock})
	ctx := context.Background()

	res, err := c.Load(ctx, ordersRequest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	clock.Advance(time.Hour)

	if _, err := c.Payload(ctx, res.Key); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("Payload after TTL = %v, want ErrDatasetNotFound", err)
	}
}

func TestAccessor_ReadsDoNotExtend(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := cache.NewMemoryStore(cache.WithClock(clock))
	c := newTestCache(t, Config{Store: store, Clock: clock})
	ctx := context.Background()

	res, err := c.Load(ctx, ordersRequest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	clock.Advance(30 * time.Minute)
	_, _ = c.Metadata(ctx, res.Key)
	_, _ = c.Payload(ctx, res.Key)

	if ttl, _ := store.TTL(res.Key); ttl != 30*time.Minute {
		t.Errorf("TTL after reads = %v, want 30m", ttl)
	}
}

func TestAccessor_CorruptEntryIsNotFound(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"garbage", []byte("{not msgpack")},
		{"empty", []byte{}},
		{"magic only", []byte("DSE1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			a, _ := NewAccessor(Config{Store: store})
			ctx := context.Background()
			key := DeriveKey(ordersRequest)
			_ = store.SetWithExpiry(ctx, key, tt.value, time.Hour)

			_, err := a.Metadata(ctx, key)
			if !errors.Is(err, ErrDatasetNotFound) {
				t.Fatalf("Metadata = %v, want ErrDatasetNotFound", err)
			}
			if !errors.Is(err, errCorruptEntry) {
				t.Errorf("cause should be the decode failure: %v", err)
			}
		})
	}
}

func TestAccessor_CorruptPayloadIsNotFound(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, e *Entry)
	}{
		{
			name: "undecodable payload",
			mutate: func(_ *testing.T, e *Entry) {
				e.Payload = []byte{0xc1}
			},
		},
		{
			name: "row count disagrees with shape",
			mutate: func(_ *testing.T, e *Entry) {
				e.Shape.Rows++
			},
		},
		{
			name: "columns disagree with metadata",
			mutate: func(t *testing.T, e *Entry) {
				payload, err := encodePayload(&Table{Columns: []string{"region"}, Rows: [][]any{{"EU"}, {"US"}, {nil}}})
				if err != nil {
					t.Fatalf("encodePayload: %v", err)
				}
				e.Payload = payload
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore()
			a, _ := NewAccessor(Config{Store: store})
			ctx := context.Background()

			e := testEntry(t)
			tt.mutate(t, e)
			e.SizeBytes = int64(len(e.Payload))
			data, err := encodeEntry(e)
			if err != nil {
				t.Fatalf("encodeEntry: %v", err)
			}
			key := DeriveKey(ordersRequest)
			_ = store.SetWithExpiry(ctx, key, data, time.Hour)

			if _, err := a.Metadata(ctx, key); !errors.Is(err, ErrDatasetNotFound) {
				t.Errorf("Metadata = %v, want ErrDatasetNotFound", err)
			}
			if _, err := a.Payload(ctx, key); !errors.Is(err, ErrDatasetNotFound) {
				t.Errorf("Payload = %v, want ErrDatasetNotFound", err)
			}
			_, err = a.RawPayload(ctx, key)
			if !errors.Is(err, ErrDatasetNotFound) {
				t.Errorf("RawPayload = %v, want ErrDatasetNotFound", err)
			}
			if !errors.Is(err, errCorruptEntry) {
				t.Errorf("cause should be the consistency failure: %v", err)
			}
		})
	}
}

func TestAccessor_InvalidKey(t *testing.T) {
	a, _ := NewAccessor(Config{Store: cache.NewMemoryStore()})

	for _, key := range []string{"", "dataset:abc", "other:" + strings.Repeat("0", 64)} {
		if _, err := a.Metadata(context.Background(), key); KindOf(err) != ErrInvalidRequest {
			t.Errorf("Metadata(%q) = %v, want ErrInvalidRequest", key, err)
		}
	}
}

func TestAccessor_StoreUnavailable(t *testing.T) {
	a, _ := NewAccessor(Config{Store: downStore{}})
	key := DeriveKey(ordersRequest)

	if _, err := a.Payload(context.Background(), key); KindOf(err) != ErrStoreUnavailable {
		t.Errorf("Payload = %v, want ErrStoreUnavailable", err)
	}
}

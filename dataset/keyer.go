package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// DefaultNamespace prefixes every dataset key.
const DefaultNamespace = "dataset"

// Deriver maps requests to cache keys.
//
// Contract:
// - Determinism: element order never changes the key.
// - Format: <namespace>:<64 hex chars of SHA-256>.
// - Concurrency: safe for concurrent use; the zero value is ready to use.
type Deriver struct {
	// Namespace defaults to DefaultNamespace.
	Namespace string
}

func (d Deriver) namespace() string {
	if d.Namespace == "" {
		return DefaultNamespace
	}
	return d.Namespace
}

// Key derives the cache key for req.
func (d Deriver) Key(req Request) string {
	sum := sha256.Sum256(canonicalize(req.Normalize()))
	return d.namespace() + ":" + hex.EncodeToString(sum[:])
}

// Valid reports whether key has the shape of a key produced by Key.
func (d Deriver) Valid(key string) bool {
	digest, ok := strings.CutPrefix(key, d.namespace()+":")
	if !ok || len(digest) != sha256.Size*2 {
		return false
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// DeriveKey derives a key in the default namespace.
func DeriveKey(req Request) string {
	return Deriver{}.Key(req)
}

// canonicalize renders a normalized request as
//
//	v1;sources=["a","b"];dimensions=[...];metrics=[...];filters={"k":"v",...}
//
// with every string quoted by strconv.Quote, so element boundaries stay
// unambiguous for any byte content.
func canonicalize(req Request) []byte {
	var b strings.Builder
	b.WriteString("v1")
	writeList(&b, "sources", req.Sources)
	writeList(&b, "dimensions", req.Dimensions)
	writeList(&b, "metrics", req.Metrics)

	keys := slices.Sorted(maps.Keys(req.Filters))
	b.WriteString(";filters={")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(req.Filters[k]))
	}
	b.WriteByte('}')
	return []byte(b.String())
}

func writeList(b *strings.Builder, name string, items []string) {
	b.WriteByte(';')
	b.WriteString(name)
	b.WriteString("=[")
	for i, s := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(s))
	}
	b.WriteByte(']')
}

package dataset

import (
	"strings"
	"testing"
)

func TestDeriveKey_OrderIndependent(t *testing.T) {
	a := Request{
		Sources:    []string{"sales.orders", "sales.returns"},
		Dimensions: []string{"region", "day"},
		Metrics:    []string{"revenue", "units"},
		Filters:    map[string]string{"region": "EU", "channel": "web"},
	}
	b := Request{
		Sources:    []string{"sales.returns", "sales.orders", "sales.orders"},
		Dimensions: []string{"day", "region"},
		Metrics:    []string{"units", "revenue"},
		Filters:    map[string]string{"channel": "web", "region": "EU"},
	}

	if DeriveKey(a) != DeriveKey(b) {
		t.Fatalf("keys differ for permuted requests:\n%s\n%s", DeriveKey(a), DeriveKey(b))
	}
}

func TestDeriveKey_Format(t *testing.T) {
	key := DeriveKey(Request{Sources: []string{"orders"}, Metrics: []string{"revenue"}})

	digest, ok := strings.CutPrefix(key, "dataset:")
	if !ok {
		t.Fatalf("key %q lacks the dataset: prefix", key)
	}
	if len(digest) != 64 {
		t.Errorf("digest length = %d, want 64", len(digest))
	}
	if !(Deriver{}).Valid(key) {
		t.Errorf("Valid(%q) = false", key)
	}
}

func TestDeriveKey_Distinguishes(t *testing.T) {
	base := Request{
		Sources:    []string{"orders"},
		Dimensions: []string{"region"},
		Metrics:    []string{"revenue"},
	}

	variants := map[string]Request{
		"other source":        {Sources: []string{"returns"}, Dimensions: base.Dimensions, Metrics: base.Metrics},
		"dimension as metric": {Sources: base.Sources, Metrics: []string{"region", "revenue"}},
		"filter added":        {Sources: base.Sources, Dimensions: base.Dimensions, Metrics: base.Metrics, Filters: map[string]string{"region": "EU"}},
		"empty filter value":  {Sources: base.Sources, Dimensions: base.Dimensions, Metrics: base.Metrics, Filters: map[string]string{"region": ""}},
		"joined elements":     {Sources: []string{"orders"}, Dimensions: []string{"region,revenue"}},
	}

	baseKey := DeriveKey(base)
	seen := map[string]string{baseKey: "base"}
	for name, req := range variants {
		key := DeriveKey(req)
		if prev, dup := seen[key]; dup {
			t.Errorf("%s and %s derive the same key", name, prev)
		}
		seen[key] = name
	}
}

func TestDeriver_Namespace(t *testing.T) {
	req := Request{Sources: []string{"orders"}, Metrics: []string{"revenue"}}
	d := Deriver{Namespace: "tenant-a"}

	key := d.Key(req)
	if !strings.HasPrefix(key, "tenant-a:") {
		t.Fatalf("Key = %q, want tenant-a: prefix", key)
	}
	if !d.Valid(key) {
		t.Errorf("Valid(%q) = false", key)
	}
	if (Deriver{}).Valid(key) {
		t.Errorf("default deriver accepted a key from another namespace")
	}
}

func TestDeriver_Valid(t *testing.T) {
	good := DeriveKey(Request{Sources: []string{"orders"}, Metrics: []string{"revenue"}})

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"derived", good, true},
		{"empty", "", false},
		{"no prefix", strings.TrimPrefix(good, "dataset:"), false},
		{"short digest", good[:len(good)-1], false},
		{"upper case", "dataset:" + strings.ToUpper(strings.TrimPrefix(good, "dataset:")), false},
		{"non hex", "dataset:" + strings.Repeat("g", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Deriver{}).Valid(tt.key); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func FuzzDeriveKey(f *testing.F) {
	f.Add("orders", "region", "revenue", "region", "EU")
	f.Add("a\xff", "b,c", "", "", "")
	f.Add("", "", "", "k", "")

	f.Fuzz(func(t *testing.T, source, dim, metric, fk, fv string) {
		req := Request{
			Sources:    []string{source, "z"},
			Dimensions: []string{dim, "y"},
			Metrics:    []string{metric},
			Filters:    map[string]string{fk: fv},
		}
		swapped := Request{
			Sources:    []string{"z", source},
			Dimensions: []string{"y", dim},
			Metrics:    []string{metric},
			Filters:    map[string]string{fk: fv},
		}

		key := DeriveKey(req)
		if key != DeriveKey(swapped) {
			t.Fatalf("permutation changed the key")
		}
		if !(Deriver{}).Valid(key) {
			t.Fatalf("derived key %q is not valid", key)
		}

		// Moving a value between fields must change the key.
		moved := Request{
			Sources:    req.Sources,
			Dimensions: []string{"y"},
			Metrics:    []string{metric, dim},
			Filters:    req.Filters,
		}
		if dim != metric && dim != "y" && DeriveKey(moved) == key {
			t.Fatalf("moving %q from dimensions to metrics kept the key", dim)
		}
	})
}

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE orders (region TEXT, product TEXT, revenue REAL, units INTEGER)`,
		`INSERT INTO orders VALUES ('EU', 'widget', 10.5, 3), ('US', 'widget', 20.0, 5), ('EU', 'gadget', 7.25, 1)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return db
}

func TestNewSQLWarehouse_NilDB(t *testing.T) {
	if _, err := NewSQLWarehouse(nil); !errors.Is(err, ErrNilDB) {
		t.Fatalf("NewSQLWarehouse(nil) = %v, want ErrNilDB", err)
	}
}

func TestSQLWarehouse_Execute(t *testing.T) {
	w, err := NewSQLWarehouse(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLWarehouse: %v", err)
	}

	res, err := w.Execute(context.Background(), Query{
		Text: "SELECT region, units FROM orders WHERE product = ? ORDER BY region",
		Args: []any{"widget"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if diff := cmp.Diff([]string{"region", "units"}, res.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]any{{"EU", int64(3)}, {"US", int64(5)}}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}
	if res.RowCount() != 2 {
		t.Errorf("RowCount() = %d, want 2", res.RowCount())
	}
	for _, col := range res.Columns {
		if res.ColumnTypes[col] == "" {
			t.Errorf("column %q has no type label", col)
		}
	}
}

func TestSQLWarehouse_ExecuteEmptyResult(t *testing.T) {
	w, _ := NewSQLWarehouse(openTestDB(t))

	res, err := w.Execute(context.Background(), Query{
		Text: "SELECT region FROM orders WHERE product = ?",
		Args: []any{"nothing"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RowCount() != 0 || res.Rows == nil {
		t.Errorf("empty result = %#v, want zero non-nil rows", res.Rows)
	}
	if len(res.Columns) != 1 {
		t.Errorf("Columns = %v, want one column", res.Columns)
	}
}

func TestSQLWarehouse_ExecuteErrors(t *testing.T) {
	w, _ := NewSQLWarehouse(openTestDB(t))
	ctx := context.Background()

	if _, err := w.Execute(ctx, Query{Text: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Execute(blank) = %v, want ErrEmptyQuery", err)
	}
	if _, err := w.Execute(ctx, Query{Text: "SELECT nope FROM missing_table"}); err == nil {
		t.Error("Execute against a missing table should fail")
	}
}

func TestSQLWarehouse_ExecuteCanceled(t *testing.T) {
	w, _ := NewSQLWarehouse(openTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Execute(ctx, Query{Text: "SELECT region FROM orders"}); err == nil {
		t.Error("Execute with a canceled context should fail")
	}
}

func TestSQLWarehouse_Ping(t *testing.T) {
	db := openTestDB(t)
	w, _ := NewSQLWarehouse(db)
	if err := w.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if w.DB() != db {
		t.Error("DB() should return the wrapped handle")
	}
}

type stringer struct{}

func (stringer) String() string { return "decimal(1.50)" }

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 7, int64(7)},
		{"int32", int32(-3), int64(-3)},
		{"uint8", uint8(200), int64(200)},
		{"small uint64", uint64(42), int64(42)},
		{"huge uint64", uint64(1 << 63), uint64(1 << 63)},
		{"float32", float32(1.5), float64(1.5)},
		{"bytes", []byte("abc"), "abc"},
		{"string", "abc", "abc"},
		{"time", ts, ts.UTC()},
		{"stringer", stringer{}, "decimal(1.50)"},
		{"other", struct{ A int }{1}, "{1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, NormalizeValue(tt.in)); diff != "" {
				t.Errorf("NormalizeValue(%v) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestInferType(t *testing.T) {
	rows := [][]any{
		{nil, nil, "x"},
		{int64(1), nil, "y"},
	}
	if got := inferType(rows, 0); got != "int64" {
		t.Errorf("inferType(col 0) = %q, want int64", got)
	}
	if got := inferType(rows, 1); got != "object" {
		t.Errorf("inferType(all null) = %q, want object", got)
	}
	if got := inferType(rows, 2); got != "string" {
		t.Errorf("inferType(col 2) = %q, want string", got)
	}
	if got := ValueType(time.Now()); got != "datetime" {
		t.Errorf("ValueType(time) = %q, want datetime", got)
	}
}

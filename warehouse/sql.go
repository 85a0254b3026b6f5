package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// SQLWarehouse runs queries over a database/sql handle.
type SQLWarehouse struct {
	db *sql.DB
}

// NewSQLWarehouse wraps db. The caller keeps ownership of db.
func NewSQLWarehouse(db *sql.DB) (*SQLWarehouse, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &SQLWarehouse{db: db}, nil
}

var _ Warehouse = (*SQLWarehouse)(nil)

// Execute runs q and materializes every row.
func (w *SQLWarehouse) Execute(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}

	rows, err := w.db.QueryContext(ctx, q.Text, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: query: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("warehouse: scan: %w", err)
	}
	return result, nil
}

// Ping reports whether the warehouse is reachable.
func (w *SQLWarehouse) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse: ping: %w", err)
	}
	return nil
}

// DB returns the underlying handle.
func (w *SQLWarehouse) DB() *sql.DB {
	return w.db
}

func scanRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	declared := make([]string, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			declared[i] = strings.ToLower(ct.DatabaseTypeName())
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = NormalizeValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columnTypes := make(map[string]string, len(cols))
	for i, col := range cols {
		label := declared[i]
		if label == "" {
			label = inferType(resultRows, i)
		}
		columnTypes[col] = label
	}

	return &Result{
		Columns:     cols,
		ColumnTypes: columnTypes,
		Rows:        resultRows,
	}, nil
}

// NormalizeValue maps a driver value onto the set the dataset payload can
// carry: nil, bool, int64, uint64, float64, string and time.Time. Byte
// slices become strings; anything else is rendered with fmt.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func normalizeUint(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return n
}

// inferType labels column i from the first non-null value.
func inferType(rows [][]any, i int) string {
	for _, row := range rows {
		if label := ValueType(row[i]); label != "" {
			return label
		}
	}
	return "object"
}

// ValueType returns the type label of a normalized value, or "" for nil.
func ValueType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case bool:
		return "bool"
	case int64:
		return "int64"
	case uint64:
		return "uint64"
	case float64:
		return "float64"
	case string:
		return "string"
	case time.Time:
		return "datetime"
	default:
		return "object"
	}
}

package warehouse

import (
	"context"
	"errors"
)

// Sentinel errors for warehouse operations.
var (
	ErrNilDB          = errors.New("warehouse: database handle is nil")
	ErrEmptyQuery     = errors.New("warehouse: query text is empty")
	ErrUnknownDriver  = errors.New("warehouse: unknown driver")
	ErrMissingSetting = errors.New("warehouse: missing connection setting")
)

// Query is executable SQL with its bound arguments.
type Query struct {
	Text string
	Args []any
}

// Result is the tabular output of a query.
type Result struct {
	// Columns are the result column names in select order.
	Columns []string

	// ColumnTypes maps each column to a type label.
	ColumnTypes map[string]string

	// Rows hold values in Columns order, normalized by NormalizeValue.
	Rows [][]any
}

// RowCount returns the number of rows.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// Warehouse runs queries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Execute must stop when ctx is done and return an error.
// - Errors: driver errors are returned wrapped, never swallowed.
type Warehouse interface {
	// Execute runs q and materializes every row.
	Execute(ctx context.Context, q Query) (*Result, error)

	// Ping reports whether the warehouse is reachable.
	Ping(ctx context.Context) error
}

package dataset

import (
	"errors"
	"strings"
)

// Error kinds.
var (
	// ErrInvalidRequest indicates a malformed request or key. No query is built.
	ErrInvalidRequest = errors.New("dataset: invalid request")

	// ErrQueryExecutionFailed indicates the warehouse rejected or failed the query.
	ErrQueryExecutionFailed = errors.New("dataset: query execution failed")

	// ErrQueryTimeout indicates the query exceeded its deadline.
	ErrQueryTimeout = errors.New("dataset: query timed out")

	// ErrStoreUnavailable indicates the cache backend could not be reached.
	ErrStoreUnavailable = errors.New("dataset: store unavailable")

	// ErrDatasetNotFound indicates the key is absent, expired or unreadable.
	ErrDatasetNotFound = errors.New("dataset: session expired or not found, please reload your data")
)

// Configuration errors.
var (
	ErrNilStore     = errors.New("dataset: store is nil")
	ErrNilWarehouse = errors.New("dataset: warehouse is nil")
)

var (
	errCorruptEntry   = errors.New("corrupted entry")
	errLoadInProgress = errors.New("dataset load already in progress")
)

// Error describes a failed dataset operation.
type Error struct {
	Op   string // load, metadata, payload or extend
	Key  string // dataset key, empty when not yet derived
	Kind error  // one of the Err* kinds, nil for cancellation
	Err  error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op, key string, kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// KindOf returns the kind of err, or nil if err is not a dataset error.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidRequest,
		ErrQueryExecutionFailed,
		ErrQueryTimeout,
		ErrStoreUnavailable,
		ErrDatasetNotFound,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

const (
	opLoad     = "load"
	opMetadata = "metadata"
	opPayload  = "payload"
	opExtend   = "extend"
)

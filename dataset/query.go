package dataset

import (
	"slices"
	"strconv"
	"strings"

	"github.com/jonwraymond/dataops/warehouse"
)

// DefaultMaxRows caps every query unless configured otherwise.
const DefaultMaxRows = 50000

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// MaxRows is the LIMIT appended to every query.
	// Default: 50000
	MaxRows int

	// Placeholder is the bind syntax of the target warehouse.
	// Default: ?
	Placeholder warehouse.Placeholder
}

// Builder turns requests into parameter-bound SQL.
//
// The projection is the sorted union of dimensions and metrics. A single
// source is selected directly; several sources are combined with UNION ALL
// in a derived table so the filters and limit apply to the union. Sources
// are assumed to share the projected columns; a mismatch surfaces as a
// warehouse error at execution.
type Builder struct {
	maxRows     int
	placeholder warehouse.Placeholder
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Builder{maxRows: cfg.MaxRows, placeholder: cfg.Placeholder}
}

// MaxRows returns the row ceiling.
func (b *Builder) MaxRows() int {
	return b.maxRows
}

// Build returns the query for req. Filters with empty values are skipped.
// Filter values are always bound as parameters, never inlined.
func (b *Builder) Build(req Request) (warehouse.Query, error) {
	if err := req.Validate(); err != nil {
		return warehouse.Query{}, err
	}
	req = req.Normalize()

	columns := req.Columns()
	filters := filterColumns(req.Filters)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	if len(req.Sources) == 1 {
		sb.WriteString(req.Sources[0])
	} else {
		// The branches also carry the filter columns so the outer WHERE
		// can see them.
		inner := strings.Join(sortedSet(slices.Concat(columns, filters)), ", ")
		sb.WriteString("(")
		for i, src := range req.Sources {
			if i > 0 {
				sb.WriteString(" UNION ALL ")
			}
			sb.WriteString("SELECT ")
			sb.WriteString(inner)
			sb.WriteString(" FROM ")
			sb.WriteString(src)
		}
		sb.WriteString(") AS src")
	}

	var args []any
	for _, col := range filters {
		if len(args) == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, req.Filters[col])
		sb.WriteString(col)
		sb.WriteString(" = ")
		sb.WriteString(b.placeholder.Format(len(args)))
	}

	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(b.maxRows))

	return warehouse.Query{Text: sb.String(), Args: args}, nil
}

// filterColumns returns the sorted names of filters with a non-empty value.
func filterColumns(filters map[string]string) []string {
	cols := make([]string, 0, len(filters))
	for k, v := range filters {
		if v != "" {
			cols = append(cols, k)
		}
	}
	return sortedSet(cols)
}

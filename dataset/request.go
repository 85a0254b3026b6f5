package dataset

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
)

// Request describes a dataset: the sources to read, the columns to project
// and equality filters. Sources, dimensions and metrics are sets; order and
// duplicates do not matter.
type Request struct {
	Sources    []string          `json:"sources" yaml:"sources" msgpack:"sources"`
	Dimensions []string          `json:"dimensions" yaml:"dimensions" msgpack:"dimensions"`
	Metrics    []string          `json:"metrics" yaml:"metrics" msgpack:"metrics"`
	Filters    map[string]string `json:"filters,omitempty" yaml:"filters" msgpack:"filters"`
}

var (
	// column and filter names: a single identifier.
	columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	// sources: table, schema.table or database.schema.table.
	sourcePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)
)

// Normalize returns a copy with every set sorted and de-duplicated. Empty
// sets and filters become nil.
func (r Request) Normalize() Request {
	out := Request{
		Sources:    sortedSet(r.Sources),
		Dimensions: sortedSet(r.Dimensions),
		Metrics:    sortedSet(r.Metrics),
	}
	if len(r.Filters) > 0 {
		out.Filters = maps.Clone(r.Filters)
	}
	return out
}

// Columns returns the projection: the sorted union of dimensions and metrics.
func (r Request) Columns() []string {
	return sortedSet(slices.Concat(r.Dimensions, r.Metrics))
}

// Validate reports whether the request can be turned into a query. The
// returned error wraps ErrInvalidRequest.
func (r Request) Validate() error {
	if err := r.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (r Request) validate() error {
	if len(r.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	if len(r.Dimensions) == 0 && len(r.Metrics) == 0 {
		return errors.New("at least one dimension or metric is required")
	}
	for _, s := range r.Sources {
		if !sourcePattern.MatchString(s) {
			return fmt.Errorf("invalid source %q", s)
		}
	}
	for _, c := range slices.Concat(r.Dimensions, r.Metrics) {
		if !columnPattern.MatchString(c) {
			return fmt.Errorf("invalid column %q", c)
		}
	}
	for k := range r.Filters {
		if !columnPattern.MatchString(k) {
			return fmt.Errorf("invalid filter column %q", k)
		}
	}
	return nil
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

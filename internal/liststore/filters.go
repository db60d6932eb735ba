package liststore

import (
	"maps"
	"net/url"
)

// Filters is the named set of query parameters narrowing a list query.
// Two sets describe the same query iff their Key values are equal.
type Filters map[string]string

// Key returns the canonical form: empty values dropped, keys sorted, query-encoded.
func (f Filters) Key() string {
	// Encode sorts by key.
	return f.Values().Encode()
}

// Equal compares two filter sets by canonical key.
func (f Filters) Equal(other Filters) bool {
	return f.Key() == other.Key()
}

// Clone returns a copy the caller may mutate freely.
func (f Filters) Clone() Filters {
	if f == nil {
		return Filters{}
	}
	return maps.Clone(f)
}

// Values returns the filters as URL query values, skipping empty entries.
func (f Filters) Values() url.Values {
	v := make(url.Values, len(f))
	for k, val := range f {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

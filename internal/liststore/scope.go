package liststore

import (
	"github.com/gvafram3/parcel-console/internal/model"
)

// ViewerSource yields the role and scope of whoever is using the store.
// ok is false when nobody is signed in.
type ViewerSource interface {
	Viewer() (v model.Viewer, ok bool)
}

// scopeFilter keeps items whose scope id (office, station) matches the viewer's.
type scopeFilter[T any] struct {
	viewers ViewerSource
	scopeOf func(T) string
}

// apply narrows items to the viewer's scope. Privileged viewers, unknown viewers
// and viewers without a scope id get the items unchanged. The server is still the
// authorization boundary; this only keeps foreign rows out of the cache.
func (f *scopeFilter[T]) apply(items []T) ([]T, int) {
	if f == nil || f.viewers == nil || f.scopeOf == nil {
		return items, 0
	}
	v, ok := f.viewers.Viewer()
	if !ok || v.Privileged() || v.ScopeID == "" {
		return items, 0
	}
	kept := make([]T, 0, len(items))
	for _, it := range items {
		if f.scopeOf(it) == v.ScopeID {
			kept = append(kept, it)
		}
	}
	return kept, len(items) - len(kept)
}

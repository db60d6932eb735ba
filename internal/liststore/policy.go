package liststore

import (
	"time"
)

// DefaultTTL is how long a fetched page may be served from memory.
const DefaultTTL = 5 * time.Minute

// Decision is the outcome of the freshness policy for one request.
type Decision int

const (
	FetchRequired Decision = iota
	ServeFromCache
	ServeFromNextPage
)

func (d Decision) String() string {
	switch d {
	case ServeFromCache:
		return "serve_from_cache"
	case ServeFromNextPage:
		return "serve_from_next_page"
	default:
		return "fetch_required"
	}
}

// Request identifies one page of one query.
type Request struct {
	Filters Filters
	Page    int
	Size    int
}

// Pageable is the page/size pair a record was fetched for.
type Pageable struct {
	Page int
	Size int
}

// CacheRecord is the snapshot of what is currently displayed.
type CacheRecord[T any] struct {
	Items      []T
	Pagination Pagination
	Filters    Filters
	FiltersKey string
	Pageable   Pageable
	// Received is how many items the source returned, before the scope filter.
	Received int
	// LastFetch is zero when the record was never filled or has been invalidated.
	LastFetch time.Time
}

func (c *CacheRecord[T]) matches(page, size int, filtersKey string) bool {
	return c.Pageable.Page == page && c.Pageable.Size == size && c.FiltersKey == filtersKey
}

// NextPageRecord holds one speculatively fetched page.
type NextPageRecord[T any] struct {
	Page          int
	Size          int
	FiltersKey    string
	Items         []T
	Received      int
	TotalElements int64
	TotalPages    int
	FetchedAt     time.Time
}

func (n *NextPageRecord[T]) matches(page, size int, filtersKey string) bool {
	return n.Page == page && n.Size == size && n.FiltersKey == filtersKey
}

// Policy holds the knobs of the freshness decision.
type Policy struct {
	TTL time.Duration
	// EmptyIsMiss treats a fetched page with zero items as not cached,
	// so empty results are re-fetched on every call.
	EmptyIsMiss bool
}

// Decide is the cache freshness policy. It has no side effects.
// A next-page match wins without a TTL check: that page was fetched moments ago by the store itself.
func Decide[T any](p Policy, req Request, force bool, cur *CacheRecord[T], next *NextPageRecord[T], now time.Time) Decision {
	if force {
		return FetchRequired
	}
	key := req.Filters.Key()
	if next != nil && next.matches(req.Page, req.Size, key) {
		return ServeFromNextPage
	}
	if cur == nil || cur.LastFetch.IsZero() || !cur.matches(req.Page, req.Size, key) {
		return FetchRequired
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now.Sub(cur.LastFetch) >= ttl {
		return FetchRequired
	}
	if len(cur.Items) == 0 && p.EmptyIsMiss {
		return FetchRequired
	}
	return ServeFromCache
}

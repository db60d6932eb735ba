package repository

// Page represents a simple limit/offset window for listing operations.
// I keep it intentionally small; advanced filtering belongs to the filter types.
type Page struct {
	Limit  int
	Offset int
}

// PageOf converts a zero-based page number and page size into a window.
func PageOf(page, size int) Page {
	return Page{Limit: size, Offset: page * size}
}

// PageResult carries a slice of items and the total count matching the query.
// I return the total so clients can compute pagination without an extra round trip.
type PageResult[T any] struct {
	Items []T
	Total int
}

// TotalPages is the number of pages of the given size the result spans.
func (r PageResult[T]) TotalPages(size int) int {
	if size <= 0 {
		return 0
	}
	return (r.Total + size - 1) / size
}

// Window applies p to items, clamping out-of-range offsets to an empty slice.
func Window[T any](items []T, p Page) []T {
	if p.Offset < 0 || p.Offset >= len(items) || p.Limit <= 0 {
		return []T{}
	}
	end := min(p.Offset+p.Limit, len(items))
	out := make([]T, end-p.Offset)
	copy(out, items[p.Offset:end])
	return out
}

package liststore

import (
	"errors"
	"fmt"
)

// ErrInvalidEnvelope marks a page envelope whose metadata contradicts itself.
var ErrInvalidEnvelope = errors.New("invalid page envelope")

// Pagination is the metadata half of a page envelope.
type Pagination struct {
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

// Envelope is one page of a remote list plus its pagination metadata.
// Page is zero-based.
type Envelope[T any] struct {
	Items []T
	Pagination
}

// Validate checks 0 <= Page < TotalPages (when TotalPages > 0) and len(Items) <= Size.
func (e Envelope[T]) Validate() error {
	if e.Page < 0 {
		return fmt.Errorf("%w: negative page %d", ErrInvalidEnvelope, e.Page)
	}
	if e.TotalPages > 0 && e.Page >= e.TotalPages {
		return fmt.Errorf("%w: page %d out of range (total pages %d)", ErrInvalidEnvelope, e.Page, e.TotalPages)
	}
	if e.Size > 0 && len(e.Items) > e.Size {
		return fmt.Errorf("%w: %d items exceed page size %d", ErrInvalidEnvelope, len(e.Items), e.Size)
	}
	return nil
}

// hasNext reports whether a page after the given one plausibly exists.
// Sources that do not report totals get the benefit of the doubt when the page came back full.
func hasNext(p Pagination, itemCount, page, size int) bool {
	if p.TotalPages > 0 {
		return page+1 < p.TotalPages
	}
	return size > 0 && itemCount >= size
}

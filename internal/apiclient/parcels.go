package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// pageDTO is the backend's paged list envelope.
type pageDTO[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

func (p pageDTO[T]) envelope() liststore.Envelope[T] {
	return liststore.Envelope[T]{
		Items: p.Content,
		Pagination: liststore.Pagination{
			TotalElements: p.TotalElements,
			TotalPages:    p.TotalPages,
			Page:          p.Page,
			Size:          p.Size,
		},
	}
}

func pageQuery(filters liststore.Filters, page, size int) url.Values {
	q := filters.Values()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q
}

func searchPage[T any](ctx context.Context, c *Client, resource string, filters liststore.Filters, page, size int) (liststore.Envelope[T], error) {
	var dto pageDTO[T]
	if err := c.do(ctx, c.authed, http.MethodGet, c.resolve(pageQuery(filters, page, size), resource), nil, &dto); err != nil {
		return liststore.Envelope[T]{}, err
	}
	return dto.envelope(), nil
}

// SearchParcels fetches one page of parcels matching filters.
func (c *Client) SearchParcels(ctx context.Context, filters liststore.Filters, page, size int) (liststore.Envelope[model.Parcel], error) {
	return searchPage[model.Parcel](ctx, c, "parcels", filters, page, size)
}

// MarkDelivered flags a parcel as delivered and returns the updated record.
func (c *Client) MarkDelivered(ctx context.Context, id string) (model.Parcel, error) {
	var p model.Parcel
	err := c.do(ctx, c.authed, http.MethodPatch, c.resolve(nil, "parcels", url.PathEscape(id), "deliver"), nil, &p)
	return p, err
}

// ParcelSource adapts the client to a list store source.
func (c *Client) ParcelSource() liststore.Source[model.Parcel] {
	return liststore.SourceFunc[model.Parcel](c.SearchParcels)
}

package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// SearchUsers fetches one page of console users matching filters.
func (c *Client) SearchUsers(ctx context.Context, filters liststore.Filters, page, size int) (liststore.Envelope[model.User], error) {
	return searchPage[model.User](ctx, c, "users", filters, page, size)
}

// DeactivateUser disables a console account.
func (c *Client) DeactivateUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := c.do(ctx, c.authed, http.MethodPatch, c.resolve(nil, "users", url.PathEscape(id), "deactivate"), nil, &u)
	return u, err
}

func (c *Client) UserSource() liststore.Source[model.User] {
	return liststore.SourceFunc[model.User](c.SearchUsers)
}

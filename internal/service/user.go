package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// UserQuery is the user admin screen's query. OfficeID and Active go to the
// server; Search and Role narrow client-side.
type UserQuery struct {
	OfficeID string
	Active   *bool
	Role     model.Role
	Search   string
	Page     int
	Size     int
}

func (q UserQuery) Filters() liststore.Filters {
	f := liststore.Filters{"officeId": q.OfficeID}
	if q.Active != nil {
		if *q.Active {
			f["active"] = "true"
		} else {
			f["active"] = "false"
		}
	}
	return f
}

func (q UserQuery) normalize() UserQuery {
	q.OfficeID = strings.TrimSpace(q.OfficeID)
	if q.Role != "" {
		q.Role = model.ParseRole(string(q.Role))
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Page, q.Size = normalizePaging(q.Page, q.Size)
	return q
}

func (q UserQuery) validate() error {
	ferrs := validatePaging(q.Page, q.Size)
	if q.Role != "" && !q.Role.Valid() {
		ferrs = append(ferrs, FieldError{Field: "role", Message: "must be one of ADMIN, MANAGER, FRONTDESK, RIDER"})
	}
	ferrs = append(ferrs, validateSearch(q.Search)...)
	return newInvalidInput(ferrs)
}

type userAdmin struct {
	store   ListStore[model.User]
	api     UserAPI
	onError func(error)
	log     zerolog.Logger
}

func NewUserAdmin(store ListStore[model.User], api UserAPI, onError func(error), logger zerolog.Logger) UserAdmin {
	l := logger.With().Str("module", "service").Str("component", "user_admin").Logger()
	return &userAdmin{store: store, api: api, onError: onError, log: l}
}

func (a *userAdmin) Open(ctx context.Context, q UserQuery) (View[model.User], error) {
	return a.load(ctx, q, true)
}

func (a *userAdmin) Page(ctx context.Context, q UserQuery, page int) (View[model.User], error) {
	q.Page = page
	return a.load(ctx, q, false)
}

func (a *userAdmin) ChangeFilters(ctx context.Context, q UserQuery) (View[model.User], error) {
	a.store.Invalidate()
	return a.load(ctx, q, true)
}

func (a *userAdmin) Refresh(ctx context.Context, q UserQuery) (View[model.User], error) {
	q = q.normalize()
	if err := q.validate(); err != nil {
		return View[model.User]{}, err
	}
	st, err := a.store.Refresh(ctx, q.Filters(), q.Page, q.Size)
	return View[model.User]{Rows: DeriveUsers(st.Items, q), State: st}, err
}

func (a *userAdmin) PrefetchNext(q UserQuery) bool {
	q = q.normalize()
	if q.validate() != nil {
		return false
	}
	return a.store.Prefetch(q.Filters(), q.Page, q.Size)
}

func (a *userAdmin) Deactivate(ctx context.Context, q UserQuery, id string) (View[model.User], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View[model.User]{}, newInvalidInput([]FieldError{{Field: "id", Message: "must not be empty"}})
	}
	q = q.normalize()
	if err := q.validate(); err != nil {
		return View[model.User]{}, err
	}
	start := time.Now()
	if _, err := a.api.DeactivateUser(ctx, id); err != nil {
		a.log.Error().Err(err).Str("user_id", id).Msg("deactivate user failed")
		if a.onError != nil {
			a.onError(err)
		}
		return View[model.User]{}, err
	}
	a.log.Info().Dur("took", time.Since(start)).Str("user_id", id).Msg("user deactivated")

	st, err := a.store.Refresh(ctx, q.Filters(), q.Page, q.Size)
	return View[model.User]{Rows: DeriveUsers(st.Items, q), State: st}, err
}

func (a *userAdmin) Derive(items []model.User, q UserQuery) []model.User {
	return DeriveUsers(items, q)
}

func (a *userAdmin) Stats() liststore.Stats { return a.store.Stats() }

func (a *userAdmin) load(ctx context.Context, q UserQuery, showLoading bool) (View[model.User], error) {
	q = q.normalize()
	if err := q.validate(); err != nil {
		a.log.Debug().Interface("field_errors", FieldErrors(err)).Msg("user query validation failed")
		return View[model.User]{}, err
	}
	st, err := a.store.LoadIfNeeded(ctx, q.Filters(), q.Page, q.Size, showLoading)
	return View[model.User]{Rows: DeriveUsers(st.Items, q), State: st}, err
}

// DeriveUsers narrows a loaded page by role and by a search over name,
// email and phone.
func DeriveUsers(items []model.User, q UserQuery) []model.User {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	role := q.Role
	if role != "" {
		role = model.ParseRole(string(role))
	}
	out := make([]model.User, 0, len(items))
	for _, u := range items {
		if role != "" && u.Role != role {
			continue
		}
		if needle != "" && !(foldContains(u.Name, needle) || foldContains(u.Email, needle) || phoneMatches(u.Phone, needle)) {
			continue
		}
		out = append(out, u)
	}
	return out
}

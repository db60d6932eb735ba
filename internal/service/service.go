// Package service holds the console's screens as plain Go consumers of the
// list stores: query validation, client-side narrowing and mutate-then-refresh.
package service

import (
	"context"
	"errors"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// ErrInvalidInput is the marker error for aggregated validation failures.
// Field-level details are retrieved via FieldErrors(err).
var ErrInvalidInput = errors.New("invalid input")

// FieldError describes a single invalid field in a query.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// invalidInputError aggregates multiple FieldError instances and unwraps to ErrInvalidInput.
type invalidInputError struct {
	fields []FieldError
}

func (e *invalidInputError) Error() string        { return ErrInvalidInput.Error() }
func (e *invalidInputError) Unwrap() error        { return ErrInvalidInput }
func (e *invalidInputError) Fields() []FieldError { return e.fields }

func newInvalidInput(fe []FieldError) error {
	if len(fe) == 0 {
		return nil
	}
	return &invalidInputError{fields: fe}
}

// InvalidInput builds an aggregated validation error; nil when fields is empty.
func InvalidInput(fields ...FieldError) error {
	return newInvalidInput(fields)
}

// FieldErrors extracts field errors from an aggregated validation error.
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}
	var v interface{ Fields() []FieldError }
	if errors.As(err, &v) && errors.Is(err, ErrInvalidInput) {
		return v.Fields()
	}
	return nil
}

// ListStore is the part of liststore.Store a screen drives.
type ListStore[T any] interface {
	LoadIfNeeded(ctx context.Context, filters liststore.Filters, page, size int, showLoading bool) (liststore.State[T], error)
	Refresh(ctx context.Context, filters liststore.Filters, page, size int) (liststore.State[T], error)
	Invalidate()
	Prefetch(filters liststore.Filters, page, size int) bool
	Stats() liststore.Stats
}

// View is what a screen renders: the narrowed rows plus the store snapshot
// they came from.
type View[T any] struct {
	Rows  []T
	State liststore.State[T]
}

// ParcelAPI is the mutation surface the parcel desk needs.
type ParcelAPI interface {
	MarkDelivered(ctx context.Context, id string) (model.Parcel, error)
}

// UserAPI is the mutation surface the user admin screen needs.
type UserAPI interface {
	DeactivateUser(ctx context.Context, id string) (model.User, error)
}

// ParcelDesk is the front-desk parcel list.
type ParcelDesk interface {
	Open(ctx context.Context, q ParcelQuery) (View[model.Parcel], error)
	Page(ctx context.Context, q ParcelQuery, page int) (View[model.Parcel], error)
	Derive(items []model.Parcel, q ParcelQuery) []model.Parcel
	MarkDelivered(ctx context.Context, q ParcelQuery, id string) (View[model.Parcel], error)
	ChangeFilters(ctx context.Context, q ParcelQuery) (View[model.Parcel], error)
	Refresh(ctx context.Context, q ParcelQuery) (View[model.Parcel], error)
	// PrefetchNext warms the page after q while the screen is idle.
	PrefetchNext(q ParcelQuery) bool
	Stats() liststore.Stats
}

// UserAdmin is the console account list.
type UserAdmin interface {
	Open(ctx context.Context, q UserQuery) (View[model.User], error)
	Page(ctx context.Context, q UserQuery, page int) (View[model.User], error)
	Derive(items []model.User, q UserQuery) []model.User
	Deactivate(ctx context.Context, q UserQuery, id string) (View[model.User], error)
	ChangeFilters(ctx context.Context, q UserQuery) (View[model.User], error)
	Refresh(ctx context.Context, q UserQuery) (View[model.User], error)
	PrefetchNext(q UserQuery) bool
	Stats() liststore.Stats
}

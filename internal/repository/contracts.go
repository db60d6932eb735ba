package repository

import (
	"context"
	"time"

	"github.com/gvafram3/parcel-console/internal/model"
)

// Pinger represents a minimal readiness probe capability.
// I use it to decouple health checks from storage implementation details.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ParcelFilter narrows a parcel search. Zero values mean "any".
type ParcelFilter struct {
	OfficeID  string
	Status    model.ParcelStatus
	Delivered *bool
	RiderID   string
}

// UserFilter narrows a user search. Zero values mean "any".
type UserFilter struct {
	OfficeID string
	Role     model.Role
	Active   *bool
}

// ParcelRepository declares storage operations for parcels.
// Search orders newest first so page boundaries are stable between calls.
type ParcelRepository interface {
	Create(ctx context.Context, p model.Parcel) (model.Parcel, error)
	GetByID(ctx context.Context, id string) (model.Parcel, error)
	Search(ctx context.Context, f ParcelFilter, p Page) (PageResult[model.Parcel], error)
	// MarkDelivered returns ErrConflict when the parcel is already delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) (model.Parcel, error)
}

// UserRepository declares storage operations for console accounts.
type UserRepository interface {
	Create(ctx context.Context, u model.User, password string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	// Authenticate returns ErrInvalidCredentials for an unknown email, a wrong
	// password or a deactivated account; callers can't tell which.
	Authenticate(ctx context.Context, email, password string) (model.User, error)
	Search(ctx context.Context, f UserFilter, p Page) (PageResult[model.User], error)
	// Deactivate returns ErrConflict when the account is already inactive.
	Deactivate(ctx context.Context, id string) (model.User, error)
}

// TokenRepository issues and resolves opaque bearer tokens.
type TokenRepository interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (token string, expiresAt time.Time, err error)
	// Resolve returns ErrNotFound for unknown or expired tokens.
	Resolve(ctx context.Context, token string) (userID string, err error)
	Revoke(ctx context.Context, token string) error
}

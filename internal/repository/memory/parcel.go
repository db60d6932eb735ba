package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

type parcelRepo struct {
	db *DB
}

func NewParcelRepository(db *DB) repository.ParcelRepository {
	return &parcelRepo{db: db}
}

func (r *parcelRepo) Create(ctx context.Context, p model.Parcel) (model.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return model.Parcel{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := r.db.parcels[p.ID]; ok {
		return model.Parcel{}, repository.ErrAlreadyExists
	}
	for _, existing := range r.db.parcels {
		if strings.EqualFold(existing.TrackingNumber, p.TrackingNumber) {
			return model.Parcel{}, repository.ErrAlreadyExists
		}
	}
	now := r.db.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.StatusRegistered
	}
	r.db.parcels[p.ID] = p
	return p, nil
}

func (r *parcelRepo) GetByID(ctx context.Context, id string) (model.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return model.Parcel{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.parcels[id]
	if !ok {
		return model.Parcel{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *parcelRepo) Search(ctx context.Context, f repository.ParcelFilter, p repository.Page) (repository.PageResult[model.Parcel], error) {
	if err := ctx.Err(); err != nil {
		return repository.PageResult[model.Parcel]{}, err
	}
	r.db.mu.RLock()
	match := make([]model.Parcel, 0, len(r.db.parcels))
	for _, parcel := range r.db.parcels {
		if parcelMatches(parcel, f) {
			match = append(match, parcel)
		}
	}
	r.db.mu.RUnlock()

	slices.SortFunc(match, func(a, b model.Parcel) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return repository.PageResult[model.Parcel]{Items: repository.Window(match, p), Total: len(match)}, nil
}

func (r *parcelRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (model.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return model.Parcel{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.parcels[id]
	if !ok {
		return model.Parcel{}, repository.ErrNotFound
	}
	if p.Delivered {
		return model.Parcel{}, repository.ErrConflict
	}
	p.Delivered = true
	p.Status = model.StatusDelivered
	p.UpdatedAt = at
	r.db.parcels[id] = p
	return p, nil
}

func parcelMatches(p model.Parcel, f repository.ParcelFilter) bool {
	if f.OfficeID != "" && p.OfficeID != f.OfficeID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Delivered != nil && p.Delivered != *f.Delivered {
		return false
	}
	if f.RiderID != "" && p.RiderID != f.RiderID {
		return false
	}
	return true
}

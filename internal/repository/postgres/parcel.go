package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

const parcelColumns = `id, tracking_number, sender_name, sender_phone, receiver_name, receiver_phone,
	receiver_address, office_id, rider_id, status, delivered, delivery_fee, created_at, updated_at`

type parcelRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewParcelRepository stores parcels in Postgres. now may be nil to use time.Now.
func NewParcelRepository(pool *pgxpool.Pool, now func() time.Time) repository.ParcelRepository {
	if now == nil {
		now = time.Now
	}
	return &parcelRepository{pool: pool, now: now}
}

func scanParcel(row pgx.Row) (model.Parcel, error) {
	var (
		p      model.Parcel
		status string
	)
	err := row.Scan(&p.ID, &p.TrackingNumber, &p.SenderName, &p.SenderPhone, &p.ReceiverName, &p.ReceiverPhone,
		&p.ReceiverAddress, &p.OfficeID, &p.RiderID, &status, &p.Delivered, &p.DeliveryFee, &p.CreatedAt, &p.UpdatedAt)
	p.Status = model.ParcelStatus(status)
	return p, err
}

func (r *parcelRepository) Create(ctx context.Context, p model.Parcel) (model.Parcel, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.StatusRegistered
	}
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO parcels (`+parcelColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.TrackingNumber, p.SenderName, p.SenderPhone, p.ReceiverName, p.ReceiverPhone,
		p.ReceiverAddress, p.OfficeID, p.RiderID, string(p.Status), p.Delivered, p.DeliveryFee, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.Parcel{}, repository.MapPgError(err)
	}
	return p, nil
}

func (r *parcelRepository) GetByID(ctx context.Context, id string) (model.Parcel, error) {
	p, err := scanParcel(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Parcel{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Parcel{}, repository.MapPgError(err)
	}
	return p, nil
}

func parcelWhere(f repository.ParcelFilter) *where {
	w := &where{}
	if f.OfficeID != "" {
		w.add("office_id = $%d", f.OfficeID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.Delivered != nil {
		w.add("delivered = $%d", *f.Delivered)
	}
	if f.RiderID != "" {
		w.add("rider_id = $%d", f.RiderID)
	}
	return w
}

// Search counts separately from the page query so an out-of-range page still
// reports the total.
func (r *parcelRepository) Search(ctx context.Context, f repository.ParcelFilter, p repository.Page) (repository.PageResult[model.Parcel], error) {
	q := conn(ctx, r.pool)
	w := parcelWhere(f)

	var res repository.PageResult[model.Parcel]
	if err := q.QueryRow(ctx, `SELECT count(*) FROM parcels`+w.String(), w.args...).Scan(&res.Total); err != nil {
		return repository.PageResult[model.Parcel]{}, repository.MapPgError(err)
	}
	res.Items = []model.Parcel{}
	if p.Limit <= 0 || p.Offset >= res.Total {
		return res, nil
	}

	limit, args := w.page(p)
	rows, err := q.Query(ctx, `SELECT `+parcelColumns+` FROM parcels`+w.String()+
		` ORDER BY created_at DESC, id`+limit, args...)
	if err != nil {
		return repository.PageResult[model.Parcel]{}, repository.MapPgError(err)
	}
	defer rows.Close()
	for rows.Next() {
		parcel, err := scanParcel(rows)
		if err != nil {
			return repository.PageResult[model.Parcel]{}, repository.MapPgError(err)
		}
		res.Items = append(res.Items, parcel)
	}
	if err := rows.Err(); err != nil {
		return repository.PageResult[model.Parcel]{}, repository.MapPgError(err)
	}
	return res, nil
}

func (r *parcelRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (model.Parcel, error) {
	q := conn(ctx, r.pool)
	p, err := scanParcel(q.QueryRow(ctx,
		`UPDATE parcels SET delivered = TRUE, status = $2, updated_at = $3
		 WHERE id = $1 AND NOT delivered
		 RETURNING `+parcelColumns,
		id, string(model.StatusDelivered), at,
	))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Parcel{}, repository.MapPgError(err)
	}
	// Nothing updated: either the parcel is missing or it was already delivered.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM parcels WHERE id = $1)`, id).Scan(&exists); err != nil {
		return model.Parcel{}, repository.MapPgError(err)
	}
	if !exists {
		return model.Parcel{}, repository.ErrNotFound
	}
	return model.Parcel{}, repository.ErrConflict
}

var _ repository.ParcelRepository = (*parcelRepository)(nil)

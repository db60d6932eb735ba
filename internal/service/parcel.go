package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// ParcelQuery is the parcel desk's current query. OfficeID, Status and
// Delivered go to the server; Search and the From/To calendar days narrow the
// loaded page client-side.
type ParcelQuery struct {
	OfficeID  string
	Status    model.ParcelStatus
	Delivered *bool
	Search    string
	From      time.Time
	To        time.Time
	Page      int
	Size      int
}

// Filters is the server-side part of the query.
func (q ParcelQuery) Filters() liststore.Filters {
	f := liststore.Filters{
		"officeId": q.OfficeID,
		"status":   string(q.Status),
	}
	if q.Delivered != nil {
		f["delivered"] = strconv.FormatBool(*q.Delivered)
	}
	return f
}

func (q ParcelQuery) normalize() ParcelQuery {
	q.OfficeID = strings.TrimSpace(q.OfficeID)
	q.Status = model.ParcelStatus(strings.ToUpper(strings.TrimSpace(string(q.Status))))
	q.Search = strings.TrimSpace(q.Search)
	q.Page, q.Size = normalizePaging(q.Page, q.Size)
	return q
}

func (q ParcelQuery) validate() error {
	ferrs := validatePaging(q.Page, q.Size)
	if q.Status != "" && !isValidParcelStatus(q.Status) {
		ferrs = append(ferrs, FieldError{Field: "status", Message: "must be one of REGISTERED, ASSIGNED, IN_TRANSIT, DELIVERED, RETURNED"})
	}
	if !q.From.IsZero() && !q.To.IsZero() && day(q.To).Before(day(q.From)) {
		ferrs = append(ferrs, FieldError{Field: "to", Message: "must not be before from"})
	}
	ferrs = append(ferrs, validateSearch(q.Search)...)
	return newInvalidInput(ferrs)
}

type parcelDesk struct {
	store   ListStore[model.Parcel]
	api     ParcelAPI
	onError func(error)
	log     zerolog.Logger
}

// NewParcelDesk builds the parcel desk. onError, when set, receives mutation
// failures (the store reports its own fetch failures).
func NewParcelDesk(store ListStore[model.Parcel], api ParcelAPI, onError func(error), logger zerolog.Logger) ParcelDesk {
	l := logger.With().Str("module", "service").Str("component", "parcel_desk").Logger()
	return &parcelDesk{store: store, api: api, onError: onError, log: l}
}

func (d *parcelDesk) Open(ctx context.Context, q ParcelQuery) (View[model.Parcel], error) {
	return d.load(ctx, q, true)
}

func (d *parcelDesk) Page(ctx context.Context, q ParcelQuery, page int) (View[model.Parcel], error) {
	q.Page = page
	// Navigation keeps the current rows on screen; prefetched pages arrive instantly.
	return d.load(ctx, q, false)
}

func (d *parcelDesk) ChangeFilters(ctx context.Context, q ParcelQuery) (View[model.Parcel], error) {
	d.store.Invalidate()
	return d.load(ctx, q, true)
}

func (d *parcelDesk) Refresh(ctx context.Context, q ParcelQuery) (View[model.Parcel], error) {
	q = q.normalize()
	if err := q.validate(); err != nil {
		return View[model.Parcel]{}, err
	}
	st, err := d.store.Refresh(ctx, q.Filters(), q.Page, q.Size)
	return View[model.Parcel]{Rows: DeriveParcels(st.Items, q), State: st}, err
}

func (d *parcelDesk) PrefetchNext(q ParcelQuery) bool {
	q = q.normalize()
	if q.validate() != nil {
		return false
	}
	return d.store.Prefetch(q.Filters(), q.Page, q.Size)
}

func (d *parcelDesk) MarkDelivered(ctx context.Context, q ParcelQuery, id string) (View[model.Parcel], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View[model.Parcel]{}, newInvalidInput([]FieldError{{Field: "id", Message: "must not be empty"}})
	}
	q = q.normalize()
	if err := q.validate(); err != nil {
		return View[model.Parcel]{}, err
	}
	start := time.Now()
	if _, err := d.api.MarkDelivered(ctx, id); err != nil {
		d.log.Error().Err(err).Str("parcel_id", id).Msg("mark delivered failed")
		if d.onError != nil {
			d.onError(err)
		}
		return View[model.Parcel]{}, err
	}
	d.log.Info().Dur("took", time.Since(start)).Str("parcel_id", id).Msg("parcel delivered")

	st, err := d.store.Refresh(ctx, q.Filters(), q.Page, q.Size)
	return View[model.Parcel]{Rows: DeriveParcels(st.Items, q), State: st}, err
}

func (d *parcelDesk) Derive(items []model.Parcel, q ParcelQuery) []model.Parcel {
	return DeriveParcels(items, q)
}

func (d *parcelDesk) Stats() liststore.Stats { return d.store.Stats() }

func (d *parcelDesk) load(ctx context.Context, q ParcelQuery, showLoading bool) (View[model.Parcel], error) {
	q = q.normalize()
	if err := q.validate(); err != nil {
		d.log.Debug().Interface("field_errors", FieldErrors(err)).Msg("parcel query validation failed")
		return View[model.Parcel]{}, err
	}
	st, err := d.store.LoadIfNeeded(ctx, q.Filters(), q.Page, q.Size, showLoading)
	return View[model.Parcel]{Rows: DeriveParcels(st.Items, q), State: st}, err
}

// DeriveParcels narrows a loaded page by the query's free-text search
// (tracking number, sender/receiver names and phones) and CreatedAt day range.
// It never mutates items.
func DeriveParcels(items []model.Parcel, q ParcelQuery) []model.Parcel {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.Parcel, 0, len(items))
	for _, p := range items {
		if !inDayRange(p.CreatedAt, q.From, q.To) {
			continue
		}
		if needle != "" && !parcelMatches(p, needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parcelMatches(p model.Parcel, needle string) bool {
	return foldContains(p.TrackingNumber, needle) ||
		foldContains(p.SenderName, needle) ||
		foldContains(p.ReceiverName, needle) ||
		phoneMatches(p.SenderPhone, needle) ||
		phoneMatches(p.ReceiverPhone, needle)
}

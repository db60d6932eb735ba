package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gvafram3/parcel-console/internal/liststore"
	"github.com/gvafram3/parcel-console/internal/model"
)

// fakeParcelBackend serves pages from an in-memory slice and records calls.
type fakeParcelBackend struct {
	mu        sync.Mutex
	parcels   []model.Parcel
	searches  []liststore.Filters
	delivered []string
	deliverFn func(id string) error
}

func (f *fakeParcelBackend) Search(_ context.Context, filters liststore.Filters, page, size int) (liststore.Envelope[model.Parcel], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, filters.Clone())
	var match []model.Parcel
	for _, p := range f.parcels {
		if o := filters["officeId"]; o != "" && p.OfficeID != o {
			continue
		}
		match = append(match, p)
	}
	total := len(match)
	from := min(page*size, total)
	to := min(from+size, total)
	pages := (total + size - 1) / size
	return liststore.Envelope[model.Parcel]{
		Items:      append([]model.Parcel(nil), match[from:to]...),
		Pagination: liststore.Pagination{TotalElements: int64(total), TotalPages: pages, Page: page, Size: size},
	}, nil
}

func (f *fakeParcelBackend) MarkDelivered(_ context.Context, id string) (model.Parcel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverFn != nil {
		if err := f.deliverFn(id); err != nil {
			return model.Parcel{}, err
		}
	}
	f.delivered = append(f.delivered, id)
	for i := range f.parcels {
		if f.parcels[i].ID == id {
			f.parcels[i].Delivered = true
			f.parcels[i].Status = model.StatusDelivered
			return f.parcels[i], nil
		}
	}
	return model.Parcel{}, errors.New("no such parcel")
}

func (f *fakeParcelBackend) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func seedParcels() []model.Parcel {
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []model.Parcel{
		{ID: "p1", TrackingNumber: "TRK-1001", SenderName: "Kofi Mensah", ReceiverName: "Ama Owusu", ReceiverPhone: "024 555 0101", OfficeID: "accra", CreatedAt: day},
		{ID: "p2", TrackingNumber: "TRK-1002", SenderName: "Yaw Boateng", ReceiverName: "Esi Addo", ReceiverPhone: "020 111 2222", OfficeID: "accra", CreatedAt: day.AddDate(0, 0, 1)},
		{ID: "p3", TrackingNumber: "TRK-1003", SenderName: "Abena Darko", ReceiverName: "Kwame Asante", OfficeID: "accra", CreatedAt: day.AddDate(0, 0, 2)},
		{ID: "p4", TrackingNumber: "TRK-2001", SenderName: "Efua Sarpong", ReceiverName: "Kojo Annan", OfficeID: "kumasi", CreatedAt: day},
	}
}

func newTestDesk(t *testing.T, backend *fakeParcelBackend, onError func(error)) (ParcelDesk, *liststore.Store[model.Parcel]) {
	t.Helper()
	store := liststore.New[model.Parcel](backend, liststore.WithLogger(zerolog.New(io.Discard)))
	t.Cleanup(func() { _ = store.Close() })
	return NewParcelDesk(store, backend, onError, zerolog.New(io.Discard)), store
}

func TestParcelQuery_Validation(t *testing.T) {
	from := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		q      ParcelQuery
		fields []string
	}{
		{"defaults are valid", ParcelQuery{}, nil},
		{"negative page", ParcelQuery{Page: -1}, []string{"page"}},
		{"size too large", ParcelQuery{Size: 101}, []string{"size"}},
		{"bad status", ParcelQuery{Status: "lost"}, []string{"status"}},
		{"status is case-insensitive", ParcelQuery{Status: "in_transit"}, nil},
		{"reversed dates", ParcelQuery{From: from, To: from.AddDate(0, 0, -1)}, []string{"to"}},
		{"same day", ParcelQuery{From: from, To: from}, nil},
		{"several at once", ParcelQuery{Page: -2, Size: -1}, []string{"page", "size"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.normalize().validate()
			if tc.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidInput)
			var got []string
			for _, fe := range FieldErrors(err) {
				got = append(got, fe.Field)
			}
			assert.Equal(t, tc.fields, got)
		})
	}
}

func TestParcelQuery_Filters(t *testing.T) {
	yes := true
	q := ParcelQuery{OfficeID: "accra", Delivered: &yes, Search: "kofi"}
	assert.Equal(t, "delivered=true&officeId=accra", q.Filters().Key(), "search stays client-side")
	assert.Equal(t, "", ParcelQuery{}.Filters().Key())
}

func TestDeriveParcels(t *testing.T) {
	items := seedParcels()
	cases := []struct {
		name string
		q    ParcelQuery
		want []string
	}{
		{"no narrowing", ParcelQuery{}, []string{"p1", "p2", "p3", "p4"}},
		{"tracking number", ParcelQuery{Search: "trk-100"}, []string{"p1", "p2", "p3"}},
		{"receiver name any case", ParcelQuery{Search: "ESI"}, []string{"p2"}},
		{"sender name", ParcelQuery{Search: "darko"}, []string{"p3"}},
		{"phone ignores spacing", ParcelQuery{Search: "0245550101"}, []string{"p1"}},
		{"tracking digits are not a phone", ParcelQuery{Search: "trk-555"}, []string{}},
		{"from day", ParcelQuery{From: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)}, []string{"p2", "p3"}},
		{"to day is inclusive", ParcelQuery{To: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)}, []string{"p1", "p2", "p4"}},
		{"search and range", ParcelQuery{Search: "trk-1", From: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)}, []string{"p3"}},
		{"nothing matches", ParcelQuery{Search: "nobody"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := []string{}
			for _, p := range DeriveParcels(items, tc.q) {
				got = append(got, p.ID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
	assert.Len(t, items, 4, "input untouched")
}

func TestParcelDesk_OpenAndPage(t *testing.T) {
	backend := &fakeParcelBackend{parcels: seedParcels()}
	desk, store := newTestDesk(t, backend, nil)
	ctx := context.Background()
	q := ParcelQuery{OfficeID: "accra", Size: 2}

	v, err := desk.Open(ctx, q)
	require.NoError(t, err)
	assert.Len(t, v.Rows, 2)
	assert.Equal(t, 2, v.State.Pagination.TotalPages)

	store.Wait()
	before := backend.searchCount()

	v, err = desk.Page(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "p3", v.Rows[0].ID)
	assert.Equal(t, before, backend.searchCount(), "second page came from prefetch")
	assert.Equal(t, int64(1), desk.Stats().PrefetchHits)
}

func TestParcelDesk_InvalidQueryDoesNotFetch(t *testing.T) {
	backend := &fakeParcelBackend{parcels: seedParcels()}
	desk, _ := newTestDesk(t, backend, nil)

	_, err := desk.Open(context.Background(), ParcelQuery{Size: 1000})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, backend.searchCount())
}

func TestParcelDesk_MarkDeliveredRefreshes(t *testing.T) {
	backend := &fakeParcelBackend{parcels: seedParcels()}
	desk, store := newTestDesk(t, backend, nil)
	ctx := context.Background()
	q := ParcelQuery{OfficeID: "accra", Size: 10}

	_, err := desk.Open(ctx, q)
	require.NoError(t, err)
	store.Wait()
	before := backend.searchCount()

	v, err := desk.MarkDelivered(ctx, q, " p2 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, backend.delivered)
	assert.Equal(t, before+1, backend.searchCount(), "refresh bypasses the ttl")
	for _, p := range v.Rows {
		if p.ID == "p2" {
			assert.True(t, p.Delivered)
		}
	}
}

func TestParcelDesk_MarkDeliveredFailure(t *testing.T) {
	boom := errors.New("backend down")
	backend := &fakeParcelBackend{parcels: seedParcels(), deliverFn: func(string) error { return boom }}
	var reported []error
	desk, _ := newTestDesk(t, backend, func(err error) { reported = append(reported, err) })

	_, err := desk.MarkDelivered(context.Background(), ParcelQuery{}, "p1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []error{boom}, reported)
	assert.Zero(t, backend.searchCount(), "no refresh after a failed mutation")

	_, err = desk.MarkDelivered(context.Background(), ParcelQuery{}, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParcelDesk_ChangeFiltersRefetches(t *testing.T) {
	backend := &fakeParcelBackend{parcels: seedParcels()}
	desk, store := newTestDesk(t, backend, nil)
	ctx := context.Background()
	q := ParcelQuery{OfficeID: "kumasi", Size: 10}

	_, err := desk.Open(ctx, q)
	require.NoError(t, err)
	_, err = desk.Open(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.searchCount(), "second open within ttl is served from cache")

	_, err = desk.ChangeFilters(ctx, q)
	require.NoError(t, err)
	store.Wait()
	assert.Equal(t, 2, backend.searchCount())
}

func TestParcelDesk_PrefetchNext(t *testing.T) {
	backend := &fakeParcelBackend{parcels: seedParcels()}
	desk, store := newTestDesk(t, backend, nil)
	q := ParcelQuery{OfficeID: "accra", Size: 2}

	assert.False(t, desk.PrefetchNext(q), "nothing loaded yet")

	_, err := desk.Open(context.Background(), q)
	require.NoError(t, err)
	store.Wait()
	before := backend.searchCount()

	assert.True(t, desk.PrefetchNext(q), "next page already warm")
	store.Wait()
	assert.Equal(t, before, backend.searchCount(), "no second request for a warm page")

	assert.False(t, desk.PrefetchNext(ParcelQuery{OfficeID: "accra", Size: 2, Page: 1}), "not the loaded page")
	assert.False(t, desk.PrefetchNext(ParcelQuery{Size: 1000}), "invalid query")
}

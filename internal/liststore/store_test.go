package liststore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gvafram3/parcel-console/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type item struct {
	ID     string
	Office string
}

type fakeCall struct {
	filters string
	page    int
	size    int
}

// fakeSource records every search. A gated page blocks until its gate is
// closed and ignores cancellation, so late responses can be simulated.
type fakeSource struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(filters Filters, page, size int) (Envelope[item], error)
	gates   map[int]chan struct{}
}

func newFakeSource(respond func(Filters, int, int) (Envelope[item], error)) *fakeSource {
	return &fakeSource{respond: respond, gates: map[int]chan struct{}{}}
}

func (f *fakeSource) Search(_ context.Context, filters Filters, page, size int) (Envelope[item], error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{filters: filters.Key(), page: page, size: size})
	gate := f.gates[page]
	respond := f.respond
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return respond(filters, page, size)
}

func (f *fakeSource) gate(page int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[page] = ch
	return ch
}

func (f *fakeSource) callsFor(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.page == page {
			n++
		}
	}
	return n
}

func (f *fakeSource) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) setRespond(fn func(Filters, int, int) (Envelope[item], error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

// pager serves all in pages of the requested size.
func pager(all []item) func(Filters, int, int) (Envelope[item], error) {
	return func(_ Filters, page, size int) (Envelope[item], error) {
		total := len(all)
		pages := (total + size - 1) / size
		start := min(page*size, total)
		end := min(start+size, total)
		return Envelope[item]{
			Items:      slices.Clone(all[start:end]),
			Pagination: Pagination{TotalElements: int64(total), TotalPages: pages, Page: page, Size: size},
		}, nil
	}
}

func items(ids ...string) []item {
	out := make([]item, 0, len(ids))
	for _, id := range ids {
		out = append(out, item{ID: id, Office: "office-1"})
	}
	return out
}

func ids(in []item) []string {
	out := make([]string, 0, len(in))
	for _, it := range in {
		out = append(out, it.ID)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, src Source[item], clock *fakeClock, opts ...Option) *Store[item] {
	t.Helper()
	all := append([]Option{WithClock(clock.Now)}, opts...)
	s := New[item](src, all...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextRecord(s *Store[item]) *NextPageRecord[item] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return nil
	}
	n := *s.next
	return &n
}

func TestStore_TTLRespected(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()

	st, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))
	assert.Equal(t, 1, src.callsFor(0), "second call within ttl must not hit the network")
	assert.EqualValues(t, 1, s.Stats().CacheHits)
}

func TestStore_TTLExpiry(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	clock := newFakeClock()
	s := newTestStore(t, src, clock, WithTTL(time.Minute))
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()

	clock.Advance(time.Minute + time.Millisecond)
	_, err = s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 2, src.callsFor(0))
}

func TestStore_FilterKeySensitivity(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{"officeId": "office-1", "delivered": "true"}, 0, 2, true)
	require.NoError(t, err)
	_, err = s.LoadIfNeeded(ctx, Filters{"officeId": "office-1", "delivered": "false"}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callsFor(0))

	st := s.State()
	assert.Equal(t, "false", st.Filters["delivered"])
}

func TestStore_PrefetchPromotion(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D", "E")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()
	f := Filters{"officeId": "office-1"}

	_, err := s.LoadIfNeeded(ctx, f, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	require.Equal(t, 1, src.callsFor(1), "page 1 prefetched after page 0 settled")

	st, err := s.LoadIfNeeded(ctx, f, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, ids(st.Items))
	assert.Equal(t, 1, st.Pagination.Page)
	assert.Equal(t, 1, src.callsFor(1), "page 1 served from the next-page cache")
	assert.EqualValues(t, 1, s.Stats().PrefetchHits)

	s.Wait()
	assert.Equal(t, 1, src.callsFor(2), "promotion prefetches the page after")
	n := nextRecord(s)
	require.NotNil(t, n)
	assert.Equal(t, 2, n.Page)
}

func TestStore_PrefetchMismatchFetchesFresh(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{"officeId": "office-1"}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	require.Equal(t, 1, src.callsFor(1))

	_, err = s.LoadIfNeeded(ctx, Filters{"officeId": "office-2"}, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callsFor(1), "prefetch made under other filters must not be reused")
	assert.EqualValues(t, 0, s.Stats().PrefetchHits)
}

func TestStore_StalePrefetchNeverOverwritesNewer(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D", "E", "F", "G")))
	s := newTestStore(t, src, newFakeClock())
	f := Filters{}

	gate1 := src.gate(1)
	gate2 := src.gate(2)
	require.True(t, s.PrefetchPage(f, 1, 2))
	require.Eventually(t, func() bool { return src.callsFor(1) == 1 }, time.Second, time.Millisecond)
	require.True(t, s.PrefetchPage(f, 2, 2))
	require.Eventually(t, func() bool { return src.callsFor(2) == 1 }, time.Second, time.Millisecond)

	close(gate2)
	require.Eventually(t, func() bool {
		n := nextRecord(s)
		return n != nil && n.Page == 2
	}, time.Second, time.Millisecond)

	// The superseded page-1 response arrives last.
	close(gate1)
	s.Wait()

	n := nextRecord(s)
	require.NotNil(t, n)
	assert.Equal(t, 2, n.Page)
	assert.Equal(t, []string{"E", "F"}, ids(n.Items))
	assert.EqualValues(t, 1, s.Stats().Cancelled)
}

func TestStore_CancelledPrefetchIsDiscarded(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())

	gate := src.gate(1)
	require.True(t, s.PrefetchPage(Filters{}, 1, 2))
	require.Eventually(t, func() bool { return src.callsFor(1) == 1 }, time.Second, time.Millisecond)

	s.Invalidate()
	close(gate)
	s.Wait()

	assert.Nil(t, nextRecord(s))
	assert.Equal(t, PrefetchCancelled, s.Stats().LastPrefetch)
}

func TestStore_PrefetchIsIdempotent(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	gate := src.gate(1)
	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.callsFor(1) == 1 }, time.Second, time.Millisecond)

	// In flight: no duplicate.
	assert.True(t, s.Prefetch(Filters{}, 0, 2))
	assert.True(t, s.PrefetchPage(Filters{}, 1, 2))
	close(gate)
	s.Wait()

	// Cached: still no duplicate.
	assert.True(t, s.Prefetch(Filters{}, 0, 2))
	s.Wait()
	assert.Equal(t, 1, src.callsFor(1))
	assert.EqualValues(t, 1, s.Stats().Prefetches)
}

func TestStore_PrefetchNeedsANextPage(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	s := newTestStore(t, src, newFakeClock())

	_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()

	assert.False(t, s.Prefetch(Filters{}, 0, 2), "single page: nothing after it")
	assert.False(t, s.Prefetch(Filters{"x": "y"}, 0, 2), "query not on display")
	assert.Equal(t, 1, src.total())
}

func TestStore_PrefetchHeuristicWithoutTotals(t *testing.T) {
	src := newFakeSource(func(_ Filters, page, size int) (Envelope[item], error) {
		if page == 0 {
			return Envelope[item]{Items: items("A", "B"), Pagination: Pagination{Page: 0, Size: size}}, nil
		}
		return Envelope[item]{Items: items("C"), Pagination: Pagination{Page: page, Size: size}}, nil
	})
	s := newTestStore(t, src, newFakeClock())

	_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 1, src.callsFor(1), "a full page suggests more data")

	_, err = s.LoadIfNeeded(context.Background(), Filters{}, 1, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 0, src.callsFor(2), "a short page ends the list")
}

func TestStore_PrefetchHeuristicCountsItemsBeforeScoping(t *testing.T) {
	var page1 atomic.Int32
	src := newFakeSource(func(_ Filters, page, size int) (Envelope[item], error) {
		if page == 0 {
			return Envelope[item]{
				Items:      []item{{ID: "A", Office: "office-2"}, {ID: "B", Office: "office-1"}},
				Pagination: Pagination{Page: 0, Size: size},
			}, nil
		}
		if page1.Add(1) == 1 {
			return Envelope[item]{}, errors.New("upstream hiccup")
		}
		return Envelope[item]{Items: []item{{ID: "C", Office: "office-1"}}, Pagination: Pagination{Page: page, Size: size}}, nil
	})
	v := &model.Viewer{Role: model.RoleFrontdesk, ScopeID: "office-1"}
	s := newTestStore(t, src, newFakeClock(), WithScope(staticViewer{v: v}, func(it item) string { return it.Office }))
	ctx := context.Background()

	st, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(st.Items))
	s.Wait()
	require.Equal(t, 1, src.callsFor(1), "the source returned a full page")
	require.Nil(t, nextRecord(s))

	_, err = s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 2, src.callsFor(1), "a cache hit judges the page the same way")
	require.NotNil(t, nextRecord(s))
	assert.Equal(t, []string{"C"}, ids(nextRecord(s).Items))
}

func TestStore_ScopeFilter(t *testing.T) {
	mixed := []item{
		{ID: "A", Office: "office-1"},
		{ID: "B", Office: "office-2"},
		{ID: "C", Office: "office-1"},
		{ID: "D", Office: "office-3"},
	}
	scopeOf := func(it item) string { return it.Office }

	cases := []struct {
		name   string
		viewer *model.Viewer
		want   []string
	}{
		{"frontdesk sees own office", &model.Viewer{Role: model.RoleFrontdesk, ScopeID: "office-1"}, []string{"A", "C"}},
		{"admin sees everything", &model.Viewer{Role: model.RoleAdmin, ScopeID: "office-1"}, []string{"A", "B", "C", "D"}},
		{"no scope id", &model.Viewer{Role: model.RoleManager}, []string{"A", "B", "C", "D"}},
		{"signed out", nil, []string{"A", "B", "C", "D"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newFakeSource(pager(mixed))
			s := newTestStore(t, src, newFakeClock(), WithScope(staticViewer{v: tc.viewer}, scopeOf))
			st, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 10, true)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(st.Items))
			assert.EqualValues(t, 4, st.Pagination.TotalElements)
		})
	}
}

func TestStore_ScopeFilterAppliesToPrefetch(t *testing.T) {
	all := []item{
		{ID: "A", Office: "office-1"},
		{ID: "B", Office: "office-1"},
		{ID: "C", Office: "office-2"},
		{ID: "D", Office: "office-1"},
	}
	src := newFakeSource(pager(all))
	v := &model.Viewer{Role: model.RoleFrontdesk, ScopeID: "office-1"}
	s := newTestStore(t, src, newFakeClock(), WithScope(staticViewer{v: v}, func(it item) string { return it.Office }))
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	st, err := s.LoadIfNeeded(ctx, Filters{}, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, ids(st.Items))
	assert.Equal(t, 1, src.callsFor(1))
}

func TestStore_InvalidateIsIdempotent(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()

	s.Invalidate()
	s.Invalidate()
	st := s.State()
	assert.Equal(t, []string{"A", "B"}, ids(st.Items), "invalidate keeps displayed items")
	assert.True(t, st.LastFetch.IsZero())
	assert.Nil(t, nextRecord(s))

	_, err = s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 2, src.callsFor(0), "exactly one extra fetch after a double invalidate")

	_, err = s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callsFor(0))
}

func TestStore_InvalidateDropsPrefetchedPage(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	s.Invalidate()

	_, err = s.LoadIfNeeded(ctx, Filters{}, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callsFor(1))
}

func TestStore_EndToEnd(t *testing.T) {
	src := newFakeSource(func(_ Filters, page, size int) (Envelope[item], error) {
		p := Pagination{TotalElements: 3, TotalPages: 2, Page: page, Size: size}
		if page == 0 {
			return Envelope[item]{Items: items("A", "B"), Pagination: p}, nil
		}
		return Envelope[item]{Items: items("C"), Pagination: p}, nil
	})
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	st, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))
	assert.Equal(t, 1, src.callsFor(0))

	s.Wait()
	assert.Equal(t, 1, src.callsFor(1), "background prefetch of page 1")

	st, err = s.LoadIfNeeded(ctx, Filters{}, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, ids(st.Items))
	assert.Equal(t, 2, src.total(), "page 1 served from the prefetch cache")

	s.Wait()
	assert.Equal(t, 2, src.total(), "last page: nothing more to prefetch")
}

func TestStore_FailedLoadKeepsData(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	var handled []error
	s := newTestStore(t, src, newFakeClock(), WithErrorHandler(func(err error) { handled = append(handled, err) }))
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)

	boom := errors.New("backend down")
	src.setRespond(func(Filters, int, int) (Envelope[item], error) { return Envelope[item]{}, boom })

	st, err := s.Refresh(ctx, Filters{}, 0, 2)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))
	assert.False(t, st.Loading)
	assert.False(t, st.BackgroundLoading)
	assert.ErrorIs(t, st.Err, boom)
	assert.Len(t, handled, 1)

	src.setRespond(pager(items("A", "B", "C")))
	st, err = s.Refresh(ctx, Filters{}, 0, 2)
	require.NoError(t, err)
	assert.NoError(t, st.Err)
	s.Wait()
}

func TestStore_PrefetchFailureIsSilent(t *testing.T) {
	unauthorized := errors.New("401 unauthorized")
	src := newFakeSource(func(f Filters, page, size int) (Envelope[item], error) {
		if page == 1 {
			return Envelope[item]{}, unauthorized
		}
		return pager(items("A", "B", "C"))(f, page, size)
	})
	var handled int
	s := newTestStore(t, src, newFakeClock(), WithErrorHandler(func(error) { handled++ }))

	st, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 0, handled)
	assert.NoError(t, s.State().Err)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))
	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Failed)
	assert.Equal(t, PrefetchFailed, stats.LastPrefetch)
	assert.Nil(t, nextRecord(s))
}

func TestStore_LoadingFlags(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	s := newTestStore(t, src, newFakeClock())
	gate := src.gate(0)

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, false)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State().BackgroundLoading }, time.Second, time.Millisecond)
	assert.False(t, s.State().Loading, "background fetch must not raise the foreground flag")

	close(gate)
	require.NoError(t, <-done)
	st := s.State()
	assert.False(t, st.Loading)
	assert.False(t, st.BackgroundLoading)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))
}

func TestStore_ConcurrentIdenticalLoadsShareOneFetch(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	s := newTestStore(t, src, newFakeClock())
	gate := src.gate(0)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loading == 2
	}, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, src.callsFor(0))
}

func TestStore_RefreshWinsOverConcurrentCacheHit(t *testing.T) {
	src := newFakeSource(pager(items("A", "B")))
	s := newTestStore(t, src, newFakeClock())
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)

	src.setRespond(pager(items("X", "Y", "Z")))
	gate := src.gate(0)
	type result struct {
		st  State[item]
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := s.Refresh(ctx, Filters{}, 0, 2)
		done <- result{st, err}
	}()
	require.Eventually(t, func() bool { return src.callsFor(0) == 2 }, time.Second, time.Millisecond)

	st, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items), "still fresh, served from memory")

	close(gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []string{"X", "Y"}, ids(res.st.Items))
	assert.Equal(t, []string{"X", "Y"}, ids(s.State().Items))
	assert.EqualValues(t, 3, s.State().Pagination.TotalElements)
	s.Wait()
}

func TestStore_CacheHitSupersedesSlowerPageLoad(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D", "E")))
	s := newTestStore(t, src, newFakeClock(), WithPrefetch(false))
	ctx := context.Background()

	_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)

	gate := src.gate(1)
	done := make(chan error, 1)
	go func() {
		_, err := s.LoadIfNeeded(ctx, Filters{}, 1, 2, true)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.callsFor(1) == 1 }, time.Second, time.Millisecond)

	st, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(st.Items))

	close(gate)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, []string{"A", "B"}, ids(s.State().Items))
	assert.Equal(t, 0, s.State().Pagination.Page)
}

func TestStore_SharedFetchSurvivesOneCallerCancelling(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc[item](func(ctx context.Context, f Filters, page, size int) (Envelope[item], error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return Envelope[item]{}, ctx.Err()
		}
		return pager(items("A", "B"))(f, page, size)
	})
	s := newTestStore(t, src, newFakeClock())

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := s.LoadIfNeeded(ctxA, Filters{}, 0, 2, true)
		errA <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		st  State[item]
		err error
	}
	doneB := make(chan result, 1)
	go func() {
		st, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
		doneB <- result{st, err}
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loading == 2
	}, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-doneB
	require.NoError(t, b.err)
	assert.Equal(t, []string{"A", "B"}, ids(b.st.Items))
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, s.Stats().Fetches)
}

func TestStore_CloseEndsAbandonedFetch(t *testing.T) {
	finished := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc[item](func(ctx context.Context, _ Filters, _, _ int) (Envelope[item], error) {
		defer close(finished)
		calls.Add(1)
		<-ctx.Done()
		return Envelope[item]{}, ctx.Err()
	})
	s := New[item](src, WithFetchTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := s.LoadIfNeeded(ctx, Filters{}, 0, 2, true)
		errs <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	require.NoError(t, s.Close())
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("source call still running after Close")
	}
}

func TestStore_SlowerOlderLoadIsSuperseded(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D", "E")))
	s := newTestStore(t, src, newFakeClock())
	gate := src.gate(0)

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.callsFor(0) == 1 }, time.Second, time.Millisecond)

	st, err := s.LoadIfNeeded(context.Background(), Filters{}, 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, ids(st.Items))

	close(gate)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, 1, s.State().Pagination.Page)
	s.Wait()
}

func TestStore_EmptyPages(t *testing.T) {
	t.Run("cached by default", func(t *testing.T) {
		src := newFakeSource(pager(nil))
		s := newTestStore(t, src, newFakeClock())
		for range 3 {
			_, err := s.LoadIfNeeded(context.Background(), Filters{"status": "RETURNED"}, 0, 10, true)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, src.total())
	})
	t.Run("uncached when configured", func(t *testing.T) {
		src := newFakeSource(pager(nil))
		s := newTestStore(t, src, newFakeClock(), WithEmptyPagesUncached())
		for range 3 {
			_, err := s.LoadIfNeeded(context.Background(), Filters{"status": "RETURNED"}, 0, 10, true)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, src.total())
	})
}

func TestStore_FetchTimeoutClearsFlags(t *testing.T) {
	hung := SourceFunc[item](func(ctx context.Context, _ Filters, _, _ int) (Envelope[item], error) {
		<-ctx.Done()
		return Envelope[item]{}, ctx.Err()
	})
	s := newTestStore(t, hung, newFakeClock(), WithFetchTimeout(20*time.Millisecond))

	st, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, st.Loading)
}

func TestStore_InvalidEnvelopeIsAnError(t *testing.T) {
	src := newFakeSource(func(_ Filters, page, size int) (Envelope[item], error) {
		return Envelope[item]{Items: items("A", "B", "C"), Pagination: Pagination{TotalPages: 1, Page: page, Size: size}}, nil
	})
	s := newTestStore(t, src, newFakeClock())
	_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
	assert.Empty(t, s.State().Items)
}

func TestStore_Closed(t *testing.T) {
	src := newFakeSource(pager(items("A")))
	s := New[item](src)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.PrefetchPage(Filters{}, 1, 2))
	assert.Equal(t, 0, src.total())
}

func TestStore_DisabledPrefetch(t *testing.T) {
	src := newFakeSource(pager(items("A", "B", "C", "D")))
	s := newTestStore(t, src, newFakeClock(), WithPrefetch(false))
	_, err := s.LoadIfNeeded(context.Background(), Filters{}, 0, 2, true)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 1, src.total())
}

type staticViewer struct{ v *model.Viewer }

func (s staticViewer) Viewer() (model.Viewer, bool) {
	if s.v == nil {
		return model.Viewer{}, false
	}
	return *s.v, true
}

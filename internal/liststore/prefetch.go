package liststore

import (
	"context"
	"errors"
)

// PrefetchPhase is where the most recent prefetch attempt ended up.
// Only Fulfilled writes the next-page record.
type PrefetchPhase int

const (
	PrefetchIdle PrefetchPhase = iota
	PrefetchRequested
	PrefetchFulfilled
	PrefetchCancelled
	PrefetchFailed
)

func (p PrefetchPhase) String() string {
	switch p {
	case PrefetchRequested:
		return "requested"
	case PrefetchFulfilled:
		return "fulfilled"
	case PrefetchCancelled:
		return "cancelled"
	case PrefetchFailed:
		return "failed"
	default:
		return "idle"
	}
}

// prefetchSlot is the single live cancellation token of a store.
// gen grows on every start and every cancel; a completion commits only if its
// generation is still current.
type prefetchSlot struct {
	gen    uint64
	cancel context.CancelFunc
	target string
}

// Prefetch is the idle-time entry point: it fetches the page after page for the
// given query when the displayed record says one plausibly exists. It reports
// whether that page is now cached or on its way.
func (s *Store[T]) Prefetch(filters Filters, page, size int) bool {
	key := filters.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.prefetchOn {
		return false
	}
	if s.cur.LastFetch.IsZero() || !s.cur.matches(page, size, key) {
		return false
	}
	if !hasNext(s.cur.Pagination, s.cur.Received, page, size) {
		return false
	}
	return s.startPrefetchLocked(filters, key, page+1, size)
}

// PrefetchPage speculatively fetches exactly the given page, cancelling any
// other prefetch in flight.
func (s *Store[T]) PrefetchPage(filters Filters, page, size int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.prefetchOn {
		return false
	}
	return s.startPrefetchLocked(filters, filters.Key(), page, size)
}

func (s *Store[T]) prefetchAfterLocked(filters Filters, key string, p Pagination, itemCount, page, size int) {
	if s.closed || !s.prefetchOn {
		return
	}
	if !hasNext(p, itemCount, page, size) {
		return
	}
	s.startPrefetchLocked(filters, key, page+1, size)
}

func (s *Store[T]) startPrefetchLocked(filters Filters, key string, page, size int) bool {
	if s.next != nil && s.next.matches(page, size, key) {
		return true
	}
	target := flightKey(key, page, size)
	if s.pf.target == target {
		return true
	}
	s.cancelPrefetchLocked()

	ctx, cancel := context.WithCancel(s.baseCtx)
	if s.fetchTimeout > 0 {
		var inner context.CancelFunc
		ctx, inner = context.WithTimeout(ctx, s.fetchTimeout)
		outer := cancel
		cancel = func() { inner(); outer() }
	}
	gen := s.pf.gen
	s.pf.cancel = cancel
	s.pf.target = target
	s.stats.Prefetches++
	s.stats.LastPrefetch = PrefetchRequested

	s.wg.Add(1)
	go s.runPrefetch(ctx, cancel, gen, filters.Clone(), key, page, size)
	return true
}

// cancelPrefetchLocked signals the live token, if any, and moves the generation on
// so a late response from it is discarded.
func (s *Store[T]) cancelPrefetchLocked() {
	if s.pf.cancel != nil {
		s.pf.cancel()
		s.stats.Cancelled++
		s.stats.LastPrefetch = PrefetchCancelled
		s.log.Debug().Str("target", s.pf.target).Msg("prefetch cancelled")
	}
	s.pf.cancel = nil
	s.pf.target = ""
	s.pf.gen++
}

func (s *Store[T]) runPrefetch(ctx context.Context, cancel context.CancelFunc, gen uint64, filters Filters, key string, page, size int) {
	defer s.wg.Done()
	defer cancel()

	env, err := s.source.Search(ctx, filters, page, size)
	if err == nil {
		err = env.Validate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.pf.gen {
		// Superseded or cancelled; whatever came back is stale.
		return
	}
	s.pf.cancel = nil
	s.pf.target = ""
	if err != nil {
		s.stats.Failed++
		s.stats.LastPrefetch = PrefetchFailed
		// Prefetch failures, 401 included, are never surfaced.
		ev := s.log.Debug().Err(err).Int("page", page).Str("filters", key)
		if errors.Is(err, context.Canceled) {
			ev.Msg("prefetch aborted")
			return
		}
		ev.Msg("prefetch failed")
		return
	}
	items, _ := s.scope.apply(env.Items)
	s.next = &NextPageRecord[T]{
		Page:          page,
		Size:          size,
		FiltersKey:    key,
		Items:         items,
		Received:      len(env.Items),
		TotalElements: env.TotalElements,
		TotalPages:    env.TotalPages,
		FetchedAt:     s.now(),
	}
	s.stats.LastPrefetch = PrefetchFulfilled
}

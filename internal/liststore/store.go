// Package liststore keeps one page of a paginated remote list in memory.
// It decides when a page can be served without a network call, prefetches the
// page after the one on screen and promotes it when the consumer navigates there.
package liststore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a single source call so loading flags always clear.
const DefaultFetchTimeout = 30 * time.Second

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("list store closed")
	// ErrSuperseded is returned when a slower foreground fetch finished after a
	// newer request had already settled; its result was not admitted.
	ErrSuperseded = errors.New("request superseded by a newer one")
)

// Source performs the paginated search against the remote API.
type Source[T any] interface {
	Search(ctx context.Context, filters Filters, page, size int) (Envelope[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, filters Filters, page, size int) (Envelope[T], error)

func (f SourceFunc[T]) Search(ctx context.Context, filters Filters, page, size int) (Envelope[T], error) {
	return f(ctx, filters, page, size)
}

// State is a consumer's read-only view of the store.
type State[T any] struct {
	Items             []T
	Pagination        Pagination
	Filters           Filters
	Loading           bool
	BackgroundLoading bool
	LastFetch         time.Time
	// Err is the last foreground failure; nil after a successful fetch.
	Err error
}

// Stats counts what the store did, for diagnostics.
type Stats struct {
	Fetches      int64
	CacheHits    int64
	PrefetchHits int64
	Prefetches   int64
	Cancelled    int64
	Failed       int64
	LastPrefetch PrefetchPhase
}

type options struct {
	name         string
	ttl          time.Duration
	emptyIsMiss  bool
	now          func() time.Time
	log          zerolog.Logger
	onError      func(error)
	fetchTimeout time.Duration
	prefetch     bool
	scope        any
}

// Option configures a Store.
type Option func(*options)

// WithName labels the store in logs.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithTTL sets how long a fetched page stays fresh.
func WithTTL(d time.Duration) Option { return func(o *options) { o.ttl = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the parent logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithEmptyPagesUncached makes pages with zero items always re-fetch.
func WithEmptyPagesUncached() Option { return func(o *options) { o.emptyIsMiss = true } }

// WithErrorHandler receives every foreground fetch failure. Prefetch failures never reach it.
func WithErrorHandler(fn func(error)) Option { return func(o *options) { o.onError = fn } }

// WithFetchTimeout bounds each source call; zero disables the bound.
func WithFetchTimeout(d time.Duration) Option { return func(o *options) { o.fetchTimeout = d } }

// WithPrefetch toggles speculative next-page fetching.
func WithPrefetch(enabled bool) Option { return func(o *options) { o.prefetch = enabled } }

// WithScope enables the post-fetch scope filter for non-privileged viewers.
func WithScope[T any](viewers ViewerSource, scopeOf func(T) string) Option {
	return func(o *options) { o.scope = &scopeFilter[T]{viewers: viewers, scopeOf: scopeOf} }
}

// Store owns the cache record and the next-page record of one remote list.
// It is the only writer of both; consumers read snapshots through State.
type Store[T any] struct {
	source       Source[T]
	policy       Policy
	now          func() time.Time
	log          zerolog.Logger
	scope        *scopeFilter[T]
	onError      func(error)
	fetchTimeout time.Duration
	prefetchOn   bool

	flights singleflight.Group
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	cur        CacheRecord[T]
	next       *NextPageRecord[T]
	loading    int
	background int
	lastErr    error
	// fgSeq numbers foreground requests. settledSeq is the newest one the
	// consumer has seen an answer to; changedSeq the newest one that replaced cur.
	// An older result is admitted only to refresh the record on display.
	fgSeq      uint64
	settledSeq uint64
	changedSeq uint64
	// committed is the flight whose envelope filled cur; nil after a promotion.
	committed  *flight[T]
	pf         prefetchSlot
	stats      Stats
	closed     bool
}

// New builds a store over source.
func New[T any](source Source[T], opts ...Option) *Store[T] {
	o := options{
		ttl:          DefaultTTL,
		now:          time.Now,
		log:          zerolog.Nop(),
		fetchTimeout: DefaultFetchTimeout,
		prefetch:     true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var scope *scopeFilter[T]
	if o.scope != nil {
		sf, ok := o.scope.(*scopeFilter[T])
		if !ok {
			panic(fmt.Sprintf("liststore: scope filter type %T does not match store item type", o.scope))
		}
		scope = sf
	}
	component := o.name
	if component == "" {
		component = "list"
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Store[T]{
		source:       source,
		policy:       Policy{TTL: o.ttl, EmptyIsMiss: o.emptyIsMiss},
		now:          o.now,
		log:          o.log.With().Str("module", "liststore").Str("component", component).Logger(),
		scope:        scope,
		onError:      o.onError,
		fetchTimeout: o.fetchTimeout,
		prefetchOn:   o.prefetch,
		baseCtx:      ctx,
		stop:         stop,
		cur:          CacheRecord[T]{Filters: Filters{}},
	}
}

// LoadIfNeeded returns the requested page, from memory when the freshness policy allows.
// With showLoading the fetch raises Loading, otherwise BackgroundLoading.
func (s *Store[T]) LoadIfNeeded(ctx context.Context, filters Filters, page, size int, showLoading bool) (State[T], error) {
	return s.load(ctx, Request{Filters: filters.Clone(), Page: page, Size: size}, false, showLoading)
}

// Refresh always hits the network for the requested page.
func (s *Store[T]) Refresh(ctx context.Context, filters Filters, page, size int) (State[T], error) {
	return s.load(ctx, Request{Filters: filters.Clone(), Page: page, Size: size}, true, true)
}

// Invalidate expires the cache record without blanking it, drops the next-page
// record and cancels any in-flight prefetch.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.LastFetch = time.Time{}
	s.next = nil
	s.cancelPrefetchLocked()
}

// State returns a snapshot.
func (s *Store[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stats returns a copy of the counters.
func (s *Store[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Wait blocks until in-flight prefetches have settled.
func (s *Store[T]) Wait() {
	s.wg.Wait()
}

// Close cancels any prefetch and waits for it. Later loads fail with ErrClosed.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelPrefetchLocked()
	s.stop()
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Store[T]) load(ctx context.Context, req Request, force, showLoading bool) (State[T], error) {
	key := req.Filters.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State[T]{}, ErrClosed
	}
	switch Decide(s.policy, req, force, &s.cur, s.next, s.now()) {
	case ServeFromCache:
		s.stats.CacheHits++
		s.settledSeq = s.fgSeq
		st := s.snapshotLocked()
		s.prefetchAfterLocked(req.Filters, key, s.cur.Pagination, s.cur.Received, req.Page, req.Size)
		s.mu.Unlock()
		s.log.Debug().Int("page", req.Page).Str("filters", key).Msg("served from cache")
		return st, nil
	case ServeFromNextPage:
		s.promoteLocked(req, key)
		s.settledSeq = s.fgSeq
		s.changedSeq = s.fgSeq
		st := s.snapshotLocked()
		s.prefetchAfterLocked(req.Filters, key, s.cur.Pagination, s.cur.Received, req.Page, req.Size)
		s.mu.Unlock()
		s.log.Debug().Int("page", req.Page).Str("filters", key).Msg("promoted prefetched page")
		return st, nil
	}

	s.fgSeq++
	seq := s.fgSeq
	if showLoading {
		s.loading++
	} else {
		s.background++
	}
	s.mu.Unlock()

	start := time.Now()
	f, err := s.fetchShared(ctx, req, key, force)

	s.mu.Lock()
	if showLoading {
		s.loading--
	} else {
		s.background--
	}
	if err != nil {
		canceled := errors.Is(err, context.Canceled)
		if !canceled {
			s.lastErr = err
		}
		st := s.snapshotLocked()
		s.mu.Unlock()
		if canceled {
			s.log.Debug().Int("page", req.Page).Str("filters", key).Msg("fetch canceled by caller")
			return st, err
		}
		s.log.Error().Err(err).Int("page", req.Page).Int("size", req.Size).Str("filters", key).Msg("fetch failed")
		if s.onError != nil {
			s.onError(err)
		}
		return st, err
	}
	if seq <= s.settledSeq {
		if s.committed == f {
			// Another caller sharing this flight committed it.
			st := s.snapshotLocked()
			s.mu.Unlock()
			return st, nil
		}
		if seq <= s.changedSeq || !s.cur.matches(req.Page, req.Size, key) {
			st := s.snapshotLocked()
			s.mu.Unlock()
			s.log.Debug().Int("page", req.Page).Str("filters", key).Msg("discarding superseded result")
			return st, ErrSuperseded
		}
	}
	s.commitLocked(req, key, f, seq)
	st := s.snapshotLocked()
	s.prefetchAfterLocked(req.Filters, key, s.cur.Pagination, s.cur.Received, req.Page, req.Size)
	s.mu.Unlock()

	s.log.Debug().
		Dur("took", time.Since(start)).
		Int("page", req.Page).
		Int("items", len(st.Items)).
		Str("filters", key).
		Msg("page fetched")
	return st, nil
}

// flight is the outcome of one shared source call.
type flight[T any] struct {
	env Envelope[T]
}

// fetchShared collapses concurrent identical foreground requests into one source call.
// The call is detached from ctx and ends with the fetch timeout or Close; each caller
// stops waiting when its own ctx ends.
func (s *Store[T]) fetchShared(ctx context.Context, req Request, key string, force bool) (*flight[T], error) {
	name := flightKey(key, req.Page, req.Size)
	if force {
		name = "refresh|" + name
	}
	ch := s.flights.DoChan(name, func() (any, error) {
		s.mu.Lock()
		s.stats.Fetches++
		s.mu.Unlock()

		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(s.baseCtx, cancel)
		defer stop()

		env, err := s.fetch(fctx, req)
		if err != nil {
			return nil, err
		}
		return &flight[T]{env: env}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*flight[T]), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store[T]) fetch(ctx context.Context, req Request) (Envelope[T], error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	env, err := s.source.Search(ctx, req.Filters, req.Page, req.Size)
	if err != nil {
		return Envelope[T]{}, err
	}
	if err := env.Validate(); err != nil {
		return Envelope[T]{}, err
	}
	return env, nil
}

func (s *Store[T]) commitLocked(req Request, key string, f *flight[T], seq uint64) {
	env := f.env
	items, dropped := s.scope.apply(env.Items)
	if dropped > 0 {
		s.log.Warn().Int("dropped", dropped).Str("filters", key).Msg("removed out-of-scope items from response")
	}
	p := env.Pagination
	p.Page = req.Page
	if p.Size == 0 {
		p.Size = req.Size
	}
	s.cur = CacheRecord[T]{
		Items:      items,
		Pagination: p,
		Filters:    req.Filters,
		FiltersKey: key,
		Pageable:   Pageable{Page: req.Page, Size: req.Size},
		Received:   len(env.Items),
		LastFetch:  s.now(),
	}
	s.settledSeq = max(s.settledSeq, seq)
	s.changedSeq = max(s.changedSeq, seq)
	s.committed = f
	s.lastErr = nil
	if s.next != nil && s.next.matches(req.Page, req.Size, key) {
		s.next = nil
	}
}

func (s *Store[T]) promoteLocked(req Request, key string) {
	n := s.next
	s.cur = CacheRecord[T]{
		Items: n.Items,
		Pagination: Pagination{
			TotalElements: n.TotalElements,
			TotalPages:    n.TotalPages,
			Page:          n.Page,
			Size:          n.Size,
		},
		Filters:    req.Filters,
		FiltersKey: key,
		Pageable:   Pageable{Page: n.Page, Size: n.Size},
		Received:   n.Received,
		LastFetch:  n.FetchedAt,
	}
	s.committed = nil
	s.next = nil
	s.lastErr = nil
	s.stats.PrefetchHits++
}

func (s *Store[T]) snapshotLocked() State[T] {
	return State[T]{
		Items:             slices.Clone(s.cur.Items),
		Pagination:        s.cur.Pagination,
		Filters:           s.cur.Filters.Clone(),
		Loading:           s.loading > 0,
		BackgroundLoading: s.background > 0,
		LastFetch:         s.cur.LastFetch,
		Err:               s.lastErr,
	}
}

func flightKey(filtersKey string, page, size int) string {
	return fmt.Sprintf("%s|%d|%d", filtersKey, page, size)
}

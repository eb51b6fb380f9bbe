package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cinescope/internal/cache"
	"github.com/MrWong99/cinescope/internal/resilience"
	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// stubUpstream is a scriptable Upstream that records the last call per
// operation. failures > 0 fails that many calls with failErr before
// succeeding; failures < 0 fails every call.
type stubUpstream struct {
	mu       sync.Mutex
	failures int
	failErr  error
	page     *tmdb.Page

	calls        int
	lastMedia    tmdb.MediaType
	lastSearch   tmdb.SearchParams
	lastDiscover tmdb.DiscoverParams
	lastID       int64
	lastLanguage string
}

func (s *stubUpstream) serve() (*tmdb.Page, error) {
	s.calls++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return nil, s.failErr
	}
	if s.page == nil {
		return &tmdb.Page{}, nil
	}
	return s.page, nil
}

func (s *stubUpstream) Search(_ context.Context, media tmdb.MediaType, p tmdb.SearchParams) (*tmdb.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMedia, s.lastSearch = media, p
	return s.serve()
}

func (s *stubUpstream) Recommendations(_ context.Context, media tmdb.MediaType, id int64, language string) (*tmdb.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMedia, s.lastID, s.lastLanguage = media, id, language
	return s.serve()
}

func (s *stubUpstream) Discover(_ context.Context, media tmdb.MediaType, p tmdb.DiscoverParams) (*tmdb.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMedia, s.lastDiscover = media, p
	return s.serve()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestSet wires a Set with a non-sleeping retrier and a fake clock
// shared between the cache store and the fetch timestamps.
func newTestSet(stub *stubUpstream, opts ...Option) (*Set, *fakeClock) {
	clock := newFakeClock()
	retrier := resilience.New(resilience.Config{
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	store := cache.NewStore(cache.WithClock(clock.Now))
	all := append([]Option{WithClock(clock.Now)}, opts...)
	return New(stub, store, retrier, all...), clock
}

func inceptionPage() *tmdb.Page {
	return &tmdb.Page{
		Page: 1,
		Results: []tmdb.Item{{
			ID:          27205,
			Title:       "Inception",
			ReleaseDate: "2010-07-15",
			VoteAverage: 8.8,
			Popularity:  83.4,
			Overview:    "A thief who steals corporate secrets through dream-sharing technology.",
			PosterPath:  "/inception.jpg",
		}},
		TotalPages:   1,
		TotalResults: 1,
	}
}

func TestSet_SearchCachesSecondCall(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, clock := newTestSet(stub)

	raw := json.RawMessage(`{"query": "Inception", "type": "movie", "year": 2010, "language": "en"}`)
	first, err := set.SearchTitle(context.Background(), raw)
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if first.CacheHit {
		t.Error("first call must not be a cache hit")
	}

	titles, ok := first.Result.([]Title)
	if !ok {
		t.Fatalf("Result type = %T, want []Title", first.Result)
	}
	want := Title{
		ID:         27205,
		Title:      "Inception",
		Type:       "movie",
		Year:       2010,
		Rating:     8.8,
		Overview:   "A thief who steals corporate secrets through dream-sharing technology.",
		PosterPath: "/inception.jpg",
	}
	if len(titles) != 1 || titles[0] != want {
		t.Errorf("titles = %+v, want [%+v]", titles, want)
	}

	clock.Advance(10 * time.Second)

	second, err := set.SearchTitle(context.Background(), raw)
	if err != nil {
		t.Fatalf("SearchTitle repeat: %v", err)
	}
	if !second.CacheHit {
		t.Error("identical repeat must be a cache hit")
	}
	if stub.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", stub.calls)
	}
	if !second.FetchedAt.Equal(first.FetchedAt) {
		t.Errorf("cached FetchedAt = %v, want original %v", second.FetchedAt, first.FetchedAt)
	}
}

func TestSet_EquivalentCallsShareCacheEntry(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	calls := []json.RawMessage{
		json.RawMessage(`{"query": "Inception"}`),
		json.RawMessage(`{"type": "movie", "query": "Inception"}`),
		json.RawMessage(`{"query": "Inception", "language": "en", "type": "movie"}`),
		json.RawMessage(`{"query": "  Inception  "}`),
	}
	for i, raw := range calls {
		resp, err := set.SearchTitle(context.Background(), raw)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if wantHit := i > 0; resp.CacheHit != wantHit {
			t.Errorf("call %d: cache_hit = %v, want %v", i, resp.CacheHit, wantHit)
		}
	}
	if stub.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", stub.calls)
	}
}

func TestSet_CacheExpiry(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, clock := newTestSet(stub)
	raw := json.RawMessage(`{"query": "Inception"}`)

	if _, err := set.SearchTitle(context.Background(), raw); err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}

	clock.Advance(299 * time.Second)
	resp, err := set.SearchTitle(context.Background(), raw)
	if err != nil {
		t.Fatalf("SearchTitle at 299s: %v", err)
	}
	if !resp.CacheHit {
		t.Error("entry at 299s must still be fresh")
	}
	if stub.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", stub.calls)
	}

	clock.Advance(2 * time.Second)
	resp, err = set.SearchTitle(context.Background(), raw)
	if err != nil {
		t.Fatalf("SearchTitle at 301s: %v", err)
	}
	if resp.CacheHit {
		t.Error("entry at 301s must be stale")
	}
	if stub.calls != 2 {
		t.Errorf("upstream calls = %d, want 2", stub.calls)
	}
}

func TestSet_RetriesTransientFailures(t *testing.T) {
	stub := &stubUpstream{
		failures: 2,
		failErr:  &types.Error{Kind: types.KindRateLimited, Message: "rate limited", Retryable: true},
		page:     inceptionPage(),
	}
	set, _ := newTestSet(stub)

	resp, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "Inception"}`))
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if resp.CacheHit {
		t.Error("retried call must not report a cache hit")
	}
	if stub.calls != 3 {
		t.Errorf("upstream calls = %d, want 3", stub.calls)
	}
}

func TestSet_RetryExhausted(t *testing.T) {
	rateLimited := &types.Error{Kind: types.KindRateLimited, Message: "rate limited", Retryable: true}
	stub := &stubUpstream{failures: -1, failErr: rateLimited}
	set, _ := newTestSet(stub)

	_, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "Inception"}`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	te := types.AsError(err)
	if te.Kind != types.KindRetryExhausted {
		t.Errorf("kind = %s, want %s", te.Kind, types.KindRetryExhausted)
	}
	if !errors.Is(err, rateLimited) {
		t.Error("exhaustion error must wrap the last upstream error")
	}
	if stub.calls != 3 {
		t.Errorf("upstream calls = %d, want 3", stub.calls)
	}
}

func TestSet_FailuresAreNotCached(t *testing.T) {
	stub := &stubUpstream{
		failures: 1,
		failErr:  &types.Error{Kind: types.KindUpstream, Message: "upstream status 404", Retryable: false},
		page:     inceptionPage(),
	}
	set, _ := newTestSet(stub)
	raw := json.RawMessage(`{"query": "Inception"}`)

	if _, err := set.SearchTitle(context.Background(), raw); err == nil {
		t.Fatal("expected error, got nil")
	}
	if stub.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (non-retryable must not retry)", stub.calls)
	}

	resp, err := set.SearchTitle(context.Background(), raw)
	if err != nil {
		t.Fatalf("SearchTitle after failure: %v", err)
	}
	if resp.CacheHit {
		t.Error("a failed call must not seed the cache")
	}
	if stub.calls != 2 {
		t.Errorf("upstream calls = %d, want 2", stub.calls)
	}
}

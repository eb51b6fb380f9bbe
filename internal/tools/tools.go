// Package tools implements the CineScope tool handlers: typed argument
// validation, cache orchestration, retry-wrapped upstream fetches and
// response shaping into the stable wire schema.
//
// Each handler follows the same sequence: decode and validate the raw
// arguments, derive the canonical cache key, serve a fresh cache entry
// when one exists, otherwise fetch through the retry controller, shape
// the upstream payload and fill the cache. Handlers return [Response]
// values on success and [types.Error] values on failure; validation
// failures never reach the upstream client.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/MrWong99/cinescope/internal/cache"
	"github.com/MrWong99/cinescope/internal/resilience"
	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// Tool names as advertised over MCP.
const (
	ToolSearchTitle        = "search_title"
	ToolGetRecommendations = "get_recommendations"
	ToolDiscover           = "discover"
	ToolHealth             = "health"
)

// Names returns every tool name advertised over MCP, in listing order.
func Names() []string {
	return []string{ToolSearchTitle, ToolGetRecommendations, ToolDiscover, ToolHealth}
}

// defaultLanguage is applied when a tool call omits the language argument.
const defaultLanguage = "en"

// Year bounds accepted by search and discover. Film history starts in
// the 1870s; the upper bound leaves room for announced releases.
const (
	minYear = 1870
	maxYear = 2100
)

// languagePattern matches ISO-639-1 codes with an optional region
// subtag, e.g. "en" or "pt-BR".
var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// Upstream is the slice of [tmdb.Client] the handlers depend on.
type Upstream interface {
	Search(ctx context.Context, media tmdb.MediaType, p tmdb.SearchParams) (*tmdb.Page, error)
	Recommendations(ctx context.Context, media tmdb.MediaType, id int64, language string) (*tmdb.Page, error)
	Discover(ctx context.Context, media tmdb.MediaType, p tmdb.DiscoverParams) (*tmdb.Page, error)
}

// Response is a successful handler result together with the cache
// metadata the dispatcher folds into the response envelope.
type Response struct {
	Result        any
	CacheHit      bool
	FetchedAt     time.Time
	Unconstrained bool
}

// cachedPayload is the value stored per cache key. fetchedAt keeps the
// original upstream fetch time, so cache hits report when the data was
// actually retrieved rather than when it was served.
type cachedPayload struct {
	result    any
	fetchedAt time.Time
}

// Set bundles the query tool handlers around their shared dependencies.
// Safe for concurrent use.
type Set struct {
	upstream Upstream
	store    *cache.Store
	retrier  *resilience.Retrier
	language string
	now      func() time.Time
}

// Option is a functional option for configuring a [Set].
type Option func(*Set)

// WithDefaultLanguage overrides the language applied when a tool call
// does not specify one. Empty values are ignored.
func WithDefaultLanguage(language string) Option {
	return func(s *Set) {
		if language != "" {
			s.language = language
		}
	}
}

// WithClock overrides the time source used for fetch timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Set) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a handler set backed by the given upstream client, cache
// store and retrier.
func New(upstream Upstream, store *cache.Store, retrier *resilience.Retrier, opts ...Option) *Set {
	s := &Set{
		upstream: upstream,
		store:    store,
		retrier:  retrier,
		language: defaultLanguage,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes the common handler sequence around fetch: cache lookup on
// the canonical key, retry-wrapped fetch on miss, cache fill on success.
// args must already be validated and normalized so that equivalent calls
// produce identical keys.
func (s *Set) run(ctx context.Context, tool string, args any, fetch func(ctx context.Context) (any, error)) (Response, error) {
	key, err := cache.Key(tool, args)
	if err != nil {
		return Response{}, types.Errorf(types.KindInternal, "building cache key: %v", err)
	}

	if v, ok := s.store.Get(key); ok {
		if p, ok := v.(cachedPayload); ok {
			return Response{Result: p.result, CacheHit: true, FetchedAt: p.fetchedAt}, nil
		}
	}

	var result any
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		r, ferr := fetch(ctx)
		if ferr != nil {
			return ferr
		}
		result = r
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	fetchedAt := s.now().UTC()
	s.store.Put(key, cachedPayload{result: result, fetchedAt: fetchedAt})
	return Response{Result: result, CacheHit: false, FetchedAt: fetchedAt}, nil
}

// decodeArgs strictly decodes raw JSON arguments into dst. Unknown
// fields and type mismatches surface as invalid_argument errors.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.Errorf(types.KindInvalidArgument, "invalid arguments: %v", err)
	}
	return nil
}

// parseMedia validates a media type argument after defaults have been
// applied.
func parseMedia(raw string) (tmdb.MediaType, error) {
	media := tmdb.MediaType(raw)
	if !media.IsValid() {
		return "", types.Errorf(types.KindInvalidArgument, "type must be %q or %q", tmdb.MediaMovie, tmdb.MediaTV)
	}
	return media, nil
}

// validateYear checks an optional year argument. Zero means unset.
func validateYear(year int) error {
	if year == 0 {
		return nil
	}
	if year < minYear || year > maxYear {
		return types.Errorf(types.KindInvalidArgument, "year must be between %d and %d", minYear, maxYear)
	}
	return nil
}

// normalizeLanguage validates an optional language argument, falling
// back to the set's default when empty.
func (s *Set) normalizeLanguage(language string) (string, error) {
	if language == "" {
		return s.language, nil
	}
	if !languagePattern.MatchString(language) {
		return "", types.Errorf(types.KindInvalidArgument, "language %q is not an ISO-639-1 code like \"en\" or \"pt-BR\"", language)
	}
	return language, nil
}

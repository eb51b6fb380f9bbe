// Package tmdb provides a minimal client for The Movie Database (TMDB) v3 API.
//
// The client covers the read-only endpoints CineScope serves: title search,
// per-title recommendations, and filtered discovery, for both the movie and TV
// catalogues. Failures are classified into the shared error taxonomy
// ([types.Error]) so callers can distinguish transient conditions (HTTP 429,
// 5xx, network resets) from permanent ones (other 4xx, malformed bodies)
// without inspecting message text.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/cinescope/pkg/types"
)

const (
	// defaultBaseURL is the production TMDB API root.
	defaultBaseURL = "https://api.themoviedb.org/3"

	// defaultTimeout bounds a single HTTP request end to end.
	defaultTimeout = 10 * time.Second
)

// MediaType selects the TMDB catalogue to query.
type MediaType string

const (
	// MediaMovie queries the movie catalogue.
	MediaMovie MediaType = "movie"

	// MediaTV queries the TV catalogue.
	MediaTV MediaType = "tv"
)

// IsValid reports whether the media type is one of the supported catalogues.
func (m MediaType) IsValid() bool {
	return m == MediaMovie || m == MediaTV
}

// Item is a single movie or TV entry as returned by TMDB list endpoints.
// Movies populate Title and ReleaseDate; TV shows populate Name and
// FirstAirDate.
type Item struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	Popularity   float64 `json:"popularity"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	GenreIDs     []int64 `json:"genre_ids"`
}

// DisplayTitle returns the movie title or the TV name, whichever is set.
func (it Item) DisplayTitle() string {
	if it.Title != "" {
		return it.Title
	}
	return it.Name
}

// Year extracts the release year from the item's date field, or 0 when the
// date is absent or unparseable. TMDB dates are "YYYY-MM-DD".
func (it Item) Year() int {
	date := it.ReleaseDate
	if date == "" {
		date = it.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

// Page is the common TMDB paged list response.
type Page struct {
	Page         int    `json:"page"`
	Results      []Item `json:"results"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
}

// Client talks to the TMDB v3 API. Construct with [New]; the zero value is not
// usable. Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customises a [Client].
type Option func(*Client)

// WithBaseURL overrides the API root. Used for tests and proxies; trailing
// slashes are trimmed.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, e.g. to adjust timeouts
// or inject a recording transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New creates a TMDB client authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("tmdb: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchParams are the upstream parameters for a title search.
type SearchParams struct {
	// Query is the search text. Must not be empty.
	Query string

	// Language is a TMDB language tag such as "en" or "en-US".
	Language string

	// Year restricts results to a release year. Zero means unrestricted.
	Year int
}

// Search queries /search/{movie|tv}. Adult titles are always excluded.
func (c *Client) Search(ctx context.Context, media MediaType, p SearchParams) (*Page, error) {
	q := url.Values{}
	q.Set("query", p.Query)
	q.Set("include_adult", "false")
	if p.Language != "" {
		q.Set("language", p.Language)
	}
	if p.Year > 0 {
		q.Set(yearParam(media), strconv.Itoa(p.Year))
	}
	return c.getPage(ctx, "/search/"+string(media), q)
}

// Recommendations queries /{movie|tv}/{id}/recommendations, TMDB's curated
// list of titles similar to the given one.
func (c *Client) Recommendations(ctx context.Context, media MediaType, id int64, language string) (*Page, error) {
	q := url.Values{}
	if language != "" {
		q.Set("language", language)
	}
	return c.getPage(ctx, fmt.Sprintf("/%s/%d/recommendations", media, id), q)
}

// DiscoverParams are the upstream parameters for a filtered discovery query.
type DiscoverParams struct {
	// GenreIDs restricts results to titles carrying all the given TMDB genre
	// ids. Empty means unrestricted.
	GenreIDs []int64

	// Language is a TMDB language tag such as "en" or "en-US".
	Language string

	// Year restricts results to a release year. Zero means unrestricted.
	Year int

	// SortBy is a full TMDB sort key such as "popularity.desc".
	SortBy string
}

// Discover queries /discover/{movie|tv}. Adult titles are always excluded.
func (c *Client) Discover(ctx context.Context, media MediaType, p DiscoverParams) (*Page, error) {
	q := url.Values{}
	q.Set("include_adult", "false")
	if p.Language != "" {
		q.Set("language", p.Language)
	}
	if p.SortBy != "" {
		q.Set("sort_by", p.SortBy)
	}
	if len(p.GenreIDs) > 0 {
		q.Set("with_genres", joinIDs(p.GenreIDs))
	}
	if p.Year > 0 {
		q.Set(yearParam(media), strconv.Itoa(p.Year))
	}
	return c.getPage(ctx, "/discover/"+string(media), q)
}

// yearParam returns the year filter name, which differs between catalogues.
func yearParam(media MediaType) string {
	if media == MediaTV {
		return "first_air_date_year"
	}
	return "primary_release_year"
}

// joinIDs renders genre ids as TMDB's comma-separated AND filter.
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// getPage performs a GET request and decodes the paged response, classifying
// every failure mode into the shared taxonomy.
func (c *Client) getPage(ctx context.Context, path string, q url.Values) (*Page, error) {
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled or expired caller context is not an upstream fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.Error{
			Kind:      types.KindTransientNetwork,
			Message:   "tmdb: " + path + ": network error",
			Retryable: true,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &types.Error{
			Kind:      types.KindRateLimited,
			Message:   "tmdb: " + path + ": rate limited",
			Retryable: true,
		}
	case resp.StatusCode >= 500:
		return nil, &types.Error{
			Kind:      types.KindUpstream,
			Message:   fmt.Sprintf("tmdb: %s: upstream status %d", path, resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode >= 400:
		return nil, &types.Error{
			Kind:      types.KindUpstream,
			Message:   fmt.Sprintf("tmdb: %s: request rejected with status %d", path, resp.StatusCode),
			Retryable: false,
		}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &types.Error{
			Kind:      types.KindMalformedResponse,
			Message:   "tmdb: " + path + ": decode response",
			Retryable: false,
			Cause:     err,
		}
	}
	return &page, nil
}

package tools

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

func TestDiscover_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown genre", `{"genre": ["NotAGenre"]}`},
		{"tv genre on movie", `{"type": "movie", "genre": ["kids"]}`},
		{"bad sort key", `{"sort_by": "rating"}`},
		{"bad type", `{"type": "podcast"}`},
		{"year out of range", `{"year": 1492}`},
		{"bad language", `{"language": "German"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubUpstream{page: inceptionPage()}
			set, _ := newTestSet(stub)

			_, err := set.Discover(context.Background(), json.RawMessage(tc.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			te := types.AsError(err)
			if te.Kind != types.KindInvalidArgument {
				t.Errorf("kind = %s, want %s", te.Kind, types.KindInvalidArgument)
			}
			if stub.calls != 0 {
				t.Errorf("upstream calls = %d, want 0", stub.calls)
			}
		})
	}
}

func TestDiscover_SuggestsCloseGenre(t *testing.T) {
	stub := &stubUpstream{}
	set, _ := newTestSet(stub)

	_, err := set.Discover(context.Background(), json.RawMessage(`{"genre": ["sciense fiction"]}`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	msg := types.AsError(err).Message
	if !strings.Contains(msg, `unknown genre "sciense fiction"`) {
		t.Errorf("message = %q, want it to name the unknown genre", msg)
	}
	if !strings.Contains(msg, `did you mean "science fiction"?`) {
		t.Errorf("message = %q, want a science fiction suggestion", msg)
	}
}

func TestDiscover_BuildsParams(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	raw := json.RawMessage(`{"type": "movie", "genre": ["Drama", "comedy"], "year": 1999, "sort_by": "vote_average"}`)
	resp, err := set.Discover(context.Background(), raw)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if resp.Unconstrained {
		t.Error("filtered query must not be flagged unconstrained")
	}

	got := stub.lastDiscover
	if !slices.Equal(got.GenreIDs, []int64{35, 18}) {
		t.Errorf("genre ids = %v, want [35 18]", got.GenreIDs)
	}
	if got.Year != 1999 {
		t.Errorf("year = %d, want 1999", got.Year)
	}
	if got.SortBy != "vote_average.desc" {
		t.Errorf("sort_by = %q, want vote_average.desc", got.SortBy)
	}
	if got.Language != "en" {
		t.Errorf("language = %q, want en", got.Language)
	}
}

func TestDiscover_DefaultSortIsPopularity(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	if _, err := set.Discover(context.Background(), json.RawMessage(`{"genre": ["drama"]}`)); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if stub.lastDiscover.SortBy != "popularity.desc" {
		t.Errorf("sort_by = %q, want popularity.desc", stub.lastDiscover.SortBy)
	}
}

func TestDiscover_TVGenreTable(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	if _, err := set.Discover(context.Background(), json.RawMessage(`{"type": "tv", "genre": ["kids", "sci-fi & fantasy"]}`)); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if stub.lastMedia != tmdb.MediaTV {
		t.Errorf("media = %s, want %s", stub.lastMedia, tmdb.MediaTV)
	}
	if !slices.Equal(stub.lastDiscover.GenreIDs, []int64{10762, 10765}) {
		t.Errorf("genre ids = %v, want [10762 10765]", stub.lastDiscover.GenreIDs)
	}
}

func TestDiscover_UnconstrainedFlag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"no filters", `{}`, true},
		{"only sort", `{"sort_by": "vote_average"}`, true},
		{"only language", `{"language": "de"}`, true},
		{"genre filter", `{"genre": ["drama"]}`, false},
		{"year filter", `{"year": 2020}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubUpstream{page: inceptionPage()}
			set, _ := newTestSet(stub)

			resp, err := set.Discover(context.Background(), json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if resp.Unconstrained != tc.want {
				t.Errorf("Unconstrained = %v, want %v", resp.Unconstrained, tc.want)
			}
		})
	}
}

func TestDiscover_GenresAreASet(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	if _, err := set.Discover(context.Background(), json.RawMessage(`{"genre": ["Drama", "drama", "comedy"]}`)); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !slices.Equal(stub.lastDiscover.GenreIDs, []int64{35, 18}) {
		t.Errorf("genre ids = %v, want deduplicated [35 18]", stub.lastDiscover.GenreIDs)
	}

	resp, err := set.Discover(context.Background(), json.RawMessage(`{"genre": ["comedy", "DRAMA"]}`))
	if err != nil {
		t.Fatalf("Discover reorder: %v", err)
	}
	if !resp.CacheHit {
		t.Error("same genre set in a different order must be a cache hit")
	}
	if stub.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", stub.calls)
	}
}

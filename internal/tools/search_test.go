package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

func TestSearchTitle_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing query", `{}`},
		{"blank query", `{"query": "   "}`},
		{"bad type", `{"query": "Inception", "type": "book"}`},
		{"year too early", `{"query": "Inception", "year": 1065}`},
		{"year too late", `{"query": "Inception", "year": 3000}`},
		{"bad language", `{"query": "Inception", "language": "english"}`},
		{"uppercase language", `{"query": "Inception", "language": "EN"}`},
		{"unknown field", `{"query": "Inception", "bogus": true}`},
		{"wrong query type", `{"query": 5}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubUpstream{page: inceptionPage()}
			set, _ := newTestSet(stub)

			_, err := set.SearchTitle(context.Background(), json.RawMessage(tc.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			te := types.AsError(err)
			if te.Kind != types.KindInvalidArgument {
				t.Errorf("kind = %s, want %s", te.Kind, types.KindInvalidArgument)
			}
			if te.Retryable {
				t.Error("validation errors must not be retryable")
			}
			if stub.calls != 0 {
				t.Errorf("upstream calls = %d, want 0", stub.calls)
			}
		})
	}
}

func TestSearchTitle_NotFound(t *testing.T) {
	stub := &stubUpstream{}
	set, _ := newTestSet(stub)

	_, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "no such film"}`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	te := types.AsError(err)
	if te.Kind != types.KindNotFound {
		t.Errorf("kind = %s, want %s", te.Kind, types.KindNotFound)
	}
	if te.Retryable {
		t.Error("not_found must not be retryable")
	}
	if stub.calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (empty result must not retry)", stub.calls)
	}
}

func TestSearchTitle_AppliesDefaults(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub)

	if _, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "Inception"}`)); err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if stub.lastMedia != tmdb.MediaMovie {
		t.Errorf("media = %s, want %s", stub.lastMedia, tmdb.MediaMovie)
	}
	if stub.lastSearch.Language != "en" {
		t.Errorf("language = %q, want en", stub.lastSearch.Language)
	}
	if stub.lastSearch.Year != 0 {
		t.Errorf("year = %d, want 0", stub.lastSearch.Year)
	}
}

func TestSearchTitle_ConfiguredDefaultLanguage(t *testing.T) {
	stub := &stubUpstream{page: inceptionPage()}
	set, _ := newTestSet(stub, WithDefaultLanguage("de"))

	if _, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "Inception"}`)); err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if stub.lastSearch.Language != "de" {
		t.Errorf("language = %q, want de", stub.lastSearch.Language)
	}
}

func TestSearchTitle_TVShapesFromAirDate(t *testing.T) {
	stub := &stubUpstream{page: &tmdb.Page{Results: []tmdb.Item{{
		ID:           1396,
		Name:         "Breaking Bad",
		FirstAirDate: "2008-01-20",
		VoteAverage:  8.9,
	}}}}
	set, _ := newTestSet(stub)

	resp, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "Breaking Bad", "type": "tv"}`))
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if stub.lastMedia != tmdb.MediaTV {
		t.Errorf("media = %s, want %s", stub.lastMedia, tmdb.MediaTV)
	}

	titles := resp.Result.([]Title)
	if len(titles) != 1 {
		t.Fatalf("len(titles) = %d, want 1", len(titles))
	}
	got := titles[0]
	if got.Title != "Breaking Bad" || got.Type != "tv" || got.Year != 2008 {
		t.Errorf("title = %+v, want Breaking Bad/tv/2008", got)
	}
	if got.Overview != "" || got.PosterPath != "" {
		t.Errorf("unknown fields must stay empty, got %+v", got)
	}
}

func TestSearchTitle_KeepsUpstreamOrder(t *testing.T) {
	stub := &stubUpstream{page: &tmdb.Page{Results: []tmdb.Item{
		{ID: 3, Title: "Third", VoteAverage: 9.9},
		{ID: 1, Title: "First", VoteAverage: 1.2},
		{ID: 2, Title: "Second", VoteAverage: 5.0},
	}}}
	set, _ := newTestSet(stub)

	resp, err := set.SearchTitle(context.Background(), json.RawMessage(`{"query": "anything"}`))
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	titles := resp.Result.([]Title)
	var ids []int64
	for _, title := range titles {
		ids = append(ids, title.ID)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Errorf("ids = %v, want upstream order [3 1 2]", ids)
	}
}

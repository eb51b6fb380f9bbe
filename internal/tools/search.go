package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// SearchArgs are the arguments of the search_title tool.
type SearchArgs struct {
	Query    string `json:"query"`
	Type     string `json:"type,omitempty"`
	Year     int    `json:"year,omitempty"`
	Language string `json:"language,omitempty"`
}

// Title is the stable record shape returned by search_title and
// discover. Unknown fields carry their zero value rather than being
// omitted, so callers can rely on a fixed shape.
type Title struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Year       int     `json:"year"`
	Rating     float64 `json:"rating"`
	Overview   string  `json:"overview"`
	PosterPath string  `json:"poster_path"`
}

// SearchTitle looks up movies or TV shows by title. Results keep the
// upstream relevance order. A query with zero upstream matches is
// reported as a not_found error rather than an empty list.
func (s *Set) SearchTitle(ctx context.Context, raw json.RawMessage) (Response, error) {
	var args SearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Response{}, err
	}

	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return Response{}, types.Errorf(types.KindInvalidArgument, "query must not be empty")
	}
	if args.Type == "" {
		args.Type = string(tmdb.MediaMovie)
	}
	media, err := parseMedia(args.Type)
	if err != nil {
		return Response{}, err
	}
	if err := validateYear(args.Year); err != nil {
		return Response{}, err
	}
	lang, err := s.normalizeLanguage(args.Language)
	if err != nil {
		return Response{}, err
	}
	args.Language = lang

	return s.run(ctx, ToolSearchTitle, args, func(ctx context.Context) (any, error) {
		page, err := s.upstream.Search(ctx, media, tmdb.SearchParams{
			Query:    args.Query,
			Language: args.Language,
			Year:     args.Year,
		})
		if err != nil {
			return nil, err
		}
		if len(page.Results) == 0 {
			return nil, types.Errorf(types.KindNotFound, "no results for query %q", args.Query)
		}
		return shapeTitles(media, page.Results), nil
	})
}

// shapeTitles maps raw TMDB items into the stable [Title] shape,
// preserving order.
func shapeTitles(media tmdb.MediaType, items []tmdb.Item) []Title {
	titles := make([]Title, 0, len(items))
	for _, item := range items {
		titles = append(titles, Title{
			ID:         item.ID,
			Title:      item.DisplayTitle(),
			Type:       string(media),
			Year:       item.Year(),
			Rating:     item.VoteAverage,
			Overview:   item.Overview,
			PosterPath: item.PosterPath,
		})
	}
	return titles
}

package tools

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// Sort keys accepted by discover, mapped onto TMDB's descending sort
// parameters.
const (
	SortPopularity  = "popularity"
	SortVoteAverage = "vote_average"
)

// DiscoverArgs are the arguments of the discover tool.
type DiscoverArgs struct {
	Type     string   `json:"type,omitempty"`
	Genre    []string `json:"genre,omitempty"`
	Year     int      `json:"year,omitempty"`
	Language string   `json:"language,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"`
}

// Discover lists titles matching the given genre and year filters,
// sorted by descending popularity or rating. An empty filter set still
// executes; the response is flagged so the dispatcher can log the
// unconstrained query.
func (s *Set) Discover(ctx context.Context, raw json.RawMessage) (Response, error) {
	var args DiscoverArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Response{}, err
	}

	if args.Type == "" {
		args.Type = string(tmdb.MediaMovie)
	}
	media, err := parseMedia(args.Type)
	if err != nil {
		return Response{}, err
	}

	// Genre names are matched case-insensitively and treated as a set.
	for i, name := range args.Genre {
		args.Genre[i] = strings.ToLower(strings.TrimSpace(name))
	}
	slices.Sort(args.Genre)
	args.Genre = slices.Compact(args.Genre)
	genreIDs, err := resolveGenres(media, args.Genre)
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

	if args.SortBy == "" {
		args.SortBy = SortPopularity
	}
	if args.SortBy != SortPopularity && args.SortBy != SortVoteAverage {
		return Response{}, types.Errorf(types.KindInvalidArgument, "sort_by must be %q or %q", SortPopularity, SortVoteAverage)
	}

	unconstrained := len(args.Genre) == 0 && args.Year == 0

	resp, err := s.run(ctx, ToolDiscover, args, func(ctx context.Context) (any, error) {
		page, err := s.upstream.Discover(ctx, media, tmdb.DiscoverParams{
			GenreIDs: genreIDs,
			Language: args.Language,
			Year:     args.Year,
			SortBy:   args.SortBy + ".desc",
		})
		if err != nil {
			return nil, err
		}
		return shapeTitles(media, page.Results), nil
	})
	if err != nil {
		return Response{}, err
	}
	resp.Unconstrained = unconstrained
	return resp, nil
}

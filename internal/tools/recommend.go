package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// RecommendArgs are the arguments of the get_recommendations tool.
type RecommendArgs struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Recommendation is the shaped record returned by get_recommendations.
// Reason is always present; when upstream metadata offers no signal it
// carries the sentinel "not provided".
type Recommendation struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
	Reason string `json:"reason"`
}

// Recommendations lists titles TMDB considers similar to the given one.
// An unknown id surfaces as a non-retryable upstream error; a known id
// without recommendations yields an empty list.
func (s *Set) Recommendations(ctx context.Context, raw json.RawMessage) (Response, error) {
	var args RecommendArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Response{}, err
	}

	if args.ID <= 0 {
		return Response{}, types.Errorf(types.KindInvalidArgument, "id must be a positive integer")
	}
	if args.Type == "" {
		return Response{}, types.Errorf(types.KindInvalidArgument, "type is required")
	}
	media, err := parseMedia(args.Type)
	if err != nil {
		return Response{}, err
	}

	return s.run(ctx, ToolGetRecommendations, args, func(ctx context.Context) (any, error) {
		page, err := s.upstream.Recommendations(ctx, media, args.ID, s.language)
		if err != nil {
			return nil, err
		}
		recs := make([]Recommendation, 0, len(page.Results))
		for _, item := range page.Results {
			recs = append(recs, Recommendation{
				ID:     item.ID,
				Title:  item.DisplayTitle(),
				Year:   item.Year(),
				Reason: reasonFor(item),
			})
		}
		return recs, nil
	})
}

// reasonFor builds the human-readable justification attached to every
// recommendation from the rating and popularity signals TMDB returns.
func reasonFor(item tmdb.Item) string {
	var parts []string
	if item.VoteAverage > 0 {
		parts = append(parts, fmt.Sprintf("high user rating %.1f", item.VoteAverage))
	}
	if item.Popularity > 0 {
		parts = append(parts, "popular among similar viewers")
	}
	if len(parts) == 0 {
		return "not provided"
	}
	return strings.Join(parts, "; ")
}

package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/cinescope/pkg/tmdb"
	"github.com/MrWong99/cinescope/pkg/types"
)

// suggestionThreshold is the minimum Jaro-Winkler score required before
// a known genre is offered as a close match in an unknown-genre error.
const suggestionThreshold = 0.80

// movieGenres maps lowercase genre names to TMDB movie genre ids.
var movieGenres = map[string]int64{
	"action":          28,
	"adventure":       12,
	"animation":       16,
	"comedy":          35,
	"crime":           80,
	"documentary":     99,
	"drama":           18,
	"family":          10751,
	"fantasy":         14,
	"history":         36,
	"horror":          27,
	"music":           10402,
	"mystery":         9648,
	"romance":         10749,
	"science fiction": 878,
	"thriller":        53,
	"tv movie":        10770,
	"war":             10752,
	"western":         37,
}

// tvGenres maps lowercase genre names to TMDB TV genre ids.
var tvGenres = map[string]int64{
	"action & adventure": 10759,
	"animation":          16,
	"comedy":             35,
	"crime":              80,
	"documentary":        99,
	"drama":              18,
	"family":             10751,
	"kids":               10762,
	"mystery":            9648,
	"news":               10763,
	"reality":            10764,
	"sci-fi & fantasy":   10765,
	"soap":               10766,
	"talk":               10767,
	"war & politics":     10768,
	"western":            37,
}

// genreTable returns the genre allow-list for the given media type.
func genreTable(media tmdb.MediaType) map[string]int64 {
	if media == tmdb.MediaTV {
		return tvGenres
	}
	return movieGenres
}

// resolveGenres maps lowercased genre names to TMDB ids. Any unknown
// name fails the whole call with an invalid_argument error listing the
// closest known genres.
func resolveGenres(media tmdb.MediaType, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}

	table := genreTable(media)
	ids := make([]int64, 0, len(names))
	var problems []string
	for _, name := range names {
		id, ok := table[name]
		if !ok {
			problem := fmt.Sprintf("unknown genre %q", name)
			if match := closestGenre(name, table); match != "" {
				problem += fmt.Sprintf(" (did you mean %q?)", match)
			}
			problems = append(problems, problem)
			continue
		}
		ids = append(ids, id)
	}
	if len(problems) > 0 {
		return nil, types.Errorf(types.KindInvalidArgument, "%s", strings.Join(problems, "; "))
	}
	return ids, nil
}

// closestGenre returns the known genre most similar to name, or "" when
// nothing scores above suggestionThreshold. Candidates are scanned in
// sorted order so equal scores resolve the same way on every call.
func closestGenre(name string, table map[string]int64) string {
	known := make([]string, 0, len(table))
	for genre := range table {
		known = append(known, genre)
	}
	sort.Strings(known)

	best, bestScore := "", 0.0
	for _, genre := range known {
		if score := matchr.JaroWinkler(name, genre, false); score > bestScore {
			best, bestScore = genre, score
		}
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}

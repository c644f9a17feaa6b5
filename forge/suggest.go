package forge

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

const maxSuggestions = 3

// suggest returns known ids close to id, best match first.
func suggest(id string, known []string) []string {
	if id == "" || len(known) == 0 {
		return nil
	}

	type candidate struct {
		id   string
		dist int
	}
	compare := strings.ToLower(id)
	var candidates []candidate
	for _, k := range known {
		dist := levenshtein.ComputeDistance(compare, strings.ToLower(k))
		if k == id || dist > suggestionLimit(len(k)) {
			continue
		}
		candidates = append(candidates, candidate{id: k, dist: dist})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	var out []string
	for _, c := range candidates {
		out = append(out, c.id)
		if len(out) >= maxSuggestions {
			break
		}
	}
	return out
}

func suggestionLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

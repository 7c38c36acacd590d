package pytrail

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// DefaultSearchLimit caps Search results when limit <= 0.
const DefaultSearchLimit = 10

// searchThreshold filters out irrelevant matches.
const searchThreshold = 0.3

// SearchResult is a symbol with its similarity to the query in [0, 1].
type SearchResult struct {
	Symbol *Symbol
	Score  float64
}

// Search ranks symbols by similarity to query. Names are compared both as
// a whole and token by token, so typos and partial dotted paths still
// match. Ties are broken by display name.
func (q *QueryBuilder) Search(query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	syms, err := q.store.AllSymbols()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	queryLower := strings.ToLower(query)
	queryTokens := tokenize(query)

	var results []SearchResult
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		score := math.Max(
			similarity(queryLower, queryTokens, sym.Name),
			similarity(queryLower, queryTokens, sym.DisplayName),
		)
		if score > searchThreshold {
			results = append(results, SearchResult{Symbol: sym, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol.DisplayName < results[j].Symbol.DisplayName
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// similarity combines exact match, global Levenshtein distance and
// token-wise Levenshtein distance.
func similarity(queryLower string, queryTokens map[string]bool, name string) float64 {
	nameLower := strings.ToLower(name)
	if queryLower == nameLower {
		return 1.0
	}
	if strings.HasSuffix(nameLower, "."+queryLower) {
		return 0.98
	}
	if strings.Contains(nameLower, queryLower) {
		return 0.95
	}

	global := 1.0 - float64(levenshtein.Distance(queryLower, nameLower, nil))/float64(max(len(queryLower), len(nameLower)))

	nameTokens := tokenize(name)
	total := 0.0
	for qt := range queryTokens {
		if nameTokens[qt] {
			total += 1.0
			continue
		}
		best := 0.0
		for nt := range nameTokens {
			d := levenshtein.Distance(qt, nt, nil)
			s := 1.0 - float64(d)/float64(max(len(qt), len(nt)))
			best = math.Max(best, s)
		}
		total += best
	}
	tokens := 0.0
	if len(queryTokens) > 0 {
		tokens = total / float64(len(queryTokens))
	}
	return math.Max(math.Max(global, 0), tokens)
}

// tokenize splits on non-alphanumerics and camelCase boundaries.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens[strings.ToLower(cur.String())] = true
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsNumber(r):
			flush()
		case unicode.IsUpper(r) && cur.Len() > 0:
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

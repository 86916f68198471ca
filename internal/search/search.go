// Package search implements tinymem's two query modes: fuzzy
// chain-name matching and case-insensitive text search over chain and
// artifact search bodies. The exact scoring formula is hand-rolled
// (see DESIGN.md) rather than reached for an unrelated third-party
// scorer whose output would not match it.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/advpropsys/tinymem/internal/model"
	"github.com/advpropsys/tinymem/internal/store"
)

// ChainMatch is one result of ChainSearch.
type ChainMatch struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is one result of Search.
type Result struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

const (
	fuzzyThreshold  = 0.4
	substringBonus  = 0.2
	textOccurBonus  = 2.0
	textResultLimit = 20
	snippetWidth    = 120
)

// Searcher reads from the Store; it holds only the Store handle and no
// state of its own (the search bodies are maintained synchronously by
// Store writes).
type Searcher struct {
	store *store.Store
}

func New(s *store.Store) *Searcher { return &Searcher{store: s} }

// ChainSearch computes a fuzzy chain-name match: a normalized
// edit-distance score with an exact-substring bonus, capped
// at 1.0, filtered at score >= 0.4, sorted score desc then by most
// recent updated_at.
func (sr *Searcher) ChainSearch(ctx context.Context, query string) ([]ChainMatch, error) {
	names, err := sr.store.AllChainNames(ctx)
	if err != nil {
		return nil, err
	}
	ql := strings.ToLower(query)

	matches := make([]ChainMatch, 0, len(names))
	for _, name := range names {
		nl := strings.ToLower(name)
		score := fuzzyScore(ql, nl)
		if strings.Contains(nl, ql) {
			score = minF(score+substringBonus, 1.0)
		}
		if score >= fuzzyThreshold {
			matches = append(matches, ChainMatch{Name: name, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		ui, _ := sr.store.ChainUpdatedAt(ctx, matches[i].Name)
		uj, _ := sr.store.ChainUpdatedAt(ctx, matches[j].Name)
		return ui > uj
	})
	return matches, nil
}

// Search performs a case-insensitive substring text search across
// chain-link and artifact search bodies.
func (sr *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	ql := strings.ToLower(strings.TrimSpace(query))
	if ql == "" {
		return []Result{}, nil
	}

	var results []Result

	chainBodies, err := sr.store.SearchBodies(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range chainBodies {
		occurrences := strings.Count(b.Body, ql)
		if occurrences == 0 {
			continue
		}
		titleBonus := 0.0
		if strings.Contains(strings.ToLower(b.ChainName), ql) || strings.Contains(strings.ToLower(b.Slug), ql) {
			titleBonus = textOccurBonus
		}
		score := float64(occurrences) + titleBonus
		results = append(results, Result{
			ID:      "chain:" + b.ChainName + ":" + b.Slug,
			Kind:    string(model.KindChainLink),
			Snippet: snippet(b.Body, ql),
			Score:   score,
		})
	}

	artifacts, err := sr.store.ListArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, art := range artifacts {
		body, err := sr.store.ArtifactSearchBody(ctx, art.ID)
		if err != nil || body == "" {
			continue
		}
		occurrences := strings.Count(body, ql)
		if occurrences == 0 {
			continue
		}
		titleBonus := 0.0
		if strings.Contains(strings.ToLower(art.Title), ql) || strings.Contains(strings.ToLower(art.Description), ql) {
			titleBonus = textOccurBonus
		}
		score := float64(occurrences) + titleBonus
		results = append(results, Result{
			ID:      "artifact:" + art.ID,
			Kind:    string(model.KindArtifact),
			Snippet: snippet(body, ql),
			Score:   score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > textResultLimit {
		results = results[:textResultLimit]
	}
	return results, nil
}

// snippet returns up to snippetWidth characters of context centered on
// the first match of query within body, with ellipses.
func snippet(body, query string) string {
	idx := strings.Index(body, query)
	if idx < 0 {
		if len(body) > snippetWidth {
			return body[:snippetWidth] + "..."
		}
		return body
	}
	half := snippetWidth / 2
	start := idx - half
	prefix := ""
	if start < 0 {
		start = 0
	} else {
		prefix = "..."
	}
	end := start + snippetWidth
	suffix := ""
	if end >= len(body) {
		end = len(body)
	} else {
		suffix = "..."
	}
	return prefix + body[start:end] + suffix
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// fuzzyScore computes 1 - edit_distance/max(len(a), len(b)).
func fuzzyScore(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshtein computes the classic edit distance between two strings,
// operating on runes so multi-byte names score correctly.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = minInt(del, minInt(ins, sub))
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package nodes

import (
	"sort"
	"strings"
)

// fuzzyScore ranks how well candidate matches query using a token-overlap
// heuristic (no pack dependency offers token-sort-ratio matching — this is
// the one deliberately stdlib-only scoring routine in the repo, per
// DESIGN.md's Open Question resolution). Both strings are lowercased and
// split on whitespace; the score is the Jaccard-style ratio of shared
// tokens to the union of tokens, plus a small bonus when candidate
// contains query verbatim as a substring (an exact or near-exact name
// match should always outrank a loose token overlap).
func fuzzyScore(query, candidate string) float64 {
	q := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	c := strings.Fields(strings.ToLower(strings.TrimSpace(candidate)))
	if len(q) == 0 || len(c) == 0 {
		return 0
	}

	qSet := make(map[string]struct{}, len(q))
	for _, t := range q {
		qSet[t] = struct{}{}
	}
	cSet := make(map[string]struct{}, len(c))
	for _, t := range c {
		cSet[t] = struct{}{}
	}

	shared := 0
	for t := range qSet {
		if _, ok := cSet[t]; ok {
			shared++
		}
	}
	union := len(qSet) + len(cSet) - shared
	if union == 0 {
		return 0
	}
	score := float64(shared) / float64(union)

	if strings.Contains(strings.ToLower(candidate), strings.ToLower(strings.TrimSpace(query))) {
		score += 0.5
	}
	return score
}

// TargetCandidate is one ranked match returned by rankCandidates, carrying
// enough to both display to a human at HITL_select_target and resolve back
// to a platform id on selection.
type TargetCandidate struct {
	ID        string
	Name      string
	UpdatedAt string
	Score     float64
}

// rankCandidates sorts by fuzzy score descending, then by UpdatedAt
// (ISO-8601, lexically comparable) descending as the recency tie-break,
// and caps the result at 10 (spec §4.5 resolve_target: "returns top 10").
func rankCandidates(query string, candidates []TargetCandidate) []TargetCandidate {
	ranked := make([]TargetCandidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Score = fuzzyScore(query, ranked[i].Name)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].UpdatedAt > ranked[j].UpdatedAt
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	return ranked
}

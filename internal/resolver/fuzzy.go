package resolver

import "github.com/jenezis/harmon/internal/normalize"

// levenshteinDistance calculates the edit distance between two strings,
// operating on runes so that multi-byte input is compared correctly.
// Uses two rows instead of the full matrix for memory efficiency.
func levenshteinDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// similarityRatio converts an edit distance into a similarity in [0,1]:
// 1 - distance/max(len). Two empty strings are fully similar.
func similarityRatio(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(a, b))/float64(longest)
}

// tokenSortRatio computes string similarity after sorting each side's
// tokens, so word order does not count against a match ("native react"
// scores 1.0 against "react native"). Both inputs must already be
// normalized.
func tokenSortRatio(a, b string) float64 {
	return similarityRatio(normalize.TokenSortKey(a), normalize.TokenSortKey(b))
}

// fuzzyCandidate is an internal scored candidate before conversion to a
// public Suggestion.
type fuzzyCandidate struct {
	normalizedAlias string
	entityID        string
	canonicalName   string
	score           float64
	editDistance    int // Raw (unsorted) distance, used only for tie-breaks
}

// betterCandidate reports whether a ranks strictly before b under the
// deterministic ordering: higher score, then shorter raw edit distance,
// then lexicographically smaller canonical name. Iteration order over the
// cache's hash structures never decides a tie.
func betterCandidate(a, b fuzzyCandidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.editDistance != b.editDistance {
		return a.editDistance < b.editDistance
	}
	return a.canonicalName < b.canonicalName
}

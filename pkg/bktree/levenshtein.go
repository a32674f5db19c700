package bktree

// This file provides the Levenshtein edit distance, the canonical integer
// metric for BK-trees over strings. It satisfies every DistanceFunc
// requirement: symmetric, non-negative, zero only for equal strings, and
// triangle-inequality compliant.

// Levenshtein returns the minimum number of single-rune insertions, deletions
// and substitutions needed to turn a into b. Comparison is rune-wise, so a
// multi-byte character counts as one edit.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two-row dynamic programming: prev is the row for ra[:i-1], curr the row
	// being filled for ra[:i].
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

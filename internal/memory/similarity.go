package memory

import (
	"math"
	"sort"
	"strings"
)

// queryTerms splits a query on whitespace after lower-casing it.
func queryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// termHits counts the terms that occur as substrings of content.
func termHits(terms []string, content string) int {
	lower := strings.ToLower(content)
	n := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}

// cosine returns dot(a,b)/(|a||b|), or 0 when either vector is zero or the
// sizes differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// sortHits sorts by score descending, keeping input order on ties.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

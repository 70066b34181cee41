// Package similarity provides pure string similarity primitives used by the
// deduplicator and the fuzzy matcher: word-padded trigram sets compatible with
// the pg_trgm convention, Jaro-Winkler distance, and a blended score
package similarity

import "strings"

// Trigrams returns the set of 3-grams of s.
// Each whitespace separated word is padded with two leading and one trailing
// space so word starts weigh more, matching the pg_trgm extraction rules.
// Input is expected to be a normalized match key (see core/textnorm)
func Trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		p := "  " + w + " "
		for i := 0; i+3 <= len(p); i++ {
			out[p[i:i+3]] = struct{}{}
		}
	}
	return out
}

// TrigramSimilarity is |common| / |union| over the trigram sets of a and b,
// the same quantity pg_trgm's similarity() reports. Returns 0 when either
// side has no trigrams
func TrigramSimilarity(a, b string) float64 {
	return TrigramSetSimilarity(Trigrams(a), Trigrams(b))
}

// TrigramSetSimilarity computes |common| / |union| over prebuilt sets
func TrigramSetSimilarity(ta, tb map[string]struct{}) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	common := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			common++
		}
	}
	union := len(ta) + len(tb) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// Containment is |query trigrams matched| / |query trigrams|.
// Unlike TrigramSimilarity it does not penalize long documents, which is what
// a short substring query needs to surface matches
func Containment(query, doc string) float64 {
	tq := Trigrams(query)
	if len(tq) == 0 {
		return 0
	}
	td := Trigrams(doc)
	matched := 0
	for g := range tq {
		if _, ok := td[g]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(tq))
}

// JaroWinkler returns the Jaro-Winkler similarity of a and b in [0,1].
// Standard prefix scale 0.1 capped at 4 shared leading bytes
func JaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}
	// common prefix up to 4
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
		if prefix == 4 {
			break
		}
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	window := max(la, lb)/2 - 1
	if window < 0 {
		window = 0
	}

	matchA := make([]bool, la)
	matchB := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		lo := max(0, i-window)
		hi := min(lb-1, i+window)
		for j := lo; j <= hi; j++ {
			if matchB[j] || a[i] != b[j] {
				continue
			}
			matchA[i] = true
			matchB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	// transpositions: compare matched characters in order
	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !matchA[i] {
			continue
		}
		for !matchB[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(la) + m/float64(lb) + (m-t)/m) / 3
}

// Score blends trigram and Jaro-Winkler similarity by taking the larger of
// the two: trigram similarity is robust to word reordering and extra tokens,
// Jaro-Winkler to single-character typos on short strings
func Score(a, b string) float64 {
	tg := TrigramSimilarity(a, b)
	jw := JaroWinkler(a, b)
	if jw > tg {
		return jw
	}
	return tg
}

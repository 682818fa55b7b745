package cache

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords are dropped from question fingerprints; they carry no
// signal about which data the question is after.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "would": {},
	"show": {}, "me": {}, "give": {}, "list": {}, "get": {}, "find": {},
	"what": {}, "which": {}, "who": {}, "how": {}, "many": {}, "much": {},
	"of": {}, "in": {}, "on": {}, "for": {}, "to": {}, "by": {}, "with": {},
	"and": {}, "or": {}, "all": {}, "please": {}, "i": {}, "my": {}, "our": {},
}

// Fingerprint normalizes a question for similarity lookups: case-fold,
// strip punctuation, drop stop words, sort tokens so phrasing order
// does not matter.
func Fingerprint(question string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if _, skip := stopWords[tok]; !skip {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Similarity returns a Ratcliff/Obershelp ratio in [0, 1] between two
// fingerprints: twice the total matching characters over the combined
// length. Fingerprints are short, so the quadratic matching cost is
// acceptable.
func Similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(matchTotal(a, b)) / float64(len(a)+len(b))
}

// matchTotal sums matching block lengths: the longest common substring,
// then recursively the regions to its left and right.
func matchTotal(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchTotal(a[:ai], b[:bi])
	total += matchTotal(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// lengths[j] is the common suffix length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > size {
					size = lengths[j]
					ai = i - size
					bi = j - size
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return ai, bi, size
}

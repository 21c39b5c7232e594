package wake

import (
	"strings"
	"unicode"
)

// Matcher decides whether a transcript contains the wake phrase. It is
// immutable; the monitor swaps in a new one on phrase change.
type Matcher struct {
	phrase   string
	variants []string
	maxDist  int
}

// NewMatcher builds a matcher for phrase plus its known misheard
// spellings. The fuzzy budget scales with phrase length.
func NewMatcher(phrase string, variants []string) *Matcher {
	norm := normalize(phrase)
	m := &Matcher{
		phrase:  norm,
		maxDist: len(norm) / 4,
	}
	if m.maxDist < 1 {
		m.maxDist = 1
	}
	for _, v := range variants {
		if nv := normalize(v); nv != "" {
			m.variants = append(m.variants, nv)
		}
	}
	return m
}

// Match reports whether text is the wake phrase, one of its variants,
// or within the fuzzy edit budget of the phrase.
func (m *Matcher) Match(text string) bool {
	text = normalize(text)
	if text == "" || m.phrase == "" {
		return false
	}

	candidates := append([]string{m.phrase}, m.variants...)
	for _, c := range candidates {
		if text == c || strings.HasPrefix(text, c+" ") {
			return true
		}
	}
	return levenshtein(text, m.phrase) <= m.maxDist
}

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var cleaned strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(cleaned.String()), " ")
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min(del, min(ins, sub))
		}
		prev = curr
	}

	return prev[lb]
}

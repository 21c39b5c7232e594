package stt

import (
	"strings"
	"unicode"
)

// FilterHallucination cleans recognizer output that is an artifact of
// silence or padding rather than speech: whitespace-only and
// punctuation-only results become empty, and a transcript whose second
// half repeats its first half is collapsed to the first half.
func FilterHallucination(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	hasContent := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return ""
	}

	words := strings.Fields(text)
	if n := len(words); n >= 4 && n%2 == 0 {
		half := n / 2
		if sameWords(words[:half], words[half:]) {
			return strings.Join(words[:half], " ")
		}
	}
	return text
}

func sameWords(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(trimPunct(a[i]), trimPunct(b[i])) {
			return false
		}
	}
	return true
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

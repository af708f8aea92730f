// Package contextbuilder assembles the prompt context for one query:
// recalled memories, a rolling history summary, the last turns verbatim
// and retrieval results, each under its own token sub-budget.
package contextbuilder

import (
	"strings"
	"unicode/utf8"
)

// CharsPerToken is the conservative char-to-token ratio for CJK-mixed
// text. It is fixed within a release; changing it shifts every budget.
const CharsPerToken = 3

// EstimateTokens counts characters, not bytes, then divides by the ratio.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

var sentenceBoundaries = []string{"。", "！", "？", ".", "!", "?", "；", ";", "\n"}

// TruncateToTokens cuts s down to at most maxTokens, preferring the last
// sentence boundary inside the window and falling back to a plain
// character cut. Never splits a rune.
func TruncateToTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(s)
	maxChars := maxTokens * CharsPerToken
	if len(runes) <= maxChars {
		return s
	}

	window := string(runes[:maxChars])
	best := -1
	for _, b := range sentenceBoundaries {
		if i := strings.LastIndex(window, b); i > best {
			best = i + len(b) - 1
		}
	}
	// A boundary in the first fifth truncates too aggressively; prefer
	// the plain cut then.
	if best > len(window)/5 {
		return window[:best+1]
	}
	return window
}

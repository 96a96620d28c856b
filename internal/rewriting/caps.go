package rewriting

import (
	"strings"
	"unicode/utf8"
)

// Tiered caps keep rewritten bullets in the same visual band as their
// originals, so a one-line bullet does not come back as three lines.
const (
	capShort  = 100
	capMedium = 200
	capLong   = 300

	shortSourceMax  = 110
	mediumSourceMax = 210
)

// TieredCharCap picks a character cap from the original bullet's length.
func TieredCharCap(original string) int {
	switch n := utf8.RuneCountInString(original); {
	case n <= shortSourceMax:
		return capShort
	case n <= mediumSourceMax:
		return capMedium
	default:
		return capLong
	}
}

// truncate hard-cuts a bullet to the cap, preferring a word boundary when
// one is close enough to keep most of the text.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > limit*3/4 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:")
}

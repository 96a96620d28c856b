package extraction

import (
	"regexp"
	"strings"
)

// numberedPrefixRe matches list prefixes like "1. " or "2) ".
var numberedPrefixRe = regexp.MustCompile(`^\d+[.)]\s+`)

// ExtractTextBullets collects bullet lines from plain text or markdown.
// A line is a bullet when it starts with a bullet glyph or a numbered list
// prefix; other lines (headers, prose) are ignored.
func ExtractTextBullets(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if cleaned, hadGlyph := stripGlyph(line); hadGlyph && cleaned != "" {
			bullets = append(bullets, cleaned)
			continue
		}
		if loc := numberedPrefixRe.FindStringIndex(line); loc != nil {
			cleaned := strings.TrimSpace(line[loc[1]:])
			if cleaned != "" {
				bullets = append(bullets, cleaned)
			}
		}
	}
	return bullets
}

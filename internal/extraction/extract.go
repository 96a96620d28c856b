// Package extraction reads uploaded documents, yields the ordered list of
// resume bullet strings found in them, and writes rewritten bullets back
// into .docx documents.
package extraction

import (
	"fmt"
	"path/filepath"
	"strings"
)

// bulletGlyphs are the leading characters that mark a bullet line.
var bulletGlyphs = map[rune]bool{
	'•': true, '·': true, '-': true, '–': true, '—': true,
	'◦': true, '●': true, '*': true, '○': true, '▪': true,
}

// ExtractBullets extracts bullet strings from an uploaded document, picking a
// parser from the filename extension and declared content type. Document
// order is preserved. Returns NoBulletsFoundError when nothing recognizable
// is present.
func ExtractBullets(data []byte, filename, contentType string) ([]string, error) {
	var (
		bullets []string
		err     error
	)

	switch {
	case isDocx(filename, contentType):
		bullets, err = ExtractDocxBullets(data)
	case isHTML(filename, contentType):
		bullets, err = ExtractHTMLBullets(data)
	default:
		bullets = ExtractTextBullets(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	if len(bullets) == 0 {
		return nil, &NoBulletsFoundError{Source: filename}
	}
	return bullets, nil
}

func isDocx(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".docx") {
		return true
	}
	return strings.Contains(contentType, "officedocument.wordprocessingml")
}

func isHTML(filename, contentType string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".html" || ext == ".htm" {
		return true
	}
	return strings.Contains(contentType, "text/html")
}

// stripGlyph removes a leading bullet glyph and surrounding whitespace.
// Returns the cleaned text and whether a glyph was present.
func stripGlyph(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	runes := []rune(text)
	if bulletGlyphs[runes[0]] {
		return strings.TrimSpace(string(runes[1:])), true
	}
	return text, false
}

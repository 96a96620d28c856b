package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTMLBullets collects list items from an HTML document.
// Exported resumes and some online builders ship bullets as <li> elements.
func ExtractHTMLBullets(data []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var bullets []string
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		text, _ = stripGlyph(text)
		if text != "" {
			bullets = append(bullets, text)
		}
	})
	return bullets, nil
}

package extraction

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextBullets(t *testing.T) {
	text := `Experience

• Led a team of 5 engineers
- Shipped the billing service
1. Cut costs by 30%
2) Migrated to Kubernetes

Some prose that is not a bullet.
* Starred bullet`

	bullets := ExtractTextBullets(text)
	assert.Equal(t, []string{
		"Led a team of 5 engineers",
		"Shipped the billing service",
		"Cut costs by 30%",
		"Migrated to Kubernetes",
		"Starred bullet",
	}, bullets)
}

func TestExtractTextBulletsEmpty(t *testing.T) {
	assert.Empty(t, ExtractTextBullets("No lists here.\nJust prose."))
	assert.Empty(t, ExtractTextBullets(""))
}

func TestExtractHTMLBullets(t *testing.T) {
	html := `<html><body>
		<h2>Experience</h2>
		<ul>
			<li>Built a REST API</li>
			<li>  Reduced   latency
			by 40%  </li>
		</ul>
		<p>Not a bullet.</p>
		<ol><li>• Glyph inside list item</li></ol>
	</body></html>`

	bullets, err := ExtractHTMLBullets([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Built a REST API",
		"Reduced latency by 40%",
		"Glyph inside list item",
	}, bullets)
}

// buildDocx assembles a minimal .docx archive around the given
// document.xml body.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDocxBullets(t *testing.T) {
	docx := buildDocx(t, `
		<w:p><w:r><w:t>Plain heading paragraph</w:t></w:r></w:p>
		<w:p>
			<w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr>
			<w:r><w:t>Numbered list bullet</w:t></w:r>
		</w:p>
		<w:p><w:r><w:t>• Glyph bullet from a converted PDF</w:t></w:r></w:p>
		<w:p>
			<w:pPr><w:numPr><w:numId w:val="2"/></w:numPr></w:pPr>
			<w:r><w:t>Split </w:t></w:r><w:r><w:t>across runs</w:t></w:r>
		</w:p>`)

	bullets, err := ExtractDocxBullets(docx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Numbered list bullet",
		"Glyph bullet from a converted PDF",
		"Split across runs",
	}, bullets)
}

func TestExtractDocxBulletsRejectsGarbage(t *testing.T) {
	_, err := ExtractDocxBullets([]byte("not a zip archive"))
	assert.Error(t, err)
}

func TestExtractBulletsDispatch(t *testing.T) {
	bullets, err := ExtractBullets([]byte("- from text"), "resume.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, []string{"from text"}, bullets)

	bullets, err = ExtractBullets([]byte("<ul><li>from html</li></ul>"), "resume.html", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"from html"}, bullets)

	docx := buildDocx(t, `<w:p><w:pPr><w:numPr><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>from docx</w:t></w:r></w:p>`)
	bullets, err = ExtractBullets(docx, "resume.docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.NoError(t, err)
	assert.Equal(t, []string{"from docx"}, bullets)
}

func TestExtractBulletsNoneFound(t *testing.T) {
	_, err := ExtractBullets([]byte("plain prose"), "resume.txt", "text/plain")

	var notFound *NoBulletsFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "resume.txt", notFound.Source)
}

func TestStripGlyph(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		hadGlyph bool
	}{
		{"• bullet", "bullet", true},
		{"- dashed", "dashed", true},
		{"– en dash", "en dash", true},
		{"plain", "plain", false},
		{"  • padded  ", "padded", true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, hadGlyph := stripGlyph(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.hadGlyph, hadGlyph, tt.in)
	}
}

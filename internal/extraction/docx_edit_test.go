package extraction

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceDocxBullets(t *testing.T) {
	docx := buildDocx(t, `
		<w:p><w:r><w:t>Experience heading</w:t></w:r></w:p>
		<w:p>
			<w:pPr><w:numPr><w:numId w:val="1"/></w:numPr></w:pPr>
			<w:r><w:rPr><w:b/></w:rPr><w:t>Old numbered </w:t></w:r><w:r><w:t>bullet</w:t></w:r>
		</w:p>
		<w:p><w:r><w:t>• Old glyph bullet</w:t></w:r></w:p>
		<w:p>
			<w:pPr><w:numPr><w:numId w:val="1"/></w:numPr></w:pPr>
			<w:r><w:t>Untouched bullet</w:t></w:r>
		</w:p>`)

	edited, err := ReplaceDocxBullets(docx, map[string]string{
		"Old numbered bullet": "New numbered bullet",
		"Old glyph bullet":    "New glyph bullet",
	})
	require.NoError(t, err)

	bullets, err := ExtractDocxBullets(edited)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"New numbered bullet",
		"New glyph bullet",
		"Untouched bullet",
	}, bullets)

	// Formatting markup inside the edited paragraph survives, and the
	// heading paragraph is untouched.
	doc := readDocumentXML(t, edited)
	assert.Contains(t, doc, "<w:rPr><w:b/></w:rPr>")
	assert.Contains(t, doc, "<w:t>Experience heading</w:t>")
	assert.Contains(t, doc, "• New glyph bullet", "glyph marker is kept")
}

func TestReplaceDocxBulletsEscapesMarkup(t *testing.T) {
	docx := buildDocx(t, `
		<w:p>
			<w:pPr><w:numPr><w:numId w:val="1"/></w:numPr></w:pPr>
			<w:r><w:t>Plain bullet</w:t></w:r>
		</w:p>`)

	edited, err := ReplaceDocxBullets(docx, map[string]string{
		"Plain bullet": `Shipped <fast> & "safe" pipelines`,
	})
	require.NoError(t, err)

	bullets, err := ExtractDocxBullets(edited)
	require.NoError(t, err)
	require.Len(t, bullets, 1)
	assert.Equal(t, `Shipped <fast> & "safe" pipelines`, bullets[0])
}

func TestReplaceDocxBulletsPreservesOtherParts(t *testing.T) {
	styles := []byte(`<w:styles/>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:pPr><w:numPr><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>Old</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	f, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = f.Write(styles)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	edited, err := ReplaceDocxBullets(buf.Bytes(), map[string]string{"Old": "New"})
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(edited), int64(len(edited)))
	require.NoError(t, err)
	var sawStyles bool
	for _, part := range reader.File {
		if part.Name != "word/styles.xml" {
			continue
		}
		sawStyles = true
		rc, err := part.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, styles, content)
	}
	assert.True(t, sawStyles, "unedited archive parts are carried over")
}

func TestReplaceDocxBulletsRejectsGarbage(t *testing.T) {
	_, err := ReplaceDocxBullets([]byte("not a zip archive"), map[string]string{"a": "b"})
	assert.Error(t, err)
}

func readDocumentXML(t *testing.T, docx []byte) string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		return string(content)
	}
	t.Fatal("no word/document.xml in archive")
	return ""
}

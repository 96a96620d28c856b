package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ReplaceDocxBullets returns a copy of the .docx with each bullet paragraph
// whose extracted text matches a replacements key rewritten to the mapped
// text. Formatting is preserved: the new text lands in the paragraph's first
// text run, the remaining runs are emptied, and every other part of the
// archive is copied through unchanged. Paragraphs without a matching key are
// left alone.
func ReplaceDocxBullets(data []byte, replacements map[string]string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid docx archive: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}

		if f.Name == "word/document.xml" {
			content = replaceInDocumentXML(content, replacements)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return out.Bytes(), nil
}

// replaceInDocumentXML walks the raw document bytes paragraph by paragraph
// so everything outside edited paragraphs survives byte for byte.
func replaceInDocumentXML(doc []byte, replacements map[string]string) []byte {
	var out bytes.Buffer
	rest := doc
	for {
		start := indexElement(rest, "<w:p")
		if start < 0 {
			out.Write(rest)
			break
		}
		endRel := bytes.Index(rest[start:], []byte("</w:p>"))
		if endRel < 0 {
			out.Write(rest)
			break
		}
		end := start + endRel + len("</w:p>")

		out.Write(rest[:start])
		out.Write(editParagraph(rest[start:end], replacements))
		rest = rest[end:]
	}
	return out.Bytes()
}

// indexElement finds the next opening tag with the given prefix, rejecting
// longer names that share it (w:p vs w:pPr, w:t vs w:tab).
func indexElement(b []byte, tag string) int {
	off := 0
	for {
		i := bytes.Index(b[off:], []byte(tag))
		if i < 0 {
			return -1
		}
		pos := off + i
		next := pos + len(tag)
		if next >= len(b) {
			return -1
		}
		switch b[next] {
		case '>', ' ', '\t', '\r', '\n':
			return pos
		}
		off = next
	}
}

// editParagraph rewrites one paragraph when it is a bullet with a matching
// replacement; otherwise the bytes pass through untouched.
func editParagraph(para []byte, replacements map[string]string) []byte {
	text, numbered := paragraphContent(para)
	cleaned, hadGlyph := stripGlyph(text)
	if cleaned == "" || !(numbered || hadGlyph) {
		return para
	}
	newText, ok := replacements[cleaned]
	if !ok || newText == cleaned {
		return para
	}
	if hadGlyph {
		// Glyph bullets carry the marker in the text itself; keep it.
		runes := []rune(strings.TrimSpace(text))
		newText = string(runes[0]) + " " + newText
	}
	return setParagraphText(para, newText)
}

// paragraphContent extracts one paragraph's text and numbering state.
func paragraphContent(para []byte) (string, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(para))

	var (
		text     strings.Builder
		numbered bool
		inText   bool
	)
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "numId":
				numbered = true
			case "t":
				inText = true
			case "tab", "br":
				text.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				text.Write(el)
			}
		case xml.EndElement:
			if el.Name.Local == "t" {
				inText = false
			}
		}
	}
	return text.String(), numbered
}

// setParagraphText puts newText into the first text run and empties the
// rest, keeping every run's formatting markup intact.
func setParagraphText(para []byte, newText string) []byte {
	var out bytes.Buffer
	rest := para
	wrote := false
	for {
		i := indexElement(rest, "<w:t")
		if i < 0 {
			out.Write(rest)
			break
		}
		gt := bytes.IndexByte(rest[i:], '>')
		if gt < 0 {
			out.Write(rest)
			break
		}
		tagEnd := i + gt + 1
		if rest[tagEnd-2] == '/' {
			// Self-closing run, nothing to empty.
			out.Write(rest[:tagEnd])
			rest = rest[tagEnd:]
			continue
		}
		closeRel := bytes.Index(rest[tagEnd:], []byte("</w:t>"))
		if closeRel < 0 {
			out.Write(rest)
			break
		}

		out.Write(rest[:tagEnd])
		if !wrote {
			_ = xml.EscapeText(&out, []byte(newText))
			wrote = true
		}
		rest = rest[tagEnd+closeRel:]
	}
	if !wrote {
		return para
	}
	return out.Bytes()
}

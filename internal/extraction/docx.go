package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ExtractDocxBullets collects bullet paragraphs from a .docx file.
// A paragraph counts as a bullet when it belongs to a Word numbering list
// (w:numPr with a numId) or when its text starts with a bullet glyph, which
// covers documents converted from PDF. Paragraphs inside tables are included
// because the token walk visits every w:p regardless of nesting.
func ExtractDocxBullets(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid docx archive: %w", err)
	}

	var docXML []byte
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open document.xml: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("docx archive has no word/document.xml")
	}

	return parseDocumentXML(docXML)
}

// parseDocumentXML walks the WordprocessingML token stream and returns the
// bullet texts in document order.
func parseDocumentXML(docXML []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var (
		bullets  []string
		inPara   bool
		inText   bool
		numbered bool
		text     strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				inPara = true
				numbered = false
				text.Reset()
			case "numId":
				if inPara {
					numbered = true
				}
			case "t":
				if inPara {
					inText = true
				}
			case "tab", "br":
				if inPara {
					text.WriteString(" ")
				}
			}
		case xml.CharData:
			if inText {
				text.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if inPara {
					if b, ok := docxBullet(text.String(), numbered); ok {
						bullets = append(bullets, b)
					}
				}
				inPara = false
			}
		}
	}

	return bullets, nil
}

// docxBullet decides whether a paragraph's text is a bullet and cleans it.
func docxBullet(text string, numbered bool) (string, bool) {
	cleaned, hadGlyph := stripGlyph(text)
	if cleaned == "" {
		return "", false
	}
	if numbered || hadGlyph {
		return cleaned, true
	}
	return "", false
}

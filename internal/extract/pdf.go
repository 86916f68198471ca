// Package extract implements the Extractor contract: a pure function
// bytes -> text. tinymem only ever calls it opportunistically for
// PDF-shaped artifacts; a failed or empty extraction leaves
// extracted_text empty rather than guessing.
package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor implements internal/store.Extractor using ledongthuc/pdf,
// a pure-Go PDF text reader (see DESIGN.md for why this library was
// chosen over alternatives).
type PDFExtractor struct{}

func New() *PDFExtractor { return &PDFExtractor{} }

// Extract returns the plain text of a PDF's pages. Scanned PDFs with no
// embedded text layer will yield an empty string, which is the intended
// behavior: tinymem does not attempt OCR or guess content.
func (PDFExtractor) Extract(data []byte, mimeHint string) (string, error) {
	if mimeHint != "application/pdf" {
		return "", nil
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

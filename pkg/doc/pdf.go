package doc

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls per-page text until the character budget is reached.
// Individual unreadable pages are skipped; a document where every page
// fails still returns cleanly with whatever was gathered (possibly
// nothing, which the caller treats as extraction-empty or OCR-worthy).
func extractPDF(data []byte, limits Limits) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &StructureError{Format: "pdf", Reason: "unreadable document: " + err.Error()}
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
		if len([]rune(sb.String())) >= limits.MaxChars {
			break
		}
	}
	return sb.String(), nil
}

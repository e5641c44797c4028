package doc

import (
	"context"
	"strings"

	"github.com/let5sne/mimiclaw/pkg/vision"
)

// ocrFallback runs the vision OCR chain over a container's embedded images
// and decides whether its combined text should replace the primary
// extraction. Returns "" to keep the primary result.
//
// The replacement rule is deliberately literal: the OCR text wins only when
// its normalized length is at least the primary's, so the fallback can never
// make a result worse. Every error on this path is swallowed and logged —
// the caller already has a (short but valid) primary result to return.
func (e *Engine) ocrFallback(ctx context.Context, data []byte, format, primary string) string {
	chunks := harvestImages(data, format, e.limits.OCRMaxPages)
	if len(chunks) == 0 {
		return ""
	}

	var parts []string
	for _, chunk := range chunks {
		res, err := e.vision.Describe(ctx, chunk.Data, chunk.Format, vision.OCRPrompt)
		if err != nil {
			e.log.Warn("ocr fallback describe failed", "label", chunk.Label, "error", err)
			continue
		}
		text := strings.TrimSpace(res.OCRText)
		if text == "" {
			text = strings.TrimSpace(res.Caption)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}

	combined := normalizeText(strings.Join(parts, "\n"))
	if len([]rune(combined)) >= len([]rune(normalizeText(primary))) && combined != "" {
		return combined
	}
	return ""
}

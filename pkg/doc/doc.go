// Package doc extracts readable text from uploaded documents: zipped-XML
// office containers, legacy binary spreadsheets, PDF, plain text and images.
// Parsers work directly on the container internals rather than through an
// office-suite library, and a vision OCR pass backs up extractors that come
// up short. Extraction is best-effort: a damaged sheet or unreadable page
// degrades the result instead of failing the request.
package doc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/let5sne/mimiclaw/pkg/vision"
)

// Upload is one ephemeral document upload: raw bytes plus whatever hints
// the client supplied.
type Upload struct {
	Data   []byte
	Name   string
	Mime   string
	Path   string
	Format string
}

// Result is a successful extraction. Text is never empty; an extraction
// that produces nothing reports an error instead.
type Result struct {
	Text       string
	Summary    string
	Excerpt    string
	Format     string
	Parser     string
	TextLen    int
	Truncated  bool
	FromVision bool
}

// Limits are the response-size knobs of the pipeline. The values are
// size-control constants, not semantic invariants, so they stay adjustable.
type Limits struct {
	MaxChars    int `yaml:"max_chars"`     // whole-document output cap (runes)
	MaxRows     int `yaml:"max_rows"`      // data rows read per sheet
	SheetBudget int `yaml:"sheet_budget"`  // rendered runes per sheet
	OCRMinChars int `yaml:"ocr_min_chars"` // primary text below this triggers OCR
	OCRMaxPages int `yaml:"ocr_max_pages"` // pages/slides scanned for images
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxChars:    12000,
		MaxRows:     100,
		SheetBudget: 4000,
		OCRMinChars: 80,
		OCRMaxPages: 4,
	}
}

// ErrEmptyUpload is reported for a zero-length request body.
var ErrEmptyUpload = errors.New("doc: empty upload")

// ErrNoText is reported when an extractor ran cleanly but found nothing.
var ErrNoText = errors.New("doc: no extractable text")

// UnsupportedError is reported for binary blobs no extractor handles.
type UnsupportedError struct {
	Format string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("doc: unsupported binary format %q", e.Format)
}

// StructureError means a container was recognized but its expected internal
// parts are missing (no document body, no worksheets, no slides). It is a
// different failure from "extracted but too short", which the OCR fallback
// handles.
type StructureError struct {
	Format string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("doc: %s: %s", e.Format, e.Reason)
}

// Describer is the slice of the vision client the pipeline needs. A nil
// *vision.Client satisfies it and reports itself disabled.
type Describer interface {
	Describe(ctx context.Context, image []byte, format, prompt string) (vision.Result, error)
	Enabled() bool
	Model() string
}

// Engine runs the extraction pipeline. Stateless across requests; safe for
// concurrent use.
type Engine struct {
	limits Limits
	vision Describer
	log    *slog.Logger
}

// NewEngine builds an Engine. vis may be nil (or a disabled client); the OCR
// fallback and image uploads are then unavailable.
func NewEngine(limits Limits, vis Describer, log *slog.Logger) *Engine {
	if limits.MaxChars <= 0 {
		limits = DefaultLimits()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{limits: limits, vision: vis, log: log.With("component", "doc")}
}

// visionEnabled tolerates both a nil interface and a typed nil client.
func (e *Engine) visionEnabled() bool {
	return e.vision != nil && e.vision.Enabled()
}

// textFormats decode as text with the multi-codepage chain.
var textFormats = map[string]bool{
	"txt": true, "text": true, "json": true, "csv": true,
	"md": true, "markdown": true, "html": true, "htm": true, "log": true,
}

// imageFormats route straight to the vision model.
var imageFormats = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "webp": true, "gif": true, "bmp": true,
}

// ResolveFormat picks the format tag for an upload. Hints win in a fixed
// order: declared format, then file extension from name or path, then mime
// keywords, then "bin".
func ResolveFormat(up Upload) string {
	if f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(up.Format), ".")); f != "" {
		return f
	}
	for _, p := range []string{up.Name, up.Path} {
		if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(p), ".")); ext != "" {
			return ext
		}
	}
	if f := formatFromMime(up.Mime); f != "" {
		return f
	}
	return "bin"
}

// formatFromMime maps a mime type to a format tag by keyword.
func formatFromMime(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case m == "":
		return ""
	case strings.Contains(m, "pdf"):
		return "pdf"
	case strings.Contains(m, "wordprocessingml"), strings.Contains(m, "msword"):
		return "docx"
	case strings.Contains(m, "presentationml"), strings.Contains(m, "ms-powerpoint"):
		return "pptx"
	case strings.Contains(m, "spreadsheetml"):
		return "xlsx"
	case strings.Contains(m, "ms-excel"):
		return "xls"
	case strings.Contains(m, "png"):
		return "png"
	case strings.Contains(m, "jpeg"), strings.Contains(m, "jpg"):
		return "jpg"
	case strings.Contains(m, "webp"):
		return "webp"
	case strings.Contains(m, "gif"):
		return "gif"
	case strings.Contains(m, "json"):
		return "json"
	case strings.Contains(m, "csv"):
		return "csv"
	case strings.Contains(m, "markdown"):
		return "md"
	case strings.Contains(m, "html"):
		return "html"
	case strings.HasPrefix(m, "text/"):
		return "txt"
	}
	return ""
}

// Extract runs the full pipeline for one upload.
func (e *Engine) Extract(ctx context.Context, up Upload) (Result, error) {
	if len(up.Data) == 0 {
		return Result{}, ErrEmptyUpload
	}

	format := ResolveFormat(up)
	log := e.log.With("format", format, "name", up.Name, "size", len(up.Data))

	var (
		text       string
		parser     string
		fromVision bool
		err        error
	)

	switch {
	case imageFormats[format]:
		return e.describeImage(ctx, up.Data, format)

	case textFormats[format]:
		text, parser = DecodeText(up.Data), "text"

	case format == "pdf":
		text, err = extractPDF(up.Data, e.limits)
		parser = "pdf"

	case format == "docx":
		text, err = extractDocx(up.Data)
		parser = "docx"

	case format == "pptx":
		text, err = extractPptx(up.Data, e.limits)
		parser = "pptx"

	case format == "xlsx", format == "xlsm":
		text, err = extractXlsx(up.Data, e.limits)
		parser = "xlsx"

	case format == "xls":
		text, err = extractXls(up.Data, e.limits)
		parser = "xls"

	default:
		if looksBinary(up.Data) {
			return Result{}, &UnsupportedError{Format: format}
		}
		text, parser = DecodeText(up.Data), "text"
	}
	if err != nil {
		return Result{}, err
	}

	text = normalizeText(text)

	// Low-confidence extractions from page-oriented containers get one OCR
	// pass over their embedded images; the replacement must not lose text.
	if (format == "pdf" || format == "pptx") && len([]rune(text)) < e.limits.OCRMinChars && e.visionEnabled() {
		if ocr := e.ocrFallback(ctx, up.Data, format, text); ocr != "" {
			log.Info("ocr fallback replaced primary extraction",
				"primary_len", len([]rune(text)), "ocr_len", len([]rune(ocr)))
			text, parser, fromVision = ocr, parser+"+ocr", true
		}
	}

	if text == "" {
		return Result{}, ErrNoText
	}

	return e.finish(text, format, parser, fromVision), nil
}

// describeImage handles uploads that are themselves images: the document is
// whatever the vision model sees.
func (e *Engine) describeImage(ctx context.Context, image []byte, format string) (Result, error) {
	if !e.visionEnabled() {
		return Result{}, vision.ErrDisabled
	}
	res, err := e.vision.Describe(ctx, image, format, "")
	if err != nil {
		return Result{}, err
	}
	return e.finish(normalizeText(combineVision(res)), format, "vision", true), nil
}

// finish applies the output cap and derives summary/excerpt.
func (e *Engine) finish(text, format, parser string, fromVision bool) Result {
	runes := []rune(text)
	truncated := false
	if len(runes) > e.limits.MaxChars {
		runes = runes[:e.limits.MaxChars]
		text = string(runes)
		truncated = true
	}
	return Result{
		Text:       text,
		Summary:    summarize(text),
		Excerpt:    excerpt(text, 200),
		Format:     format,
		Parser:     parser,
		TextLen:    len(runes),
		Truncated:  truncated,
		FromVision: fromVision,
	}
}

// combineVision flattens a vision result into document text.
func combineVision(r vision.Result) string {
	var parts []string
	if r.Caption != "" {
		parts = append(parts, r.Caption)
	}
	if r.OCRText != "" {
		parts = append(parts, r.OCRText)
	}
	if len(r.Objects) > 0 {
		parts = append(parts, strings.Join(r.Objects, "、"))
	}
	return strings.Join(parts, "\n")
}

// normalizeText canonicalizes line endings and trims the blob.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// summarize returns the first three non-empty lines joined together.
func summarize(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// excerpt returns the first max runes of text.
func excerpt(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}

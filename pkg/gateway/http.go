package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/let5sne/mimiclaw/pkg/doc"
	"github.com/let5sne/mimiclaw/pkg/metrics"
	"github.com/let5sne/mimiclaw/pkg/vision"
)

// maxUploadBytes caps side-channel request bodies.
const maxUploadBytes = 64 << 20

func (g *Gateway) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stt", g.handleSTT)
	mux.HandleFunc("POST /image_upload", g.handleImageUpload)
	mux.HandleFunc("POST /doc_upload", g.handleDocUpload)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleSTT transcribes one audio clip. The body is raw capture-format
// PCM unless X-Audio-Format declares a compressed container.
func (g *Gateway) handleSTT(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	format := strings.ToLower(r.Header.Get("X-Audio-Format"))
	encoded := format != "" && format != "pcm"
	if !encoded && len(body) < 320 {
		writeError(w, http.StatusBadRequest, "audio too short")
		return
	}
	if encoded && len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	start := time.Now()
	var res = struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}{}
	var terr error
	if encoded {
		out, err := g.pipeline.TranscribeEncoded(r.Context(), body, format)
		res.Text, res.Language, terr = out.Text, out.Language, err
	} else {
		out, err := g.pipeline.Transcribe(r.Context(), body)
		res.Text, res.Language, terr = out.Text, out.Language, err
	}
	if terr != nil {
		g.met.RecordTranscription(metrics.OutcomeError, time.Since(start).Seconds())
		g.log.Error("transcription failed", "error", terr)
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}
	g.met.RecordTranscription(metrics.OutcomeOK, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, res)
}

// handleImageUpload describes one raster image with the vision backend.
func (g *Gateway) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	if !g.vis.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "vision disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	format := imageFormat(r)
	result, err := g.vis.Describe(r.Context(), body, format, "")
	if err != nil {
		g.met.RecordVisionCall(metrics.OutcomeError)
		g.log.Error("image describe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "image understanding failed")
		return
	}
	g.met.RecordVisionCall(metrics.OutcomeOK)

	writeJSON(w, http.StatusOK, map[string]any{
		"text":     combineDescription(result),
		"caption":  result.Caption,
		"ocr_text": result.OCRText,
		"objects":  result.Objects,
		"model":    g.vis.Model(),
		"format":   format,
	})
}

// imageFormat derives the image container from headers, defaulting to jpeg.
func imageFormat(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if rest, ok := strings.CutPrefix(ct, "image/"); ok {
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			rest = rest[:i]
		}
		return strings.TrimSpace(rest)
	}
	if name := r.Header.Get("X-Image-Name"); name != "" {
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			return strings.ToLower(name[i+1:])
		}
	}
	return "jpeg"
}

func combineDescription(res vision.Result) string {
	var parts []string
	if res.Caption != "" {
		parts = append(parts, res.Caption)
	}
	if res.OCRText != "" {
		parts = append(parts, res.OCRText)
	}
	if len(res.Objects) > 0 {
		parts = append(parts, strings.Join(res.Objects, "、"))
	}
	return strings.Join(parts, "\n")
}

// handleDocUpload extracts text from one uploaded document. Metadata
// arrives in X-Doc-* headers; the body is the raw file.
func (g *Gateway) handleDocUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	up := doc.Upload{
		Data:   body,
		Name:   r.Header.Get("X-Doc-Name"),
		Mime:   r.Header.Get("X-Doc-Mime"),
		Path:   r.Header.Get("X-Doc-Path"),
		Format: r.Header.Get("X-Doc-Format"),
	}

	res, err := g.docs.Extract(r.Context(), up)
	if err != nil {
		format := doc.ResolveFormat(up)
		g.met.RecordDocParse(format, metrics.OutcomeError, len(body))
		g.log.Warn("document extraction failed", "name", up.Name, "format", format, "error", err)

		var ue *doc.UnsupportedError
		var se *doc.StructureError
		switch {
		case errors.Is(err, doc.ErrEmptyUpload):
			writeError(w, http.StatusBadRequest, "empty body")
		case errors.Is(err, vision.ErrDisabled):
			writeError(w, http.StatusServiceUnavailable, "vision disabled")
		case errors.As(err, &ue):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.As(err, &se), errors.Is(err, doc.ErrNoText):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "extraction failed")
		}
		return
	}

	outcome := metrics.OutcomeOK
	if res.FromVision {
		outcome = metrics.OutcomeFallback
	}
	g.met.RecordDocParse(res.Format, outcome, len(body))

	writeJSON(w, http.StatusOK, map[string]any{
		"text":        res.Text,
		"summary":     res.Summary,
		"excerpt":     res.Excerpt,
		"doc_format":  res.Format,
		"parser":      res.Parser,
		"text_len":    res.TextLen,
		"truncated":   res.Truncated,
		"from_vision": res.FromVision,
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"vision_enabled": g.vis.Enabled(),
		"vision_model":   g.vis.Model(),
	})
}

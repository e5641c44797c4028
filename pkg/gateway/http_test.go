package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/let5sne/mimiclaw/pkg/config"
	"github.com/let5sne/mimiclaw/pkg/stt"
	"github.com/let5sne/mimiclaw/pkg/tts"
)

// fakeRecognizer is the speech backend for handler tests.
type fakeRecognizer struct {
	result stt.Result
	err    error
}

func (f *fakeRecognizer) Transcribe(context.Context, []byte, stt.Options) (stt.Result, error) {
	if f.err != nil {
		return stt.Result{}, f.err
	}
	return f.result, nil
}

// fakeSynth returns a fixed MP3 payload.
type fakeSynth struct {
	payload string
}

func (f *fakeSynth) Synthesize(context.Context, string, string, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

func newTestGateway(t *testing.T, rec stt.Recognizer) *Gateway {
	t.Helper()
	cfg := config.Default()
	g, err := New(cfg,
		WithRecognizer(rec),
		WithSynthesizer(&fakeSynth{payload: "pcm"}),
		WithTranscoder(tts.NewTranscoderCommand("/bin/cat")),
	)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func postBody(t *testing.T, h http.Handler, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad JSON response: %v (%s)", err, w.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	g.httpHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decodeJSON(t, w)
	if res["status"] != "ok" {
		t.Errorf("status field = %v", res["status"])
	}
	if res["vision_enabled"] != false {
		t.Errorf("vision_enabled = %v", res["vision_enabled"])
	}
}

func TestSTTHandler(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{result: stt.Result{Text: "你好", Language: "zh"}})
	h := g.httpHandler()

	w := postBody(t, h, "/stt", make([]byte, 640), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decodeJSON(t, w)
	if res["text"] != "你好" || res["language"] != "zh" {
		t.Errorf("response = %v", res)
	}
}

func TestSTTHandler_TooShort(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	w := postBody(t, g.httpHandler(), "/stt", make([]byte, 100), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSTTHandler_BackendFailure(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{err: io.ErrUnexpectedEOF})
	w := postBody(t, g.httpHandler(), "/stt", make([]byte, 640), nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestDocUploadHandler(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	body := []byte("第一行\n第二行\n第三行\n第四行")
	w := postBody(t, g.httpHandler(), "/doc_upload", body, map[string]string{
		"X-Doc-Name": "notes.txt",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decodeJSON(t, w)
	if res["doc_format"] != "txt" || res["parser"] != "text" {
		t.Errorf("format/parser = %v/%v", res["doc_format"], res["parser"])
	}
	if res["summary"] != "第一行\n第二行\n第三行" {
		t.Errorf("summary = %v", res["summary"])
	}
	if res["truncated"] != false || res["from_vision"] != false {
		t.Errorf("flags = %v", res)
	}
}

func TestDocUploadHandler_EmptyBody(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	w := postBody(t, g.httpHandler(), "/doc_upload", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestDocUploadHandler_UnsupportedBinary(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	data := append([]byte("MZ\x00\x01"), make([]byte, 64)...)
	w := postBody(t, g.httpHandler(), "/doc_upload", data, map[string]string{
		"X-Doc-Name": "tool.exe",
	})
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestImageUploadHandler_VisionDisabled(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	w := postBody(t, g.httpHandler(), "/image_upload", []byte{0xFF, 0xD8}, map[string]string{
		"Content-Type": "image/jpeg",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	g.httpHandler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestImageFormat(t *testing.T) {
	tests := []struct {
		ct, name, want string
	}{
		{"image/png", "", "png"},
		{"image/jpeg; charset=binary", "", "jpeg"},
		{"", "photo.WEBP", "webp"},
		{"", "", "jpeg"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/image_upload", nil)
		if tc.ct != "" {
			req.Header.Set("Content-Type", tc.ct)
		}
		if tc.name != "" {
			req.Header.Set("X-Image-Name", tc.name)
		}
		if got := imageFormat(req); got != tc.want {
			t.Errorf("imageFormat(ct=%q, name=%q) = %q, want %q", tc.ct, tc.name, got, tc.want)
		}
	}
}

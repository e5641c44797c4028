package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client is an HTTP Recognizer for a whisper-style inference server.
// The server loads the model (size and compute device are its own
// configuration); the gateway only ships WAV clips at it.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient builds a recognizer client for the given inference endpoint,
// e.g. "http://127.0.0.1:9090/inference".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe posts one WAV clip and the pass options as a multipart form.
func (c *Client) Transcribe(ctx context.Context, wav []byte, opts Options) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, wrapError(err, "build form")
	}
	if _, err := fw.Write(wav); err != nil {
		return Result{}, wrapError(err, "build form")
	}

	fields := map[string]string{
		"language":        opts.Language,
		"initial_prompt":  opts.Prompt,
		"beam_size":       strconv.Itoa(opts.BeamSize),
		"vad_filter":      strconv.FormatBool(opts.VADFilter),
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return Result{}, wrapError(err, "build form")
		}
	}
	if err := mw.Close(); err != nil {
		return Result{}, wrapError(err, "build form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Result{}, wrapError(err, "create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, wrapError(err, "send request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, wrapError(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("stt: backend status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var parsed struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, wrapError(err, "parse response")
	}
	if parsed.Error != "" {
		return Result{}, fmt.Errorf("stt: backend error: %s", parsed.Error)
	}
	return Result{Text: parsed.Text, Language: parsed.Language}, nil
}

// wrapError adds call-site context to an error.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stt: %s: %w", message, err)
}

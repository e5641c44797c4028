// Package vision is the gateway's client for an OpenAI-compatible vision
// model. It captions and OCRs images uploaded by the device and backs the
// document pipeline's low-confidence fallback.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// ErrDisabled is returned when the vision backend is not configured.
// Callers treat it differently from transport failures: it is a deployment
// condition, never retried.
var ErrDisabled = errors.New("vision: backend disabled or not configured")

// DefaultPrompt asks the model for the structured reply shape the parser
// expects. Kept in Chinese to match the deployment's document language.
const DefaultPrompt = `请分析这张图片，用 JSON 回复：{"caption":"一句话描述","ocr_text":"图中全部文字","objects":["物体1","物体2"]}。没有文字时 ocr_text 留空。`

// OCRPrompt is used by the document fallback pass, where extracting every
// character matters more than the description.
const OCRPrompt = `请逐字识别图中的所有文字，按原有顺序输出。用 JSON 回复：{"caption":"一句话描述","ocr_text":"识别出的全部文字","objects":[]}`

// Config is the vision backend configuration. Immutable after construction.
type Config struct {
	Enabled    bool          `yaml:"enabled"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
	Prompt     string        `yaml:"prompt"`
	Proxy      string        `yaml:"proxy"`
}

// Result is the parsed vision reply. All fields default to empty; a reply
// where all three are empty counts as an extraction failure.
type Result struct {
	Caption string   `json:"caption"`
	OCRText string   `json:"ocr_text"`
	Objects []string `json:"objects"`
}

// Empty reports whether the result carries no usable content.
func (r Result) Empty() bool {
	return r.Caption == "" && r.OCRText == "" && len(r.Objects) == 0
}

// TransportError wraps a backend HTTP failure with enough context to
// diagnose it from logs alone.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vision: backend request: %v", e.Err)
	}
	return fmt.Sprintf("vision: backend status %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the vision model through an Azure-style OpenAI endpoint.
type Client struct {
	cfg Config
	oai openai.Client
}

// NewClient builds a vision client, or nil when the backend is disabled.
// A nil *Client is safe to call; every method reports ErrDisabled.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Endpoint == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("vision: enabled but endpoint/api_key/model missing")
	}

	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("vision: parse proxy url: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	return &Client{cfg: cfg, oai: openai.NewClient(opts...)}, nil
}

// Enabled reports whether the client can serve requests.
func (c *Client) Enabled() bool { return c != nil }

// Model returns the configured model name, or "" when disabled.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.cfg.Model
}

// Describe sends one image to the vision model and parses its structured
// reply. format is the image format tag ("png", "jpg", …) used for the data
// URL; prompt overrides the configured prompt when non-empty.
func (c *Client) Describe(ctx context.Context, image []byte, format, prompt string) (Result, error) {
	if c == nil {
		return Result{}, ErrDisabled
	}
	if len(image) == 0 {
		return Result{}, errors.New("vision: empty image")
	}
	if prompt == "" {
		prompt = c.cfg.Prompt
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	dataURL := "data:" + mimeForFormat(format) + ";base64," +
		base64.StdEncoding.EncodeToString(image)

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Result{}, &TransportError{Status: apiErr.StatusCode, Body: apiErr.Message, Err: err}
		}
		return Result{}, &TransportError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("vision: empty response from backend")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Result{}, errors.New("vision: empty response from backend")
	}

	res := ParseReply(content)
	if res.Empty() {
		return Result{}, errors.New("vision: backend returned no usable content")
	}
	return res, nil
}

// mimeForFormat maps an image format tag to a data-URL media type.
// Unknown tags fall back to jpeg, which every backend accepts.
func mimeForFormat(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}

package vision

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseReply turns the model's free-form reply into a Result. Models wrap
// JSON in code fences, prepend commentary, or ignore the format request
// entirely, so parsing degrades in stages:
//
//  1. strip a surrounding code fence and parse the remainder as JSON;
//  2. locate the outermost {...} span and parse that, repairing
//     near-JSON (trailing commas, single quotes) along the way;
//  3. give up on structure and keep the whole raw text as the caption.
func ParseReply(raw string) Result {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	if res, ok := parseJSONResult(cleaned); ok {
		return res
	}

	if span := outermostObject(cleaned); span != "" {
		if res, ok := parseJSONResult(span); ok {
			return res
		}
	}

	return Result{Caption: strings.TrimSpace(raw)}
}

// parseJSONResult attempts a strict parse, then one jsonrepair-assisted
// retry. Objects may arrive as strings or numbers; anything non-string is
// dropped rather than guessed at.
func parseJSONResult(s string) (Result, bool) {
	var shape struct {
		Caption string `json:"caption"`
		OCRText string `json:"ocr_text"`
		Objects []any  `json:"objects"`
	}

	if err := json.Unmarshal([]byte(s), &shape); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(s)
		if rerr != nil {
			return Result{}, false
		}
		if err := json.Unmarshal([]byte(fixed), &shape); err != nil {
			return Result{}, false
		}
	}

	res := Result{
		Caption: strings.TrimSpace(shape.Caption),
		OCRText: strings.TrimSpace(shape.OCRText),
	}
	for _, o := range shape.Objects {
		if s, ok := o.(string); ok && strings.TrimSpace(s) != "" {
			res.Objects = append(res.Objects, strings.TrimSpace(s))
		}
	}
	if res.Empty() {
		return Result{}, false
	}
	return res, true
}

// stripCodeFence removes a leading/trailing markdown fence, including an
// optional language tag on the opening line.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// outermostObject returns the widest {...} span in s, or "".
func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

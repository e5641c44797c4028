// Package tts turns reply text into device-rate PCM frames. Synthesis is a
// black box producing compressed audio; this package owns text sanitization,
// the transcoding subprocess and the cancellable frame-streaming pipeline.
package tts

import (
	"context"
	"fmt"
	"io"
)

const (
	// DefaultVoice is used when the device does not name one.
	DefaultVoice = "zh-CN-XiaoxiaoNeural"

	// DefaultRate is the neutral speaking-rate modifier.
	DefaultRate = "+0%"

	// ackPhrase is spoken when a request's text sanitizes down to nothing,
	// so the device still hears a response instead of silence.
	ackPhrase = "好的"
)

// Synthesizer is the speech backend: text in, streaming MP3 out. The
// returned reader delivers audio incrementally; Close releases the
// underlying connection.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, rate string) (io.ReadCloser, error)
}

// Request describes one synthesis job. Zero-value Voice and Rate fall back
// to the defaults; Text is used as given (sanitize first).
type Request struct {
	Text  string
	Voice string
	Rate  string
}

// normalized fills in defaults.
func (r Request) normalized() Request {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Rate == "" {
		r.Rate = DefaultRate
	}
	return r
}

// wrapError adds call-site context to an error.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("tts: %s: %w", message, err)
}

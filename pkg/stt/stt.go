// Package stt turns device PCM into text. The heavy lifting happens in a
// speech-recognition backend reached over HTTP; this package owns loudness
// normalization, container wrapping, the VAD-filter fallback strategy and
// the guarantee that callers never see an empty transcript.
package stt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/let5sne/mimiclaw/pkg/audio"
)

const (
	// DefaultLanguage is the expected spoken language on the device link.
	DefaultLanguage = "zh"

	// initialPrompt biases the decoder toward Mandarin sentences. Short
	// clips transcribe noticeably better with it.
	initialPrompt = "以下是普通话的句子。"

	// defaultBeamSize matches the backend's quality/latency sweet spot.
	defaultBeamSize = 5

	// fallbackPhrase is substituted when both passes hear nothing, so the
	// device always has something to say back.
	fallbackPhrase = "我没有听清，请再说一遍。"
)

// Result is one transcription outcome. Text is never empty.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Options tune a single recognizer pass.
type Options struct {
	// Language hints the decoder; empty means autodetect.
	Language string

	// Prompt is the priming text supplied to bias decoding.
	Prompt string

	// BeamSize is the decoder beam width.
	BeamSize int

	// VADFilter drops non-speech audio before decoding. Aggressive on
	// short or quiet utterances, which is why the pipeline retries
	// without it.
	VADFilter bool
}

// Recognizer is the speech backend: WAV in, text out.
type Recognizer interface {
	Transcribe(ctx context.Context, wav []byte, opts Options) (Result, error)
}

// Pipeline runs the full PCM-to-text sequence against a Recognizer.
type Pipeline struct {
	rec    Recognizer
	ffmpeg string
	log    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFFmpeg overrides the transcoder binary used by TranscribeEncoded.
func WithFFmpeg(path string) PipelineOption {
	return func(p *Pipeline) { p.ffmpeg = path }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// NewPipeline builds a Pipeline around a Recognizer.
func NewPipeline(rec Recognizer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{rec: rec, ffmpeg: "ffmpeg", log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "stt")
	return p
}

// Transcribe runs raw capture-format PCM through the pipeline:
// normalize loudness, wrap in WAV, one VAD-filtered pass, one unfiltered
// retry if that heard nothing, and the fixed fallback phrase if both did.
// The returned Result always carries non-empty text; errors are reserved
// for backend failures.
func (p *Pipeline) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	pcm = audio.Normalize(pcm)
	wav := audio.WrapPCM(pcm)

	opts := Options{
		Language:  DefaultLanguage,
		Prompt:    initialPrompt,
		BeamSize:  defaultBeamSize,
		VADFilter: true,
	}

	res, err := p.rec.Transcribe(ctx, wav, opts)
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(res.Text) == "" {
		// The VAD filter can swallow a short or quiet utterance whole.
		// One more pass with the filter off recovers most of those.
		p.log.Info("empty transcript, retrying without vad filter",
			"duration", audio.Duration(pcm))
		opts.VADFilter = false
		res, err = p.rec.Transcribe(ctx, wav, opts)
		if err != nil {
			return Result{}, err
		}
	}

	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		p.log.Info("no speech recognized, substituting fallback phrase")
		return Result{Text: fallbackPhrase, Language: DefaultLanguage}, nil
	}
	if res.Language == "" {
		res.Language = DefaultLanguage
	}
	return res, nil
}

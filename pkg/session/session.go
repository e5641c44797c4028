// Package session runs the per-connection protocol state machine: capture
// buffering, transcription dispatch, synthesis stream lifecycle and the
// at-most-one-speaking guarantee. All state transitions happen on the
// connection's read goroutine; only frame delivery crosses goroutines.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/let5sne/mimiclaw/pkg/metrics"
	"github.com/let5sne/mimiclaw/pkg/stt"
	"github.com/let5sne/mimiclaw/pkg/tts"
)

// minClipBytes is the shortest clip worth transcribing: 10 ms of capture
// audio. Anything shorter is a tap, not an utterance.
const minClipBytes = 320

// Sender delivers frames to the device. Implementations must be safe for
// concurrent use: transcription workers and the synthesis stream write
// alongside the event loop.
type Sender interface {
	SendJSON(v any) error
	SendBinary(data []byte) error
}

// Transcriber is the PCM-to-text pipeline the session hands clips to.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (stt.Result, error)
}

// Deps carries everything a session needs beyond its connection.
type Deps struct {
	Transcriber Transcriber
	Synth       tts.Synthesizer
	Transcoder  *tts.Transcoder
	Pool        *Pool
	Metrics     *metrics.Metrics
	Log         *slog.Logger

	// Voice and Rate are the deployment defaults for requests that do
	// not name their own; empty falls back to the built-in voice.
	Voice string
	Rate  string
}

// Session is one device connection's state. Not safe for concurrent use:
// HandleText, HandleBinary and Close must all run on the same goroutine.
type Session struct {
	id   string
	send Sender
	deps Deps
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	recording bool
	pcm       []byte
	active    *tts.Stream
}

// New builds a session bound to a sender. Close releases it.
func New(send Sender, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		send:   send,
		deps:   deps,
		log:    deps.Log.With("session", id),
		ctx:    ctx,
		cancel: cancel,
	}
	deps.Metrics.SessionOpened()
	s.log.Info("session opened")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// HandleText processes one control frame. Malformed and unknown messages
// are logged and ignored; they never terminate the session.
func (s *Session) HandleText(data []byte) {
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Warn("malformed control frame ignored", "error", err)
		return
	}

	switch frame.Type {
	case frameAudioStart:
		s.recording = true
		s.pcm = s.pcm[:0]

	case frameAudioEnd:
		s.recording = false
		s.finishCapture()

	case frameTTSRequest:
		s.startSpeech(frame)

	case frameInterrupt:
		if s.active != nil {
			s.active.Cancel()
		}

	default:
		s.log.Warn("unknown control frame ignored", "type", frame.Type)
	}
}

// HandleBinary appends a PCM frame to the capture buffer. Frames outside
// a recording window are dropped.
func (s *Session) HandleBinary(data []byte) {
	if !s.recording {
		return
	}
	s.pcm = append(s.pcm, data...)
}

// finishCapture hands the buffered clip to the worker pool so the event
// loop keeps servicing frames while the backend works.
func (s *Session) finishCapture() {
	if len(s.pcm) < minClipBytes {
		s.log.Info("capture too short", "bytes", len(s.pcm))
		s.sendError("audio too short")
		return
	}

	clip := make([]byte, len(s.pcm))
	copy(clip, s.pcm)
	s.pcm = s.pcm[:0]

	s.deps.Pool.Go(func() {
		start := time.Now()
		res, err := s.deps.Transcriber.Transcribe(s.ctx, clip)
		if err != nil {
			s.deps.Metrics.RecordTranscription(metrics.OutcomeError, time.Since(start).Seconds())
			s.log.Error("transcription failed", "error", err)
			s.sendError("speech recognition failed")
			return
		}
		s.deps.Metrics.RecordTranscription(metrics.OutcomeOK, time.Since(start).Seconds())
		s.log.Info("transcription done", "text", res.Text, "language", res.Language)
		if err := s.send.SendJSON(sttResultFrame{Type: frameSTTResult, Text: res.Text, Language: res.Language}); err != nil {
			s.log.Warn("send stt result failed", "error", err)
		}
	})
}

// startSpeech cancels any active stream, waits for it to wind down so
// frames never interleave, then launches the next one.
func (s *Session) startSpeech(frame controlFrame) {
	if s.active != nil {
		s.active.Cancel()
		<-s.active.Done()
	}

	req := tts.Request{
		Text:  tts.SpeakableOrAck(frame.Text),
		Voice: frame.Voice,
		Rate:  frame.Rate,
	}
	if req.Voice == "" {
		req.Voice = s.deps.Voice
	}
	if req.Rate == "" {
		req.Rate = s.deps.Rate
	}
	stream := tts.NewStream(s.deps.Synth, s.deps.Transcoder, frameSender{s.send}, req,
		tts.WithStreamLogger(s.log))
	s.active = stream

	go func() {
		start := time.Now()
		err := stream.Run(s.ctx)
		elapsed := time.Since(start).Seconds()
		switch {
		case err != nil:
			s.deps.Metrics.RecordSynthesis(metrics.OutcomeError, elapsed)
			s.log.Error("synthesis stream failed", "error", err)
			s.sendError("speech synthesis failed")
		case stream.Cancelled() || s.ctx.Err() != nil:
			s.deps.Metrics.RecordSynthesis(metrics.OutcomeCancelled, elapsed)
		default:
			s.deps.Metrics.RecordSynthesis(metrics.OutcomeCompleted, elapsed)
		}
	}()
}

// Close cancels in-flight work and releases the capture buffer. Called
// once when the connection goes away.
func (s *Session) Close() {
	s.cancel()
	if s.active != nil {
		s.active.Cancel()
		<-s.active.Done()
		s.active = nil
	}
	s.pcm = nil
	s.deps.Metrics.SessionClosed()
	s.log.Info("session closed")
}

func (s *Session) sendError(message string) {
	if err := s.send.SendJSON(errorFrame{Type: frameError, Message: message}); err != nil {
		s.log.Warn("send error frame failed", "error", err)
	}
}

// frameSender adapts the connection sender to the synthesis stream.
type frameSender struct {
	send Sender
}

func (w frameSender) WriteEvent(event string) error {
	return w.send.SendJSON(eventFrame{Type: event})
}

func (w frameSender) WriteAudio(chunk []byte) error {
	return w.send.SendBinary(chunk)
}

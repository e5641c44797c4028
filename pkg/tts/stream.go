package tts

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Stream event markers sent around the audio frames.
const (
	EventStart = "tts_start"
	EventEnd   = "tts_end"
)

// frameSize is one forwarded PCM chunk: 3200 bytes is 100 ms at the
// capture format.
const frameSize = 3200

// FrameWriter delivers stream output to the peer. Implementations are
// called from a single goroutine, in order.
type FrameWriter interface {
	WriteEvent(event string) error
	WriteAudio(chunk []byte) error
}

// Stream runs one synthesis job end to end: start marker, synthesized
// audio through the transcoder to ordered binary frames, end marker.
// Cancellation stops frame delivery without an end marker; the subprocess
// is reaped on every exit path.
type Stream struct {
	synth Synthesizer
	trans *Transcoder
	out   FrameWriter
	req   Request
	log   *slog.Logger

	cancelled  chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the stream logger.
func WithStreamLogger(log *slog.Logger) StreamOption {
	return func(s *Stream) { s.log = log }
}

// NewStream prepares a synthesis stream. Run starts it; Cancel stops it.
func NewStream(synth Synthesizer, trans *Transcoder, out FrameWriter, req Request, opts ...StreamOption) *Stream {
	s := &Stream{
		synth:     synth,
		trans:     trans,
		out:       out,
		req:       req.normalized(),
		log:       slog.Default(),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "tts")
	return s
}

// Cancel requests the stream stop emitting frames. Safe to call any number
// of times, from any goroutine, before or during Run.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
}

// Done is closed once Run has fully finished, subprocess included.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Cancelled reports whether Cancel has been called.
func (s *Stream) Cancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// Run executes the stream. It returns nil on completion or cancellation;
// errors are backend or delivery failures surfaced to the caller. The end
// marker is emitted only when the stream ran to completion uncancelled.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.cancelled:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.out.WriteEvent(EventStart); err != nil {
		return wrapError(err, "send start event")
	}

	audio, err := s.synth.Synthesize(ctx, s.req.Text, s.req.Voice, s.req.Rate)
	if err != nil {
		return wrapError(err, "synthesize")
	}
	defer audio.Close()
	go func() {
		// A blocked synthesis read only unblocks when its source closes.
		<-ctx.Done()
		audio.Close()
	}()

	proc, err := s.trans.Start(ctx)
	if err != nil {
		return err
	}
	defer proc.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.feed(gctx, audio, proc.Stdin) })
	g.Go(func() error { return s.drain(gctx, proc.Stdout) })
	go func() {
		// A feed blocked on a full stdin pipe only unblocks when the
		// subprocess dies, so the first failure must take it down.
		<-gctx.Done()
		proc.Stop()
	}()

	if err := g.Wait(); err != nil {
		if s.isCancelled(ctx) {
			s.log.Info("synthesis stream cancelled")
			return nil
		}
		return err
	}
	if s.isCancelled(ctx) {
		s.log.Info("synthesis stream cancelled")
		return nil
	}

	return wrapError(s.out.WriteEvent(EventEnd), "send end event")
}

// feed copies compressed audio into the transcoder, stopping early on
// cancellation. Closing stdin flushes the decoder so drain sees EOF.
func (s *Stream) feed(ctx context.Context, audio io.Reader, stdin io.WriteCloser) error {
	defer stdin.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := audio.Read(buf)
		if n > 0 {
			if _, werr := stdin.Write(buf[:n]); werr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return wrapError(werr, "feed transcoder")
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return wrapError(err, "read synthesis audio")
		}
	}
}

// drain forwards decoded chunks as binary frames in production order, one
// chunk in flight.
func (s *Stream) drain(ctx context.Context, stdout io.Reader) error {
	buf := make([]byte, frameSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if werr := s.out.WriteAudio(chunk); werr != nil {
				return wrapError(werr, "send audio frame")
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return wrapError(err, "read transcoder output")
		}
	}
}

func (s *Stream) isCancelled(ctx context.Context) bool {
	select {
	case <-s.cancelled:
		return true
	default:
	}
	return ctx.Err() != nil
}

// Package gateway wires the device-facing WebSocket listener and the HTTP
// side channel around the speech and document engines. The two listeners
// run as separate servers so long document or vision requests never stall
// audio sessions.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/let5sne/mimiclaw/pkg/config"
	"github.com/let5sne/mimiclaw/pkg/doc"
	"github.com/let5sne/mimiclaw/pkg/metrics"
	"github.com/let5sne/mimiclaw/pkg/session"
	"github.com/let5sne/mimiclaw/pkg/stt"
	"github.com/let5sne/mimiclaw/pkg/tts"
	"github.com/let5sne/mimiclaw/pkg/vision"
)

// Gateway is the assembled process: both listeners plus every engine they
// share.
type Gateway struct {
	cfg *config.Config
	log *slog.Logger
	met *metrics.Metrics

	pipeline   *stt.Pipeline
	synth      tts.Synthesizer
	transcoder *tts.Transcoder
	pool       *session.Pool
	vis        *vision.Client
	docs       *doc.Engine
}

// Option overrides a Gateway collaborator, mainly for tests.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithMetrics attaches registered instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.met = m }
}

// WithRecognizer swaps the speech backend.
func WithRecognizer(rec stt.Recognizer) Option {
	return func(g *Gateway) {
		g.pipeline = stt.NewPipeline(rec, stt.WithFFmpeg(g.cfg.TTS.FFmpeg), stt.WithLogger(g.log))
	}
}

// WithSynthesizer swaps the synthesis backend.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(g *Gateway) { g.synth = s }
}

// WithTranscoder swaps the decoding subprocess command.
func WithTranscoder(t *tts.Transcoder) Option {
	return func(g *Gateway) { g.transcoder = t }
}

// New assembles a gateway from configuration.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg: cfg,
		log: slog.Default(),
	}

	vis, err := vision.NewClient(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("gateway: vision client: %w", err)
	}
	g.vis = vis

	rec := stt.NewClient(cfg.STT.Endpoint)
	g.pipeline = stt.NewPipeline(rec, stt.WithFFmpeg(cfg.TTS.FFmpeg))
	g.synth = tts.NewEdgeClient()
	g.transcoder = tts.NewTranscoder(cfg.TTS.FFmpeg)
	g.pool = session.NewPool(cfg.STT.Workers)

	for _, opt := range opts {
		opt(g)
	}

	g.log = g.log.With("component", "gateway")
	g.docs = doc.NewEngine(cfg.Doc.Limits(), g.vis, g.log)
	return g, nil
}

// Run serves both listeners until ctx is cancelled, then shuts them down.
func (g *Gateway) Run(ctx context.Context) error {
	wsSrv := &http.Server{Addr: g.cfg.WS.Addr(), Handler: g.wsHandler()}
	httpSrv := &http.Server{Addr: g.cfg.HTTP.Addr(), Handler: g.httpHandler()}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.log.Info("device listener up", "addr", wsSrv.Addr)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway: device listener: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		g.log.Info("http listener up", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway: http listener: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		wsSrv.Close()
		httpSrv.Close()
		return nil
	})

	return eg.Wait()
}

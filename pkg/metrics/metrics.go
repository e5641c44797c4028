// Package metrics registers the gateway's Prometheus instruments. All
// record helpers are safe on a nil receiver so wiring stays optional in
// tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the gateway exports.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter

	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	SynthesisStreams  *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram

	DocParses     *prometheus.CounterVec
	DocParseBytes prometheus.Histogram

	VisionCalls *prometheus.CounterVec
}

// New creates and registers all instruments on the default registry.
// Call once per process.
func New() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mimigw_active_sessions",
			Help: "Current number of connected device sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mimigw_sessions_total",
			Help: "Total number of device sessions accepted",
		}),

		TranscriptionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mimigw_transcription_requests_total",
			Help: "Total transcription requests by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mimigw_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		SynthesisStreams: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mimigw_synthesis_streams_total",
			Help: "Total synthesis streams by outcome",
		}, []string{"outcome"}),
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mimigw_synthesis_duration_seconds",
			Help:    "Duration of synthesis streams",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		DocParses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mimigw_doc_parses_total",
			Help: "Total document parses by format and outcome",
		}, []string{"format", "outcome"}),
		DocParseBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mimigw_doc_parse_bytes",
			Help:    "Size of uploaded documents in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		VisionCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mimigw_vision_calls_total",
			Help: "Total vision backend calls by outcome",
		}, []string{"outcome"}),
	}
}

// Outcome labels shared across the counters.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeFallback  = "fallback"
	OutcomeCancelled = "cancelled"
	OutcomeCompleted = "completed"
)

// SessionOpened bumps the session instruments at connect time.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed releases the active-session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordTranscription records one pipeline run.
func (m *Metrics) RecordTranscription(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(seconds)
}

// RecordSynthesis records one finished synthesis stream.
func (m *Metrics) RecordSynthesis(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.SynthesisStreams.WithLabelValues(outcome).Inc()
	m.SynthesisDuration.Observe(seconds)
}

// RecordDocParse records one document extraction.
func (m *Metrics) RecordDocParse(format, outcome string, sizeBytes int) {
	if m == nil {
		return
	}
	m.DocParses.WithLabelValues(format, outcome).Inc()
	m.DocParseBytes.Observe(float64(sizeBytes))
}

// RecordVisionCall records one vision backend round trip.
func (m *Metrics) RecordVisionCall(outcome string) {
	if m == nil {
		return
	}
	m.VisionCalls.WithLabelValues(outcome).Inc()
}

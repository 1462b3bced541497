package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	stages   *stageWindow

	ActiveSessions        prometheus.Gauge
	SessionEvents         *prometheus.CounterVec
	TransportMessages     *prometheus.CounterVec
	CodecErrors           *prometheus.CounterVec
	CaptureFramesDropped  prometheus.Counter
	PlaybackInterruptions prometheus.Counter
	CheckIns              prometheus.Counter
	ToolCalls             *prometheus.CounterVec
	ToolLatency           *prometheus.HistogramVec
	RecordingsSaved       prometheus.Counter
	RecordingsFailed      prometheus.Counter
	SummaryFailures       prometheus.Counter
	FirstAudioLatency     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		stages:   newStageWindow(256),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live voice sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		TransportMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_messages_total",
			Help:      "Realtime transport messages by direction and type.",
		}, []string{"direction", "type"}),
		CodecErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Audio frames rejected by the codec, by source.",
		}, []string{"source"}),
		CaptureFramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Microphone frames that could not be sent to the model.",
		}),
		PlaybackInterruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Times queued reply audio was flushed by an interruption.",
		}),
		CheckIns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inactivity_checkins_total",
			Help:      "Inactivity check-in directives sent to the model.",
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and result status.",
		}, []string{"tool", "status"}),
		ToolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_latency_ms",
			Help:      "Tool execution latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"tool"}),
		RecordingsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Conversation recordings written to the store.",
		}),
		RecordingsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_failed_total",
			Help:      "Conversation recordings that could not be saved.",
		}),
		SummaryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_failures_total",
			Help:      "Summaries replaced by the failure placeholder.",
		}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from session open to first reply audio in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
	}
}

// Handler serves this Metrics' registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) TransportMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.TransportMessages.WithLabelValues(direction, kind).Inc()
}

func (m *Metrics) CodecError(source string) {
	if m == nil {
		return
	}
	m.CodecErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionEvents.WithLabelValues("started").Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionEvents.WithLabelValues("ended_" + reason).Inc()
}

func (m *Metrics) CaptureDropped() {
	if m == nil {
		return
	}
	m.CaptureFramesDropped.Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.PlaybackInterruptions.Inc()
	m.stages.ObserveIndicator("interrupted")
}

func (m *Metrics) CheckIn() {
	if m == nil {
		return
	}
	m.CheckIns.Inc()
	m.stages.ObserveIndicator("check_in")
}

func (m *Metrics) ObserveToolCall(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name, status).Inc()
	m.ToolLatency.WithLabelValues(name).Observe(float64(d.Milliseconds()))
	m.stages.Observe("tool_call", float64(d.Microseconds())/1000)
}

func (m *Metrics) RecordingSaved() {
	if m == nil {
		return
	}
	m.RecordingsSaved.Inc()
}

func (m *Metrics) RecordingFailed() {
	if m == nil {
		return
	}
	m.RecordingsFailed.Inc()
}

func (m *Metrics) SummaryFailed() {
	if m == nil {
		return
	}
	m.SummaryFailures.Inc()
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe("open_to_first_audio", float64(d.Microseconds())/1000)
}

// ObserveStage records a latency sample for the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

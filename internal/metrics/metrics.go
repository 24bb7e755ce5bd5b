// Package metrics exports responder latencies and counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

const namespace = "speech_responder"

// Recorder holds the responder's Prometheus collectors on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	wakeLatency    prometheus.Histogram
	writeLatency   prometheus.Histogram
	sessionFailed  prometheus.Counter
	sessionActive  prometheus.Gauge
	dropped        *prometheus.CounterVec
	controlWrites  *prometheus.CounterVec
	inferenceCalls prometheus.Counter
}

// latencyBuckets spans sub-millisecond processing up to a slow radio tick.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// New creates a Recorder and registers its collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Accepted new commands by class.",
		}, []string{"command"}),
		wakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wake_latency_ms",
			Help:      "Time from a new command starting processing to its detection report.",
			Buckets:   latencyBuckets,
		}),
		writeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_ms",
			Help:      "Time from a command write to the following inference call.",
			Buckets:   latencyBuckets,
		}),
		sessionFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_start_failures_total",
			Help:      "Radio session start attempts that failed.",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 once the radio session is active.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_writes_total",
			Help:      "Writes skipped because no peer was connected.",
		}, []string{"channel"}),
		controlWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_writes_total",
			Help:      "Remote control writes by outcome.",
		}, []string{"result"}),
		inferenceCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_calls_total",
			Help:      "Inference results handled.",
		}),
	}

	r.registry.MustRegister(
		r.commands,
		r.wakeLatency,
		r.writeLatency,
		r.sessionFailed,
		r.sessionActive,
		r.dropped,
		r.controlWrites,
		r.inferenceCalls,
		collectors.NewGoCollector(),
	)
	for _, c := range logic.Commands {
		r.commands.WithLabelValues(string(c))
	}
	return r
}

// Registry returns the registry to expose over HTTP.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// InferenceCall counts one controller call.
func (r *Recorder) InferenceCall() {
	r.inferenceCalls.Inc()
}

// Command counts an accepted command.
func (r *Recorder) Command(cmd logic.Command) {
	r.commands.WithLabelValues(string(cmd)).Inc()
}

// WakeLatency observes a wake-word latency.
func (r *Recorder) WakeLatency(d time.Duration) {
	r.wakeLatency.Observe(logic.Milliseconds(d))
}

// WriteLatency observes a send latency.
func (r *Recorder) WriteLatency(d time.Duration) {
	r.writeLatency.Observe(logic.Milliseconds(d))
}

// SessionStartFailed counts a failed session start.
func (r *Recorder) SessionStartFailed() {
	r.sessionFailed.Inc()
}

// SessionActive marks the session as up.
func (r *Recorder) SessionActive() {
	r.sessionActive.Set(1)
}

// Dropped counts a write skipped for lack of a peer.
func (r *Recorder) Dropped(channel string) {
	r.dropped.WithLabelValues(channel).Inc()
}

// ControlWrite counts a remote control write; applied is false for unknown codes.
func (r *Recorder) ControlWrite(applied bool) {
	result := "applied"
	if !applied {
		result = "ignored"
	}
	r.controlWrites.WithLabelValues(result).Inc()
}

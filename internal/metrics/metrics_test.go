package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

func TestNewRegistersCollectors(t *testing.T) {
	r := New()
	families, err := r.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"speech_responder_commands_total",
		"speech_responder_session_active",
		"speech_responder_session_start_failures_total",
		"speech_responder_inference_calls_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestCommandCounter(t *testing.T) {
	r := New()
	r.Command(logic.CommandYes)
	r.Command(logic.CommandYes)
	r.Command(logic.CommandNo)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.commands.WithLabelValues("YES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commands.WithLabelValues("NO")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.commands.WithLabelValues("UNKNOWN")))
}

func TestLatencyHistograms(t *testing.T) {
	r := New()
	r.WakeLatency(1500 * time.Microsecond)
	r.WriteLatency(100 * time.Millisecond)
	r.WriteLatency(40 * time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(r.wakeLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(r.writeLatency))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "speech_responder_write_latency_ms" {
			h := f.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(2), h.GetSampleCount())
			assert.InDelta(t, 140.0, h.GetSampleSum(), 0.001)
			return
		}
	}
	t.Fatal("write latency histogram not gathered")
}

func TestSessionAndDropCounters(t *testing.T) {
	r := New()
	r.SessionStartFailed()
	r.SessionStartFailed()
	r.SessionActive()
	r.Dropped("metrics")
	r.ControlWrite(true)
	r.ControlWrite(false)
	r.ControlWrite(false)
	r.InferenceCall()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sessionFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.controlWrites.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.controlWrites.WithLabelValues("ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.inferenceCalls))
}

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/gpio"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/inference"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/led"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/metrics"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/responder"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/status"
)

// rig wires the responder the way cmd/speech-responder does, with fakes at
// the hardware and radio edges.
type rig struct {
	out     *gpio.FakeWriter
	leds    *led.Panel
	conn    *link.FakeLink
	rec     *metrics.Recorder
	ctrl    *responder.Controller
	tracker *status.Tracker
}

func newRig(feedback bool) *rig {
	r := &rig{
		out:  gpio.NewFakeWriter(),
		conn: link.NewFakeLink(),
		rec:  metrics.New(),
	}
	r.leds = led.NewPanel(r.out)
	r.ctrl = responder.New(r.leds, r.conn, responder.Options{
		Feedback: feedback,
		Metrics:  r.rec,
	})
	r.tracker = status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{
		Transport: "ble",
		LocalName: link.DefaultLocalName,
		Feedback:  feedback,
	})
	return r
}

// replay feeds a recorded session through the controller, updating the
// tracker after every call like the daemon's run loop.
func (r *rig) replay(t *testing.T, session string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "session.txt", []byte(session), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := inference.New(&inference.Config{FileSys: fs, Path: "session.txt"})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	events := make(chan logic.Event)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(context.Background(), events)
		close(events)
	}()
	for ev := range events {
		r.ctrl.OnInferenceResult(ev)
		r.tracker.Update(r.ctrl.Stats(), r.leds.Color(), r.leds.Heartbeat())
		r.tracker.SetLinkConnected(r.conn.Connected())
	}
	if err := <-done; err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func (r *rig) metric(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.rec.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

const fullSession = `# timestamp label score new
0 silence 0 0
1000 yes 220 1
1100 yes 230 0
2000 no 200 1
5100 silence 0 0
`

// TestIntegrationFullFlow runs a yes/no session with a connected peer.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(true)
	r.conn.SetConnected(true)
	r.replay(t, fullSession)

	wantCmds := []string{"Yes", logic.MessageAnnounce, logic.MessageAnnounce, "No", logic.MessageAnnounce}
	gotCmds := r.conn.WritesOn(link.ChannelCommand)
	if strings.Join(gotCmds, "|") != strings.Join(wantCmds, "|") {
		t.Errorf("command writes:\n got %q\nwant %q", gotCmds, wantCmds)
	}

	gotMetrics := r.conn.WritesOn(link.ChannelMetrics)
	wantPrefixes := []string{"wake_latency:", "ble_write_latency:", "wake_latency:", "ble_write_latency:"}
	if len(gotMetrics) != len(wantPrefixes) {
		t.Fatalf("metric writes: got %q", gotMetrics)
	}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(gotMetrics[i], p) {
			t.Errorf("metric %d: got %q, want prefix %q", i, gotMetrics[i], p)
		}
		if _, _, err := logic.ParseLatency(gotMetrics[i]); err != nil {
			t.Errorf("metric %d not parseable: %v", i, err)
		}
	}

	if r.conn.BeginCalls != 1 {
		t.Errorf("expected one session start, got %d", r.conn.BeginCalls)
	}
	if r.conn.Profile != link.DefaultProfile() {
		t.Errorf("unexpected profile: %+v", r.conn.Profile)
	}

	snap := r.tracker.Snapshot()
	if snap.Responder.Session != responder.SessionActive {
		t.Errorf("session: got %s", snap.Responder.Session)
	}
	if snap.Color != logic.ColorOff {
		t.Errorf("LEDs should be idle after the timeout, got %s", snap.Color)
	}
	if snap.Responder.CommandActive {
		t.Error("no command should be active after the timeout")
	}
	if !snap.Heartbeat {
		t.Error("heartbeat should be lit after the fifth call")
	}
	if snap.Responder.WarmupLeft != logic.WarmupCalls-3 {
		t.Errorf("warm-up left: got %d, want %d", snap.Responder.WarmupLeft, logic.WarmupCalls-3)
	}

	if got := r.metric(t, "speech_responder_commands_total", map[string]string{"command": "YES"}); got != 1 {
		t.Errorf("YES counter: got %v", got)
	}
	if got := r.metric(t, "speech_responder_inference_calls_total", nil); got != 5 {
		t.Errorf("inference calls: got %v", got)
	}
	if got := r.metric(t, "speech_responder_wake_latency_ms", nil); got != 2 {
		t.Errorf("wake latency samples: got %v", got)
	}
	if got := r.metric(t, "speech_responder_session_active", nil); got != 1 {
		t.Errorf("session_active: got %v", got)
	}
}

// TestIntegrationLEDSequence checks the GPIO level trace for a single YES.
func TestIntegrationLEDSequence(t *testing.T) {
	r := newRig(true)
	r.replay(t, "0 yes 200 1\n")

	green := r.out.WritesTo(gpio.LineGreen)
	if len(green) == 0 || !green[len(green)-1] {
		t.Errorf("green should end lit, got %v", green)
	}
	for _, line := range []gpio.Line{gpio.LineRed, gpio.LineBlue} {
		for _, on := range r.out.WritesTo(line) {
			if on {
				t.Errorf("%s should never be lit", line)
			}
		}
	}
	if !r.out.States[gpio.LineHeartbeat] {
		t.Error("heartbeat should be lit after the first call")
	}
}

// TestIntegrationNoSessionWithoutYes checks that nothing touches the radio
// until a YES is heard.
func TestIntegrationNoSessionWithoutYes(t *testing.T) {
	r := newRig(true)
	r.conn.SetConnected(true)
	r.replay(t, "0 no 200 1\n500 unknown 150 1\n600 left 90 1\n")

	if r.conn.BeginCalls != 0 || r.conn.Advertisements != 0 {
		t.Errorf("session touched: begin=%d advertise=%d", r.conn.BeginCalls, r.conn.Advertisements)
	}
	if len(r.conn.WritesOn(link.ChannelCommand)) != 0 {
		t.Errorf("no writes expected, got %v", r.conn.WritesOn(link.ChannelCommand))
	}
	snap := r.tracker.Snapshot()
	if snap.Responder.Session != responder.SessionUninitialized {
		t.Errorf("session: got %s", snap.Responder.Session)
	}
	c := snap.Responder.Counts
	if c.No != 1 || c.Unknown != 1 || c.Silence != 1 {
		t.Errorf("counts: got %+v", c)
	}
	if snap.Color != logic.ColorBlue {
		t.Errorf("silence must not change the LEDs, got %s", snap.Color)
	}
}

// TestIntegrationSessionFailureRetries checks a failed start is retried on the next YES.
func TestIntegrationSessionFailureRetries(t *testing.T) {
	r := newRig(true)
	r.conn.BeginError = errors.New("radio busy")
	r.replay(t, "0 yes 200 1\n")

	if got := r.tracker.Snapshot().Responder.SessionFailures; got != 1 {
		t.Fatalf("session failures: got %d, want 1", got)
	}
	if got := r.metric(t, "speech_responder_session_start_failures_total", nil); got != 1 {
		t.Errorf("failure counter: got %v", got)
	}

	r.conn.BeginError = nil
	r.conn.SetConnected(true)
	r.replay(t, "4000 yes 210 1\n")

	if r.conn.BeginCalls != 2 {
		t.Errorf("expected a retry, got %d begin calls", r.conn.BeginCalls)
	}
	if r.tracker.Snapshot().Responder.Session != responder.SessionActive {
		t.Error("session should be active after the retry")
	}
}

// TestIntegrationDisconnectedDropsWrites checks writes are dropped while no peer listens.
func TestIntegrationDisconnectedDropsWrites(t *testing.T) {
	r := newRig(true)
	r.replay(t, "0 yes 200 1\n100 yes 200 0\n")

	if len(r.conn.WritesOn(link.ChannelCommand)) != 0 {
		t.Error("nothing should be delivered without a peer")
	}
	if got := r.conn.DroppedOn(link.ChannelCommand); len(got) != 2 || got[0] != "Yes" || got[1] != logic.MessageAnnounce {
		t.Errorf("dropped commands: got %v", got)
	}
	if len(r.conn.DroppedOn(link.ChannelMetrics)) != 0 {
		t.Error("metric writes are skipped, not attempted, while disconnected")
	}
	if got := r.metric(t, "speech_responder_dropped_writes_total", map[string]string{"channel": "metrics"}); got != 1 {
		t.Errorf("dropped metrics counter: got %v", got)
	}
}

// TestIntegrationRemoteControl checks a peer's control write reaches the LEDs.
func TestIntegrationRemoteControl(t *testing.T) {
	r := newRig(true)
	r.conn.SetConnected(true)
	r.replay(t, "0 yes 200 1\n")

	if !r.conn.PeerWrite([]byte{byte(logic.ControlRed)}) {
		t.Fatal("control handler not installed")
	}
	if r.leds.Color() != logic.ColorRed {
		t.Errorf("color: got %s, want RED", r.leds.Color())
	}
	r.conn.PeerWrite([]byte{9})
	if r.leds.Color() != logic.ColorRed {
		t.Error("invalid code must leave the LEDs alone")
	}
	if got := r.metric(t, "speech_responder_control_writes_total", map[string]string{"result": "ignored"}); got != 1 {
		t.Errorf("ignored control writes: got %v", got)
	}
}

// TestIntegrationStatusJSON checks the status document after a session.
func TestIntegrationStatusJSON(t *testing.T) {
	r := newRig(false)
	r.conn.SetConnected(true)
	r.replay(t, "0 yes 200 1\n100 silence 0 0\n")

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(r.tracker.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if s.Session != "ACTIVE" || !s.Link.Connected {
		t.Errorf("session/link: %s %v", s.Session, s.Link.Connected)
	}
	if s.LED.Color != "OFF" || s.LED.Heartbeat {
		t.Errorf("feedback off should keep LEDs dark, got %+v", s.LED)
	}
	if s.LastCommand == nil || s.LastCommand.Command != "YES" {
		t.Errorf("last command: got %+v", s.LastCommand)
	}
	if s.Calls != 2 || s.Counts.Yes != 1 {
		t.Errorf("calls=%d yes=%d", s.Calls, s.Counts.Yes)
	}
	if s.Config.Feedback {
		t.Error("config should show feedback disabled")
	}
}

// Package responder turns keyword-spotting results into LED feedback and
// radio messages, and measures how long detection and sending take.
//
// A Controller is driven from a single goroutine, once per inference cycle.
// The only concurrent caller is the link's control-write handler, which
// touches nothing but the LED panel.
package responder

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/led"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

// SessionState is the lifecycle of the radio session.
type SessionState string

const (
	SessionUninitialized SessionState = "UNINITIALIZED"
	SessionAdvertising   SessionState = "ADVERTISING"
	SessionActive        SessionState = "ACTIVE"
)

// Recorder receives measurements. *metrics.Recorder satisfies it.
// Implementations must be safe for concurrent use.
type Recorder interface {
	InferenceCall()
	Command(cmd logic.Command)
	WakeLatency(d time.Duration)
	WriteLatency(d time.Duration)
	SessionStartFailed()
	SessionActive()
	Dropped(channel string)
	ControlWrite(applied bool)
}

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	Profile link.Profile
	// Feedback lights the RGB colour for each command and blinks the
	// heartbeat LED. With it off the responder only resets LEDs to idle.
	Feedback bool
	// IdleTimeoutMs is how long an accepted command keeps the LEDs lit.
	IdleTimeoutMs int32
	// WarmupCalls is the number of calls after activation that carry the
	// announcement broadcast.
	WarmupCalls int
	// Now is the monotonic clock used for latency measurement.
	Now     func() time.Time
	Log     *zap.Logger
	Metrics Recorder
}

// Stats is a point-in-time view of controller state.
type Stats struct {
	Session         SessionState
	Calls           uint64
	LastCommand     logic.Command
	LastLabel       string
	LastScore       uint8
	LastCommandTime int32
	CommandActive   bool
	Counts          logic.EventCounts
	WakeLatency     time.Duration
	WriteLatency    time.Duration
	SendPending     bool
	WakeArmed       bool
	WarmupLeft      int
	SessionFailures int
}

// Controller owns all responder state.
type Controller struct {
	leds    *led.Panel
	link    link.Link
	opts    Options
	now     func() time.Time
	log     *zap.Logger
	metrics Recorder

	initialized bool
	session     SessionState
	warmupLeft  int
	heartbeat   uint64

	lastCommand    int32
	hasLastCommand bool
	lastCmd        logic.Command
	lastLabel      string
	lastScore      uint8
	counts         logic.EventCounts

	sendPending bool
	sendStart   time.Time
	wakeArmed   bool
	wakeStart   time.Time

	lastWake        time.Duration
	lastWrite       time.Duration
	sessionFailures int
}

// New creates a Controller. GPIO and radio are left untouched until the
// first call to OnInferenceResult.
func New(leds *led.Panel, l link.Link, opts Options) *Controller {
	if opts.Profile == (link.Profile{}) {
		opts.Profile = link.DefaultProfile()
	}
	if opts.IdleTimeoutMs <= 0 {
		opts.IdleTimeoutMs = logic.IdleTimeoutMs
	}
	if opts.WarmupCalls < 0 {
		opts.WarmupCalls = 0
	} else if opts.WarmupCalls == 0 {
		opts.WarmupCalls = logic.WarmupCalls
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &Controller{
		leds:    leds,
		link:    l,
		opts:    opts,
		now:     opts.Now,
		log:     opts.Log.Named("responder"),
		metrics: opts.Metrics,
		session: SessionUninitialized,
		lastCmd: logic.CommandSilence,
	}
}

// OnInferenceResult handles one inference cycle. It never blocks on the
// radio beyond the link's own bounded write and returns once all side
// effects have been issued.
func (c *Controller) OnInferenceResult(ev logic.Event) {
	c.metrics.InferenceCall()

	if !c.initialized {
		if err := c.leds.Init(); err != nil {
			c.log.Warn("led init", zap.Error(err))
		}
		c.initialized = true
	}

	c.closePendingSend()

	if c.session != SessionUninitialized {
		c.advertise()
		if c.session == SessionActive && c.warmupLeft > 0 {
			c.writeCommand(logic.MessageAnnounce, false)
			c.warmupLeft--
		}
	}

	if ev.IsNew {
		if !c.handleCommand(ev) {
			return
		}
	}

	if c.hasLastCommand && logic.IdleExpired(c.lastCommand, ev.Timestamp, c.opts.IdleTimeoutMs) {
		c.hasLastCommand = false
		if err := c.leds.Off(); err != nil {
			c.log.Warn("led idle", zap.Error(err))
		}
	}

	c.heartbeat++
	if c.opts.Feedback {
		if err := c.leds.SetHeartbeat(logic.HeartbeatOn(c.heartbeat)); err != nil {
			c.log.Warn("heartbeat led", zap.Error(err))
		}
	}
}

// handleCommand processes a new command. It returns false when the call
// must end early because the session could not be started.
func (c *Controller) handleCommand(ev logic.Event) bool {
	c.armWake()
	c.log.Info("heard",
		zap.String("label", ev.Label),
		zap.Uint8("score", ev.Score),
		zap.Int32("at_ms", ev.Timestamp))

	d := logic.Decide(ev, c.opts.Feedback)

	if d.ResetLEDs {
		if err := c.leds.SetColor(d.Color); err != nil {
			c.log.Warn("led command", zap.Error(err))
		}
	}

	if d.StartSession && c.session == SessionUninitialized && c.initialized {
		if err := c.startSession(); err != nil {
			c.sessionFailures++
			c.metrics.SessionStartFailed()
			c.log.Error("starting session failed", zap.Error(err))
			return false
		}
	}

	if d.Message != "" {
		c.log.Info(d.Message)
		c.writeCommand(d.Message, true)
		c.ReportDetection()
	}

	c.counts.Add(d.Command)
	c.metrics.Command(d.Command)
	c.lastCmd = d.Command
	c.lastLabel = ev.Label
	c.lastScore = ev.Score
	c.lastCommand = ev.Timestamp
	c.hasLastCommand = true
	return true
}

// ReportDetection reports the wake-word latency if a new command armed the
// timer and nothing has reported it yet. It is called after each
// non-silence classification; an inference engine with its own detection
// signal may call it too, from the inference goroutine.
func (c *Controller) ReportDetection() {
	if !c.wakeArmed {
		return
	}
	d := c.now().Sub(c.wakeStart)
	c.wakeArmed = false
	c.lastWake = d
	c.metrics.WakeLatency(d)
	c.log.Info("wake latency", zap.Float64("ms", logic.Milliseconds(d)))
	c.writeMetric(logic.FormatLatency(logic.MetricWakeLatency, d))
}

// Stats returns a snapshot of controller state.
func (c *Controller) Stats() Stats {
	return Stats{
		Session:         c.session,
		Calls:           c.heartbeat,
		LastCommand:     c.lastCmd,
		LastLabel:       c.lastLabel,
		LastScore:       c.lastScore,
		LastCommandTime: c.lastCommand,
		CommandActive:   c.hasLastCommand,
		Counts:          c.counts,
		WakeLatency:     c.lastWake,
		WriteLatency:    c.lastWrite,
		SendPending:     c.sendPending,
		WakeArmed:       c.wakeArmed,
		WarmupLeft:      c.warmupLeft,
		SessionFailures: c.sessionFailures,
	}
}

// Session returns the radio session state.
func (c *Controller) Session() SessionState {
	return c.session
}

func (c *Controller) armWake() {
	c.wakeArmed = true
	c.wakeStart = c.now()
}

func (c *Controller) startSession() error {
	if err := c.link.Begin(c.opts.Profile, c.onControl); err != nil {
		return err
	}
	c.session = SessionAdvertising
	c.log.Info("session initialized and advertising", zap.String("name", c.opts.Profile.LocalName))
	c.advertise()
	return nil
}

// advertise re-issues advertising and promotes the session to active the
// first time it succeeds.
func (c *Controller) advertise() {
	if err := c.link.Advertise(); err != nil {
		c.log.Warn("advertise", zap.Error(err))
		return
	}
	c.log.Debug("advertising")
	if c.session == SessionAdvertising {
		c.session = SessionActive
		c.warmupLeft = c.opts.WarmupCalls
		c.metrics.SessionActive()
	}
}

// writeCommand sends msg on the command channel. When measure is set and
// no send is pending, the send-latency window opens just before the write.
func (c *Controller) writeCommand(msg string, measure bool) {
	if c.session == SessionUninitialized {
		c.log.Debug("session not started, skipping write", zap.String("value", msg))
		return
	}
	if measure && !c.sendPending && c.link.Connected() {
		c.sendPending = true
		c.sendStart = c.now()
	} else {
		measure = false
	}

	err := c.link.Write(link.ChannelCommand, msg)
	if err == nil {
		return
	}
	if measure {
		c.sendPending = false
	}
	if errors.Is(err, link.ErrNotConnected) {
		c.metrics.Dropped(string(link.ChannelCommand))
		c.log.Debug("no peer, command dropped", zap.String("value", msg))
		return
	}
	c.log.Warn("command write", zap.String("value", msg), zap.Error(err))
}

// closePendingSend ends the send-latency window opened on the previous call.
// The measurement runs to this call rather than to a write acknowledgement;
// the link offers no completion signal.
func (c *Controller) closePendingSend() {
	if !c.sendPending {
		return
	}
	d := c.now().Sub(c.sendStart)
	c.sendPending = false
	c.lastWrite = d
	c.metrics.WriteLatency(d)
	c.log.Info("write latency", zap.Float64("ms", logic.Milliseconds(d)))
	c.writeMetric(logic.FormatLatency(logic.MetricWriteLatency, d))
}

// writeMetric sends a report on the metrics channel, dropping it when no
// peer is connected.
func (c *Controller) writeMetric(value string) {
	if c.session == SessionUninitialized || !c.link.Connected() {
		c.metrics.Dropped(string(link.ChannelMetrics))
		return
	}
	err := c.link.Write(link.ChannelMetrics, value)
	if err == nil {
		return
	}
	if errors.Is(err, link.ErrNotConnected) {
		c.metrics.Dropped(string(link.ChannelMetrics))
		return
	}
	c.log.Warn("metrics write", zap.String("value", value), zap.Error(err))
}

// onControl runs on the link's goroutine.
func (c *Controller) onControl(value []byte) {
	if len(value) == 0 {
		c.metrics.ControlWrite(false)
		return
	}
	color, ok := logic.ColorForCode(logic.ControlCode(value[0]))
	c.metrics.ControlWrite(ok)
	if !ok {
		c.log.Debug("ignoring control code", zap.Uint8("code", value[0]))
		return
	}
	c.log.Info("remote colour", zap.Uint8("code", value[0]), zap.String("color", string(color)))
	if err := c.leds.SetColor(color); err != nil {
		c.log.Warn("led control", zap.Error(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) InferenceCall()             {}
func (nopRecorder) Command(logic.Command)      {}
func (nopRecorder) WakeLatency(time.Duration)  {}
func (nopRecorder) WriteLatency(time.Duration) {}
func (nopRecorder) SessionStartFailed()        {}
func (nopRecorder) SessionActive()             {}
func (nopRecorder) Dropped(string)             {}
func (nopRecorder) ControlWrite(bool)          {}

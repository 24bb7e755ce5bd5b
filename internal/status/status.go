// Package status provides a thread-safe status tracker for the speech-responder daemon.
// It is written by the inference loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/responder"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Transport     string
	Broker        string
	LocalName     string
	Feedback      bool
	IdleTimeoutMs int64
	WarmupCalls   int
	HTTPAddr      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Responder     responder.Stats
	Color         logic.Color
	Heartbeat     bool
	LinkConnected bool
	StartTime     time.Time
	Now           time.Time
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Responder: responder.Stats{
				Session:     responder.SessionUninitialized,
				LastCommand: logic.CommandSilence,
			},
			Color:     logic.ColorOff,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records controller state and the current LED outputs.
// Called from the run loop after every inference result.
func (t *Tracker) Update(stats responder.Stats, color logic.Color, heartbeat bool) {
	t.mu.Lock()
	t.snap.Responder = stats
	t.snap.Color = color
	t.snap.Heartbeat = heartbeat
	t.mu.Unlock()
}

// SetLinkConnected sets whether a peer is connected to the radio session.
func (t *Tracker) SetLinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.LinkConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

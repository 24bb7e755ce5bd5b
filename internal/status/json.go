package status

import (
	"encoding/json"
	"time"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Session       string       `json:"session"`
	LastCommand   *CommandJSON `json:"last_command,omitempty"`
	LED           LEDJSON      `json:"led"`
	Latency       LatencyJSON  `json:"latency_ms"`
	Calls         uint64       `json:"inference_calls"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Link          LinkJSON     `json:"link"`
	Counts        CountsJSON   `json:"command_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// CommandJSON describes the command currently holding the LEDs.
type CommandJSON struct {
	Command string `json:"command"`
	Label   string `json:"label"`
	Score   uint8  `json:"score"`
	AtMs    int32  `json:"at_ms"`
}

// LEDJSON reports LED outputs.
type LEDJSON struct {
	Color     string `json:"color"`
	Heartbeat bool   `json:"heartbeat"`
}

// LatencyJSON reports the most recent measurements.
type LatencyJSON struct {
	Wake        float64 `json:"wake"`
	Write       float64 `json:"write"`
	SendPending bool    `json:"send_pending"`
}

// LinkJSON reports radio session state.
type LinkJSON struct {
	Transport       string `json:"transport"`
	Connected       bool   `json:"connected"`
	WarmupLeft      int    `json:"warmup_left"`
	SessionFailures int    `json:"session_failures"`
}

// CountsJSON is the JSON representation of command counts.
type CountsJSON struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Unknown int `json:"unknown"`
	Silence int `json:"silence"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Transport     string `json:"transport"`
	Broker        string `json:"broker,omitempty"`
	LocalName     string `json:"local_name"`
	Feedback      bool   `json:"led_feedback"`
	IdleTimeoutMs int64  `json:"idle_timeout_ms"`
	WarmupCalls   int    `json:"warmup_calls"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	r := snap.Responder
	color := string(snap.Color)
	if color == "" {
		color = string(logic.ColorOff)
	}
	inner := StatusInner{
		Session: string(r.Session),
		LED:     LEDJSON{Color: color, Heartbeat: snap.Heartbeat},
		Latency: LatencyJSON{
			Wake:        logic.Milliseconds(r.WakeLatency),
			Write:       logic.Milliseconds(r.WriteLatency),
			SendPending: r.SendPending,
		},
		Calls:         r.Calls,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Link: LinkJSON{
			Transport:       snap.Config.Transport,
			Connected:       snap.LinkConnected,
			WarmupLeft:      r.WarmupLeft,
			SessionFailures: r.SessionFailures,
		},
		Counts: CountsJSON{
			Yes:     r.Counts.Yes,
			No:      r.Counts.No,
			Unknown: r.Counts.Unknown,
			Silence: r.Counts.Silence,
		},
		Config: ConfigJSON{
			Transport:     snap.Config.Transport,
			Broker:        snap.Config.Broker,
			LocalName:     snap.Config.LocalName,
			Feedback:      snap.Config.Feedback,
			IdleTimeoutMs: snap.Config.IdleTimeoutMs,
			WarmupCalls:   snap.Config.WarmupCalls,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if inner.Session == "" {
		inner.Session = "UNINITIALIZED"
	}
	if r.CommandActive {
		inner.LastCommand = &CommandJSON{
			Command: string(r.LastCommand),
			Label:   r.LastLabel,
			Score:   r.LastScore,
			AtMs:    r.LastCommandTime,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a lifecycle event (STARTUP, SHUTDOWN).
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

package logic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decision is the set of actions an accepted command asks for.
// It is computed without touching any hardware.
type Decision struct {
	Command Command
	// ResetLEDs switches all RGB channels off before Color is applied.
	ResetLEDs bool
	// Color is the colour to light after the reset. ColorOff means none.
	Color Color
	// Message is the command-channel payload, empty for silence.
	Message string
	// StartSession is set when the command should bring the radio session up.
	StartSession bool
}

// Classify maps a label to a command by its first letter.
func Classify(label string) Command {
	if label == "" {
		return CommandSilence
	}
	switch label[0] {
	case 'y':
		return CommandYes
	case 'n':
		return CommandNo
	case 'u':
		return CommandUnknown
	}
	return CommandSilence
}

// Decide computes the LED and radio actions for a new command event.
// When feedback is false the colour is suppressed; everything else is kept.
func Decide(ev Event, feedback bool) Decision {
	cmd := Classify(ev.Label)
	d := Decision{Command: cmd, Color: ColorOff}
	if cmd == CommandSilence {
		return d
	}

	d.ResetLEDs = true
	d.Message = MessageFor(cmd)
	d.StartSession = cmd == CommandYes
	if feedback {
		d.Color = ColorFor(cmd)
	}
	return d
}

// MessageFor returns the command-channel payload for cmd.
func MessageFor(cmd Command) string {
	switch cmd {
	case CommandYes:
		return MessageYes
	case CommandNo:
		return MessageNo
	case CommandUnknown:
		return MessageUnknown
	}
	return ""
}

// ColorFor returns the LED colour shown for cmd.
func ColorFor(cmd Command) Color {
	switch cmd {
	case CommandYes:
		return ColorGreen
	case CommandNo:
		return ColorRed
	case CommandUnknown:
		return ColorBlue
	}
	return ColorOff
}

// ColorForCode maps a control-channel code to a colour.
// ok is false for codes other than 1, 2 and 3.
func ColorForCode(code ControlCode) (c Color, ok bool) {
	switch code {
	case ControlGreen:
		return ColorGreen, true
	case ControlRed:
		return ColorRed, true
	case ControlBlue:
		return ColorBlue, true
	}
	return ColorOff, false
}

// IdleExpired reports whether a command seen at last has timed out at now.
// The boundary is strict: exactly timeoutMs later is not expired.
func IdleExpired(last, now int32, timeoutMs int32) bool {
	return now-last > timeoutMs
}

// HeartbeatOn reports whether the heartbeat LED is lit on the given call count.
func HeartbeatOn(count uint64) bool {
	return count&1 == 1
}

// Metric names used on the metrics channel.
const (
	MetricWakeLatency  = "wake_latency"
	MetricWriteLatency = "ble_write_latency"
)

// Milliseconds converts d to fractional milliseconds at microsecond resolution.
func Milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// FormatLatency renders a metrics-channel report, e.g. "wake_latency:12.34".
func FormatLatency(name string, d time.Duration) string {
	return fmt.Sprintf("%s:%.2f", name, Milliseconds(d))
}

// ParseLatency splits a metrics-channel report into its name and value.
func ParseLatency(s string) (name string, ms float64, err error) {
	name, value, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || name == "" {
		return "", 0, fmt.Errorf("malformed metric %q", s)
	}
	ms, err = strconv.ParseFloat(strings.TrimSuffix(value, "ms"), 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse metric %q: %w", s, err)
	}
	return name, ms, nil
}

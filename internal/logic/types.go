// Package logic contains the pure decision rules of the speech responder.
// This package has NO external dependencies (no GPIO, radio, OS, or time.Sleep).
// Time is always injectable via parameters.
package logic

// Command is the output action a detected keyword maps to.
type Command string

const (
	CommandYes     Command = "YES"
	CommandNo      Command = "NO"
	CommandUnknown Command = "UNKNOWN"
	CommandSilence Command = "SILENCE"
)

// Commands lists every command in display order.
var Commands = []Command{CommandYes, CommandNo, CommandUnknown, CommandSilence}

// Color is the state of the RGB status LED.
type Color string

const (
	ColorOff   Color = "OFF"
	ColorGreen Color = "GREEN"
	ColorRed   Color = "RED"
	ColorBlue  Color = "BLUE"
)

// Event is one classification result handed over by the inference loop.
type Event struct {
	// Timestamp is inference time in milliseconds.
	Timestamp int32
	// Label is the detected keyword ("yes", "no", "unknown", "silence", ...).
	Label string
	// Score is the classifier confidence, 0-255.
	Score uint8
	// IsNew is set when the label differs from the recent steady state.
	IsNew bool
}

// Messages written to the command channel.
const (
	MessageAnnounce = "Command: PlayGame"
	MessageYes      = "Yes"
	MessageNo       = "No"
	MessageUnknown  = "Unknown"
)

// Timing and sizing defaults.
const (
	// IdleTimeoutMs is how long the last command keeps the LEDs lit.
	IdleTimeoutMs = 3000
	// WarmupCalls is the number of calls after session activation that carry
	// the announcement broadcast.
	WarmupCalls = 50
)

// ControlCode is the single byte a remote peer writes to the control channel.
type ControlCode byte

const (
	ControlGreen ControlCode = 1
	ControlRed   ControlCode = 2
	ControlBlue  ControlCode = 3
)

// EventCounts tracks the number of each accepted command since startup.
type EventCounts struct {
	Yes     int
	No      int
	Unknown int
	Silence int
}

// Add increments the counter for cmd.
func (c *EventCounts) Add(cmd Command) {
	switch cmd {
	case CommandYes:
		c.Yes++
	case CommandNo:
		c.No++
	case CommandUnknown:
		c.Unknown++
	default:
		c.Silence++
	}
}

// Package gpio drives the status LED outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Line identifies one LED output.
type Line int

const (
	LineHeartbeat Line = iota
	LineRed
	LineGreen
	LineBlue
)

// RGBLines are the three channels of the status LED.
var RGBLines = []Line{LineRed, LineGreen, LineBlue}

func (l Line) String() string {
	switch l {
	case LineHeartbeat:
		return "heartbeat"
	case LineRed:
		return "red"
	case LineGreen:
		return "green"
	case LineBlue:
		return "blue"
	}
	return fmt.Sprintf("line(%d)", int(l))
}

// Writer sets LED outputs.
type Writer interface {
	// Set drives a line to its logical state (true = lit).
	// RGB lines are active-low: the implementation drives them low when lit.
	Set(line Line, on bool) error

	// Close switches all lines off and releases GPIO resources.
	Close() error
}

// Pins maps each LED to a GPIO line offset.
type Pins struct {
	Heartbeat int
	Red       int
	Green     int
	Blue      int
}

// Pin definitions (BCM numbering)
const (
	DefaultPinHeartbeat = 17
	DefaultPinRed       = 22
	DefaultPinGreen     = 27
	DefaultPinBlue      = 24
)

// DefaultPins returns the board wiring used by the responder hat.
func DefaultPins() Pins {
	return Pins{
		Heartbeat: DefaultPinHeartbeat,
		Red:       DefaultPinRed,
		Green:     DefaultPinGreen,
		Blue:      DefaultPinBlue,
	}
}

// Offset returns the pin configured for line.
func (p Pins) Offset(line Line) int {
	switch line {
	case LineRed:
		return p.Red
	case LineGreen:
		return p.Green
	case LineBlue:
		return p.Blue
	}
	return p.Heartbeat
}

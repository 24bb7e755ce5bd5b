//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives LEDs on actual hardware using the Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[Line]*gpiocdev.Line
}

// NewRealWriter requests the LED lines on the named chip (e.g. "gpiochip0").
// All lines start logically off.
func NewRealWriter(chipName string, pins Pins) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("speech-responder"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip, lines: make(map[Line]*gpiocdev.Line, 4)}

	hb, err := chip.RequestLine(pins.Heartbeat, gpiocdev.AsOutput(0))
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("request heartbeat pin %d: %w", pins.Heartbeat, err)
	}
	w.lines[LineHeartbeat] = hb

	// The RGB LED is common-anode: a channel is lit when its pin is driven low.
	for _, line := range RGBLines {
		offset := pins.Offset(line)
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.AsActiveLow)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", line, offset, err)
		}
		w.lines[line] = l
	}

	return w, nil
}

// Set drives line to the logical state on.
func (w *RealWriter) Set(line Line, on bool) error {
	l, ok := w.lines[line]
	if !ok {
		return fmt.Errorf("set %s: line not requested", line)
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", line, err)
	}
	return nil
}

// Close switches every LED off and releases the lines.
// Lines are returned as inputs so the LEDs are not held by a dead process.
func (w *RealWriter) Close() error {
	var errs []error

	for line, l := range w.lines {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch off %s: %w", line, err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", line, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", line, err))
		}
	}
	w.lines = nil

	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

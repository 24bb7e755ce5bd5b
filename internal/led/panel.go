// Package led drives the RGB status LED and the heartbeat LED.
package led

import (
	"errors"
	"sync"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/gpio"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
)

// Panel serialises LED writes from the inference loop and the radio's
// control-write callback. Writes are not arbitrated: the last one wins.
type Panel struct {
	mu        sync.Mutex
	out       gpio.Writer
	color     logic.Color
	heartbeat bool
}

// NewPanel wraps a GPIO writer.
func NewPanel(out gpio.Writer) *Panel {
	return &Panel{out: out, color: logic.ColorOff}
}

// Init switches every RGB channel and the heartbeat off.
func (p *Panel) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.setRGB(logic.ColorOff)
	if hbErr := p.out.Set(gpio.LineHeartbeat, false); hbErr != nil {
		err = errors.Join(err, hbErr)
	}
	p.heartbeat = false
	return err
}

// SetColor switches all RGB channels off and lights the one for c.
func (p *Panel) SetColor(c logic.Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setRGB(c)
}

// Off restores the idle (unlit) RGB state.
func (p *Panel) Off() error {
	return p.SetColor(logic.ColorOff)
}

// SetHeartbeat drives the heartbeat LED.
func (p *Panel) SetHeartbeat(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.out.Set(gpio.LineHeartbeat, on); err != nil {
		return err
	}
	p.heartbeat = on
	return nil
}

// Color returns the colour last written.
func (p *Panel) Color() logic.Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.color
}

// Heartbeat returns the heartbeat state last written.
func (p *Panel) Heartbeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heartbeat
}

// setRGB must be called with mu held.
func (p *Panel) setRGB(c logic.Color) error {
	var errs []error
	for _, line := range gpio.RGBLines {
		if err := p.out.Set(line, false); err != nil {
			errs = append(errs, err)
		}
	}
	if line, ok := lineFor(c); ok {
		if err := p.out.Set(line, true); err != nil {
			errs = append(errs, err)
		}
	}
	p.color = c
	return errors.Join(errs...)
}

func lineFor(c logic.Color) (gpio.Line, bool) {
	switch c {
	case logic.ColorRed:
		return gpio.LineRed, true
	case logic.ColorGreen:
		return gpio.LineGreen, true
	case logic.ColorBlue:
		return gpio.LineBlue, true
	}
	return 0, false
}

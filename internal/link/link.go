// Package link defines the wireless session the responder talks over.
// Implementations live in internal/ble (GATT peripheral) and internal/mqtt
// (broker topics); FakeLink is used in tests.
package link

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotConnected is returned by Write when no peer is listening.
var ErrNotConnected = errors.New("link: no peer connected")

// Channel is a logical characteristic within the session.
type Channel string

const (
	ChannelCommand Channel = "command"
	ChannelMetrics Channel = "metrics"
	ChannelControl Channel = "control"
)

// ControlHandler is called with the raw value a peer wrote to the control
// channel. It runs on the transport's goroutine, not the inference loop.
type ControlHandler func(value []byte)

// Link is a lazily started wireless session.
type Link interface {
	// Begin brings the transport up, registers the service and its
	// characteristics, and installs the control handler.
	Begin(profile Profile, onControl ControlHandler) error

	// Advertise makes the session discoverable. Safe to call repeatedly.
	Advertise() error

	// Write sends a string value on a channel.
	// Returns ErrNotConnected if no peer is connected.
	Write(ch Channel, value string) error

	// Connected reports whether a peer is currently connected.
	Connected() bool

	// Close tears the session down.
	Close() error
}

// Profile describes the advertised service and its characteristics.
type Profile struct {
	LocalName   string
	ServiceUUID string
	CommandUUID string
	ControlUUID string
	MetricsUUID string
}

// Default profile values. The command characteristic keeps the heart-rate
// measurement UUID existing listeners look for.
const (
	DefaultLocalName   = "Nano33BLE"
	DefaultServiceUUID = "0000180d-0000-1000-8000-00805f9b34fb"
	DefaultCommandUUID = "00002a37-0000-1000-8000-00805f9b34fb"
	DefaultControlUUID = "f0001111-0451-4000-b000-000000000000"
	DefaultMetricsUUID = "f0001112-0451-4000-b000-000000000000"
)

// MaxValueLen is the largest string a characteristic carries.
const MaxValueLen = 32

// DefaultProfile returns the stock service layout.
func DefaultProfile() Profile {
	return Profile{
		LocalName:   DefaultLocalName,
		ServiceUUID: DefaultServiceUUID,
		CommandUUID: DefaultCommandUUID,
		ControlUUID: DefaultControlUUID,
		MetricsUUID: DefaultMetricsUUID,
	}
}

// Validate checks the name and every UUID.
func (p Profile) Validate() error {
	if p.LocalName == "" {
		return errors.New("profile: local name is empty")
	}
	fields := []struct {
		name, value string
	}{
		{"service", p.ServiceUUID},
		{"command", p.CommandUUID},
		{"control", p.ControlUUID},
		{"metrics", p.MetricsUUID},
	}
	seen := make(map[uuid.UUID]string, len(fields))
	for _, f := range fields {
		id, err := uuid.Parse(f.value)
		if err != nil {
			return fmt.Errorf("profile: %s uuid %q: %w", f.name, f.value, err)
		}
		if other, dup := seen[id]; dup {
			return fmt.Errorf("profile: %s uuid duplicates %s", f.name, other)
		}
		seen[id] = f.name
	}
	return nil
}

// UUID returns the characteristic UUID for a channel.
func (p Profile) UUID(ch Channel) string {
	switch ch {
	case ChannelCommand:
		return p.CommandUUID
	case ChannelMetrics:
		return p.MetricsUUID
	case ChannelControl:
		return p.ControlUUID
	}
	return ""
}

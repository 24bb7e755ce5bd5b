//go:build !linux

package ble

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

// Link is not available on non-Linux platforms.
type Link struct{}

var _ link.Link = (*Link)(nil)

// New returns a Link whose Begin always fails.
func New(log *zap.Logger) *Link {
	return &Link{}
}

// Begin is not implemented on non-Linux platforms.
func (l *Link) Begin(profile link.Profile, onControl link.ControlHandler) error {
	return errors.New("ble: not supported on this platform (requires Linux)")
}

// Advertise is not implemented on non-Linux platforms.
func (l *Link) Advertise() error {
	return errors.New("ble: not supported")
}

// Write always reports no peer.
func (l *Link) Write(ch link.Channel, value string) error {
	return link.ErrNotConnected
}

// Connected is always false.
func (l *Link) Connected() bool {
	return false
}

// Close is a no-op.
func (l *Link) Close() error {
	return nil
}

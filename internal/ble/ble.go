// Package ble implements link.Link as a Bluetooth Low Energy GATT peripheral.
//
// BlueZ does not report peripheral-role connections through the bluetooth
// package's connect handler, so centrals are tracked by watching the
// Connected property of org.bluez.Device1 objects on the system bus.
package ble

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

// peers tracks connected centrals by address.
type peers struct {
	mu    sync.Mutex
	addrs map[string]struct{}
}

func (p *peers) update(addr string, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addrs == nil {
		p.addrs = make(map[string]struct{})
	}
	if connected {
		p.addrs[addr] = struct{}{}
	} else {
		delete(p.addrs, addr)
	}
}

func (p *peers) any() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.addrs) > 0
}

func (p *peers) reset() {
	p.mu.Lock()
	p.addrs = nil
	p.mu.Unlock()
}

// clamp truncates value to the characteristic size.
func clamp(value string) []byte {
	if len(value) > link.MaxValueLen {
		value = value[:link.MaxValueLen]
	}
	return []byte(value)
}

// controlHandler wraps h so malformed or empty writes never reach it and a
// panicking handler cannot take down the stack's event loop.
func controlHandler(log *zap.Logger, h link.ControlHandler) func(value []byte) {
	return func(value []byte) {
		if h == nil || len(value) == 0 {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("control handler panic", zap.Any("panic", r))
			}
		}()
		log.Debug("control write", zap.Binary("value", value))
		h(append([]byte(nil), value...))
	}
}

const (
	deviceInterface   = "org.bluez.Device1"
	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// connectionChange extracts a Device1.Connected transition from a
// PropertiesChanged signal. ok is false for every other signal.
func connectionChange(sig *dbus.Signal) (addr string, connected, ok bool) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return "", false, false
	}
	if iface, _ := sig.Body[0].(string); iface != deviceInterface {
		return "", false, false
	}
	changed, isMap := sig.Body[1].(map[string]dbus.Variant)
	if !isMap {
		return "", false, false
	}
	v, found := changed["Connected"]
	if !found {
		return "", false, false
	}
	connected, isBool := v.Value().(bool)
	if !isBool {
		return "", false, false
	}
	addr, ok = addressFromPath(sig.Path)
	if !ok {
		return "", false, false
	}
	return addr, connected, true
}

// addressFromPath turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into
// AA:BB:CC:DD:EE:FF.
func addressFromPath(p dbus.ObjectPath) (string, bool) {
	s := string(p)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return "", false
	}
	mac := s[i+len("/dev_"):]
	if len(mac) != 17 || strings.Contains(mac, "/") {
		return "", false
	}
	return strings.ReplaceAll(mac, "_", ":"), true
}

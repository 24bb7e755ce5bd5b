package ble

import (
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

func TestPeersTracking(t *testing.T) {
	var p peers
	assert.False(t, p.any())

	p.update("AA:BB", true)
	p.update("CC:DD", true)
	assert.True(t, p.any())

	p.update("AA:BB", false)
	assert.True(t, p.any())
	p.update("CC:DD", false)
	assert.False(t, p.any())

	p.update("EE:FF", true)
	p.reset()
	assert.False(t, p.any())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, []byte("Yes"), clamp("Yes"))
	long := strings.Repeat("x", link.MaxValueLen+10)
	assert.Len(t, clamp(long), link.MaxValueLen)
}

func TestControlHandlerFiltersEmptyWrites(t *testing.T) {
	var calls [][]byte
	h := controlHandler(zaptest.NewLogger(t), func(v []byte) { calls = append(calls, v) })

	h(nil)
	h([]byte{})
	h([]byte{3})

	assert.Equal(t, [][]byte{{3}}, calls)
}

func TestControlHandlerCopiesValue(t *testing.T) {
	var got []byte
	h := controlHandler(zaptest.NewLogger(t), func(v []byte) { got = v })

	buf := []byte{1, 9}
	h(buf)
	buf[0] = 2

	assert.Equal(t, []byte{1, 9}, got)
}

func TestControlHandlerRecoversPanic(t *testing.T) {
	h := controlHandler(zaptest.NewLogger(t), func(v []byte) { panic("boom") })
	assert.NotPanics(t, func() { h([]byte{1}) })
}

func TestControlHandlerNil(t *testing.T) {
	h := controlHandler(zaptest.NewLogger(t), nil)
	assert.NotPanics(t, func() { h([]byte{1}) })
}

func deviceSignal(path string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: dbus.ObjectPath(path),
		Name: propertiesChanged,
		Body: []interface{}{deviceInterface, changed, []string{}},
	}
}

func TestConnectionChange(t *testing.T) {
	const dev = "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"
	tests := []struct {
		name      string
		sig       *dbus.Signal
		addr      string
		connected bool
		ok        bool
	}{
		{
			name:      "connected",
			sig:       deviceSignal(dev, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}),
			addr:      "AA:BB:CC:DD:EE:FF",
			connected: true,
			ok:        true,
		},
		{
			name: "disconnected",
			sig:  deviceSignal(dev, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false), "RSSI": dbus.MakeVariant(int16(-40))}),
			addr: "AA:BB:CC:DD:EE:FF",
			ok:   true,
		},
		{
			name: "other property",
			sig:  deviceSignal(dev, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}),
		},
		{
			name: "adapter path",
			sig:  deviceSignal("/org/bluez/hci0", map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}),
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Path: dbus.ObjectPath(dev),
				Name: propertiesChanged,
				Body: []interface{}{"org.bluez.GattCharacteristic1", map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}},
			},
		},
		{
			name: "other signal",
			sig:  &dbus.Signal{Path: dbus.ObjectPath(dev), Name: "org.freedesktop.DBus.ObjectManager.InterfacesAdded"},
		},
		{
			name: "short body",
			sig:  &dbus.Signal{Path: dbus.ObjectPath(dev), Name: propertiesChanged, Body: []interface{}{deviceInterface}},
		},
		{
			name: "nil",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, connected, ok := connectionChange(tt.sig)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.addr, addr)
			assert.Equal(t, tt.connected, connected)
		})
	}
}

func TestAddressFromPath(t *testing.T) {
	addr, ok := addressFromPath("/org/bluez/hci1/dev_01_23_45_67_89_AB")
	assert.True(t, ok)
	assert.Equal(t, "01:23:45:67:89:AB", addr)

	_, ok = addressFromPath("/org/bluez/hci0/dev_01_23_45_67_89_AB/service0010")
	assert.False(t, ok)
	_, ok = addressFromPath("/org/bluez/hci0")
	assert.False(t, ok)
}

//go:build linux

package ble

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

// adapter is the part of *bluetooth.Adapter the link uses.
type adapter interface {
	Enable() error
	SetConnectHandler(func(device bluetooth.Device, connected bool))
	AddService(s *bluetooth.Service) error
}

// advertiser is the part of *bluetooth.Advertisement the link uses.
type advertiser interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

// watchFunc reports central connections until the returned stop is called.
type watchFunc func(onChange func(addr string, connected bool)) (stop func(), err error)

// Link is a GATT peripheral on the local BlueZ adapter.
type Link struct {
	adapter       adapter
	newAdvertiser func() advertiser
	watch         watchFunc
	log           *zap.Logger

	mu          sync.Mutex
	enabled     bool
	chars       map[link.Channel]*bluetooth.Characteristic
	adv         advertiser
	stopWatch   func()
	advertising bool
	peers       peers
}

var _ link.Link = (*Link)(nil)

// New creates a Link on the default adapter. Nothing is touched until Begin.
func New(log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	a := bluetooth.DefaultAdapter
	return &Link{
		adapter:       a,
		newAdvertiser: func() advertiser { return a.DefaultAdvertisement() },
		watch:         watchDevices,
		log:           log.Named("ble"),
	}
}

// Begin enables the adapter, registers the service and starts advertising.
// Each setup step runs once; a retried Begin resumes after the last step
// that succeeded. An advertising failure once the service is registered is
// logged and left to Advertise.
func (l *Link) Begin(profile link.Profile, onControl link.ControlHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		if err := l.adapter.Enable(); err != nil {
			return fmt.Errorf("enable adapter: %w", err)
		}
		l.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			l.onConnection(device.Address.String(), connected)
		})
		l.enabled = true
	}

	serviceID, err := bluetooth.ParseUUID(profile.ServiceUUID)
	if err != nil {
		return fmt.Errorf("service uuid: %w", err)
	}

	if l.chars == nil {
		chars, err := l.addService(serviceID, profile, onControl)
		if err != nil {
			return err
		}
		l.chars = chars
		l.log.Info("service registered", zap.String("name", profile.LocalName), zap.String("service", profile.ServiceUUID))
	}

	if l.stopWatch == nil {
		stop, err := l.watch(l.onConnection)
		if err != nil {
			return fmt.Errorf("watch connections: %w", err)
		}
		l.stopWatch = stop
	}

	if l.adv == nil {
		adv := l.newAdvertiser()
		if err := adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    profile.LocalName,
			ServiceUUIDs: []bluetooth.UUID{serviceID},
		}); err != nil {
			return fmt.Errorf("configure advertisement: %w", err)
		}
		l.adv = adv
	}

	if err := l.advertiseLocked(); err != nil {
		l.log.Warn("advertising not started yet", zap.Error(err))
	}
	return nil
}

func (l *Link) addService(serviceID bluetooth.UUID, profile link.Profile, onControl link.ControlHandler) (map[link.Channel]*bluetooth.Characteristic, error) {
	ids := make(map[link.Channel]bluetooth.UUID, 3)
	for _, ch := range []link.Channel{link.ChannelCommand, link.ChannelControl, link.ChannelMetrics} {
		id, err := bluetooth.ParseUUID(profile.UUID(ch))
		if err != nil {
			return nil, fmt.Errorf("%s uuid: %w", ch, err)
		}
		ids[ch] = id
	}

	chars := map[link.Channel]*bluetooth.Characteristic{
		link.ChannelCommand: new(bluetooth.Characteristic),
		link.ChannelControl: new(bluetooth.Characteristic),
		link.ChannelMetrics: new(bluetooth.Characteristic),
	}
	notify := bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission
	control := controlHandler(l.log, onControl)

	err := l.adapter.AddService(&bluetooth.Service{
		UUID: serviceID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: chars[link.ChannelCommand],
				UUID:   ids[link.ChannelCommand],
				Value:  []byte{},
				Flags:  notify | bluetooth.CharacteristicWritePermission,
			},
			{
				Handle: chars[link.ChannelControl],
				UUID:   ids[link.ChannelControl],
				Value:  []byte{0},
				Flags:  notify | bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					if offset != 0 {
						return
					}
					control(value)
				},
			},
			{
				Handle: chars[link.ChannelMetrics],
				UUID:   ids[link.ChannelMetrics],
				Value:  []byte{},
				Flags:  notify,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add service: %w", err)
	}
	return chars, nil
}

func (l *Link) onConnection(addr string, connected bool) {
	l.peers.update(addr, connected)
	l.log.Info("central connection changed", zap.String("addr", addr), zap.Bool("connected", connected))
}

// Advertise starts advertising if it is not already running.
func (l *Link) Advertise() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.advertiseLocked()
}

func (l *Link) advertiseLocked() error {
	if l.adv == nil {
		return fmt.Errorf("advertise: session not started")
	}
	if l.advertising {
		return nil
	}
	if err := l.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	l.advertising = true
	return nil
}

// Write updates a characteristic value and notifies subscribers.
func (l *Link) Write(ch link.Channel, value string) error {
	if !l.peers.any() {
		return link.ErrNotConnected
	}
	l.mu.Lock()
	c, ok := l.chars[ch]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("write %s: no such characteristic", ch)
	}
	if _, err := c.Write(clamp(value)); err != nil {
		return fmt.Errorf("write %s: %w", ch, err)
	}
	return nil
}

// Connected reports whether any central is connected.
func (l *Link) Connected() bool {
	return l.peers.any()
}

// Close stops watching connections and stops advertising.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopWatch != nil {
		l.stopWatch()
		l.stopWatch = nil
	}
	l.peers.reset()
	if l.adv != nil && l.advertising {
		l.advertising = false
		if err := l.adv.Stop(); err != nil {
			return fmt.Errorf("stop advertising: %w", err)
		}
	}
	return nil
}

// watchDevices follows Device1.Connected on the shared system bus.
func watchDevices(onChange func(addr string, connected bool)) (func(), error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	match := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceInterface),
	}
	if err := bus.AddMatchSignal(match...); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, 16)
	bus.Signal(signals)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				if addr, connected, ok := connectionChange(sig); ok {
					onChange(addr, connected)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		bus.RemoveSignal(signals)
		_ = bus.RemoveMatchSignal(match...)
		close(done)
	}, nil
}

package link

import "sync"

// FakeLink records session activity for test assertions.
type FakeLink struct {
	mu sync.Mutex

	// BeginError, if set, will be returned by Begin and the session stays down.
	BeginError error
	// WriteError, if set, will be returned by Write instead of recording.
	WriteError error

	// Profile is the profile passed to the last successful Begin.
	Profile Profile
	// BeginCalls counts Begin attempts, successful or not.
	BeginCalls int
	// Advertisements counts Advertise calls.
	Advertisements int
	// Writes contains every value transmitted, per channel.
	Writes map[Channel][]string
	// Dropped contains values written while not connected.
	Dropped map[Channel][]string
	// Closed tracks if Close was called.
	Closed bool

	connected bool
	started   bool
	onControl ControlHandler
}

// NewFakeLink creates a disconnected FakeLink.
func NewFakeLink() *FakeLink {
	return &FakeLink{
		Writes:  make(map[Channel][]string),
		Dropped: make(map[Channel][]string),
	}
}

// Begin records the profile and control handler.
func (f *FakeLink) Begin(profile Profile, onControl ControlHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BeginCalls++
	if f.BeginError != nil {
		return f.BeginError
	}
	f.Profile = profile
	f.onControl = onControl
	f.started = true
	return nil
}

// Advertise counts the call.
func (f *FakeLink) Advertise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Advertisements++
	return nil
}

// Write records the value, or drops it when not connected.
func (f *FakeLink) Write(ch Channel, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if !f.connected {
		f.Dropped[ch] = append(f.Dropped[ch], value)
		return ErrNotConnected
	}
	f.Writes[ch] = append(f.Writes[ch], value)
	return nil
}

// Connected reports the scripted connection state.
func (f *FakeLink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected scripts whether a peer is connected.
func (f *FakeLink) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

// Started reports whether Begin succeeded.
func (f *FakeLink) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// PeerWrite simulates a remote peer writing value to the control channel.
// It reports false if no handler is installed.
func (f *FakeLink) PeerWrite(value []byte) bool {
	f.mu.Lock()
	h := f.onControl
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(value)
	return true
}

// WritesOn returns a copy of the values transmitted on ch.
func (f *FakeLink) WritesOn(ch Channel) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Writes[ch]...)
}

// DroppedOn returns a copy of the values dropped on ch.
func (f *FakeLink) DroppedOn(ch Channel) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Dropped[ch]...)
}

// Close marks the link as closed.
func (f *FakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.started = false
	f.connected = false
	return nil
}

package link

// Offline is a Link with no radio behind it. The session comes up and
// advertises, but no peer ever connects, so every write is dropped.
type Offline struct{}

func (Offline) Begin(Profile, ControlHandler) error { return nil }
func (Offline) Advertise() error                    { return nil }
func (Offline) Write(Channel, string) error         { return ErrNotConnected }
func (Offline) Connected() bool                     { return false }
func (Offline) Close() error                        { return nil }

package gpio

// FakeWriter is a test double that records LED writes.
type FakeWriter struct {
	// States holds the last logical value written to each line.
	States map[Line]bool

	// Writes contains every write in order.
	Writes []Write

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set() and the write is not recorded.
	SetError error
}

// Write is a single recorded Set call.
type Write struct {
	Line Line
	On   bool
}

// NewFakeWriter creates a FakeWriter with every line off.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{States: make(map[Line]bool)}
}

// Set records the write.
func (f *FakeWriter) Set(line Line, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.States[line] = on
	f.Writes = append(f.Writes, Write{Line: line, On: on})
	return nil
}

// Close switches all lines off and marks the writer as closed.
func (f *FakeWriter) Close() error {
	for line := range f.States {
		f.States[line] = false
	}
	f.Closed = true
	return nil
}

// WritesTo returns the recorded writes for one line.
func (f *FakeWriter) WritesTo(line Line) []bool {
	var out []bool
	for _, w := range f.Writes {
		if w.Line == line {
			out = append(out, w.On)
		}
	}
	return out
}

// Reset clears recorded writes and states.
func (f *FakeWriter) Reset() {
	f.States = make(map[Line]bool)
	f.Writes = nil
	f.Closed = false
	f.SetError = nil
}

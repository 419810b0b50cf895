package gpio

import "sync"

// FakeOutput is a test double that records every level written.
type FakeOutput struct {
	mu sync.Mutex

	// Writes holds every value passed to a successful Set, in order.
	Writes []bool

	// SetError, if set, will be returned by Set() and the level is unchanged.
	SetError error

	on     bool
	closed bool
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.on = on
	f.Writes = append(f.Writes, on)
	return nil
}

// Close parks the output off and marks it closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.closed = true
	return nil
}

// On returns the current level.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Toggles counts level changes across the recorded writes, starting from off.
func (f *FakeOutput) Toggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, prev := 0, false
	for _, w := range f.Writes {
		if w != prev {
			n++
		}
		prev = w
	}
	return n
}

// Fail makes subsequent Set calls return err. Pass nil to recover.
func (f *FakeOutput) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetError = err
}

// FakeWatcher is a Watcher whose edges are triggered by the test.
type FakeWatcher struct {
	mu      sync.Mutex
	handler func()
	closed  bool
}

// NewFakeWatcher registers handler for edges delivered by Trigger.
func NewFakeWatcher(handler func()) *FakeWatcher {
	return &FakeWatcher{handler: handler}
}

// Trigger simulates a falling edge. Edges after Close are dropped.
func (w *FakeWatcher) Trigger() {
	w.mu.Lock()
	h, closed := w.handler, w.closed
	w.mu.Unlock()
	if !closed && h != nil {
		h()
	}
}

func (w *FakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Package irq bridges the RTC interrupt line into the control loop.
//
// The edge handler runs on a goroutine owned by the GPIO library and must
// only call Raise. Everything else, including the I2C traffic needed to
// service the alarm, happens on the control loop after Take.
package irq

import "sync/atomic"

// Flag is a pending-interrupt indicator. The zero value is ready to use.
type Flag struct {
	pending atomic.Bool
	raised  atomic.Uint64
}

// Raise marks an interrupt as pending.
func (f *Flag) Raise() {
	f.pending.Store(true)
	f.raised.Add(1)
}

// Take reports whether an interrupt was pending and clears it.
// Interrupts raised before Take are coalesced into one.
func (f *Flag) Take() bool {
	return f.pending.Swap(false)
}

// Pending reports whether an interrupt is waiting without clearing it.
func (f *Flag) Pending() bool {
	return f.pending.Load()
}

// Raised returns the total number of Raise calls.
func (f *Flag) Raised() uint64 {
	return f.raised.Load()
}

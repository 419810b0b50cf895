package rtc

import (
	"sync"
	"time"
)

type fakeAlarm struct {
	target  time.Time
	mode    MatchMode
	enabled bool
}

// FakeClock is a simulated DS3231 for testing. Time only moves through
// Advance and Set. Alarms fire on time-of-day match like the hardware.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	alarms     map[Slot]fakeAlarm
	fired      map[Slot]bool
	powerLost  bool
	squareWave bool
	closed     bool
	err        error

	// OnAlarm, if set, is called outside the lock whenever a slot fires.
	// Tests wire it to the interrupt flag to emulate the INT line.
	OnAlarm func(Slot)
}

// NewFakeClock creates a running clock at now with no alarms programmed.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{
		now:        Wall(now),
		alarms:     make(map[Slot]fakeAlarm),
		fired:      make(map[Slot]bool),
		squareWave: true,
	}
}

// Advance moves time forward, firing any enabled alarm whose match falls in
// (now, now+d].
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	from := f.now
	f.now = f.now.Add(d)
	var fired []Slot
	for _, slot := range []Slot{SlotOn, SlotOff} {
		a, ok := f.alarms[slot]
		if !ok || !a.enabled {
			continue
		}
		if !NextMatch(slot, from, a.target).After(f.now) {
			f.fired[slot] = true
			fired = append(fired, slot)
		}
	}
	hook := f.OnAlarm
	f.mu.Unlock()

	if hook != nil {
		for _, slot := range fired {
			hook(slot)
		}
	}
}

// Set jumps the clock without firing alarms.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = Wall(t)
}

// LosePower simulates a dead backup battery: the clock resets to t and the
// power-loss indicator is raised.
func (f *FakeClock) LosePower(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = Wall(t)
	f.powerLost = true
}

// Fire raises a slot's flag without moving time.
func (f *FakeClock) Fire(slot Slot) {
	f.mu.Lock()
	f.fired[slot] = true
	hook := f.OnAlarm
	f.mu.Unlock()
	if hook != nil {
		hook(slot)
	}
}

// Fail makes every subsequent call return err. Pass nil to recover.
func (f *FakeClock) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Alarm returns a slot's programmed target and whether it is enabled.
func (f *FakeClock) Alarm(slot Slot) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.alarms[slot]
	return a.target, a.enabled
}

// SquareWave reports whether the square-wave output is still enabled.
func (f *FakeClock) SquareWave() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.squareWave
}

// Closed reports whether Close was called.
func (f *FakeClock) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeClock) Now() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.now, nil
}

func (f *FakeClock) SetTime(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.now = Wall(t)
	f.powerLost = false
	return nil
}

func (f *FakeClock) LostPower() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.powerLost, nil
}

func (f *FakeClock) SetAlarm(slot Slot, target time.Time, mode MatchMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if !slot.valid() {
		return ErrBadSlot
	}
	if mode != MatchHour {
		return ErrBadMode
	}
	f.alarms[slot] = fakeAlarm{target: Wall(target), mode: mode, enabled: true}
	return nil
}

func (f *FakeClock) ClearAlarm(slot Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if !slot.valid() {
		return ErrBadSlot
	}
	f.fired[slot] = false
	return nil
}

func (f *FakeClock) AlarmFired(slot Slot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if !slot.valid() {
		return false, ErrBadSlot
	}
	return f.fired[slot], nil
}

func (f *FakeClock) DisableSquareWave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.squareWave = false
	return nil
}

func (f *FakeClock) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Package rtc provides access to the battery-backed real-time clock and its
// two hardware alarms.
//
// Readings are zone-less wall-clock values. They are carried as time.Time in
// time.UTC with the clock's fields copied verbatim, and no conversion is ever
// applied to them.
package rtc

import (
	"errors"
	"fmt"
	"time"
)

// Slot identifies one of the two hardware alarms.
type Slot int

const (
	// SlotOn is alarm 1. It drives the ON transition.
	SlotOn Slot = 1
	// SlotOff is alarm 2. It drives the OFF transition.
	SlotOff Slot = 2
)

func (s Slot) String() string {
	switch s {
	case SlotOn:
		return "on"
	case SlotOff:
		return "off"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

func (s Slot) valid() bool { return s == SlotOn || s == SlotOff }

// MatchMode selects which fields of an alarm target the hardware compares.
type MatchMode int

const (
	// MatchHour fires when the time of day matches the target and ignores
	// the date, so the alarm repeats every day. The OFF slot has no seconds
	// register and matches hour and minute only.
	MatchHour MatchMode = iota + 1
)

func (m MatchMode) String() string {
	if m == MatchHour {
		return "hour"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

var (
	// ErrNotPresent is returned when the device does not respond.
	ErrNotPresent = errors.New("rtc not present")
	// ErrBadSlot is returned for a slot other than SlotOn or SlotOff.
	ErrBadSlot = errors.New("invalid alarm slot")
	// ErrBadMode is returned for an unsupported match mode.
	ErrBadMode = errors.New("unsupported alarm match mode")
)

// Clock is the real-time clock with two alarm slots.
type Clock interface {
	// Now returns the current wall-clock reading.
	Now() (time.Time, error)
	// SetTime sets the clock and clears the power-loss indicator.
	SetTime(t time.Time) error
	// LostPower reports whether the oscillator stopped since the time was last set.
	LostPower() (bool, error)
	// SetAlarm programs a slot and enables its interrupt.
	SetAlarm(slot Slot, target time.Time, mode MatchMode) error
	// ClearAlarm clears a slot's fired flag.
	ClearAlarm(slot Slot) error
	// AlarmFired reports a slot's fired flag.
	AlarmFired(slot Slot) (bool, error)
	// DisableSquareWave routes the alarms to the interrupt line and turns off
	// the square-wave and 32kHz outputs.
	DisableSquareWave() error
	Close() error
}

// Wall returns t's wall-clock fields as a reading in time.UTC.
func Wall(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC)
}

// matchKey truncates a target to the fields the slot's hardware compares.
func matchKey(slot Slot, target time.Time) time.Time {
	if slot == SlotOff {
		return target.Truncate(time.Minute)
	}
	return target.Truncate(time.Second)
}

// NextMatch returns the first instant strictly after after at which an alarm
// programmed with target in the given slot fires.
func NextMatch(slot Slot, after, target time.Time) time.Time {
	key := matchKey(slot, target)
	y, mo, d := after.Date()
	h, mi, s := key.Clock()
	next := time.Date(y, mo, d, h, mi, s, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

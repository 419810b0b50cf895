// Package logic contains the pure photoperiod policy for the grow light.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// State represents the logical state of the light.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// On reports whether s is StateOn.
func (s State) On() bool { return s == StateOn }

// StateOf converts a relay level into a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// Default schedule: lights on at 08:00 for 18 hours.
const (
	DefaultOnHour      = 8
	DefaultOnMinute    = 0
	DefaultPhotoperiod = 18 * time.Hour
)

// Params is the daily schedule. OFF is always derived from ON + Photoperiod.
type Params struct {
	OnHour      int
	OnMinute    int
	Photoperiod time.Duration
}

// DefaultParams returns the compiled-in schedule.
func DefaultParams() Params {
	return Params{
		OnHour:      DefaultOnHour,
		OnMinute:    DefaultOnMinute,
		Photoperiod: DefaultPhotoperiod,
	}
}

var ErrInvalidParams = errors.New("invalid schedule parameters")

// Validate checks the schedule is representable by a once-a-day alarm pair.
func (p Params) Validate() error {
	if p.OnHour < 0 || p.OnHour > 23 {
		return fmt.Errorf("%w: on hour %d out of range 0-23", ErrInvalidParams, p.OnHour)
	}
	if p.OnMinute < 0 || p.OnMinute > 59 {
		return fmt.Errorf("%w: on minute %d out of range 0-59", ErrInvalidParams, p.OnMinute)
	}
	if p.Photoperiod <= 0 || p.Photoperiod >= 24*time.Hour {
		return fmt.Errorf("%w: photoperiod %s must be between 0 and 24h exclusive", ErrInvalidParams, p.Photoperiod)
	}
	return nil
}

// OffClock returns the hour and minute at which the light goes off.
func (p Params) OffClock() (hour, minute int) {
	total := time.Duration(p.OnHour)*time.Hour + time.Duration(p.OnMinute)*time.Minute + p.Photoperiod
	total %= 24 * time.Hour
	return int(total / time.Hour), int(total % time.Hour / time.Minute)
}

// EventType represents a light transition event.
type EventType string

const (
	EventLightOn  EventType = "LIGHT_ON"
	EventLightOff EventType = "LIGHT_OFF"
)

// EventTypeFor returns the event type that sets the light to s.
func EventTypeFor(s State) EventType {
	if s.On() {
		return EventLightOn
	}
	return EventLightOff
}

// Cause records what made the scheduler set the light.
type Cause string

const (
	CauseStartup   Cause = "STARTUP"
	CauseAlarm     Cause = "ALARM"
	CauseReconcile Cause = "RECONCILE"
)

// Event represents a light decision to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Cause     Cause
	Light     State
	// NextAlarm is the alarm target programmed as a result, zero if none.
	NextAlarm time.Time
}

// EventCounts tracks handled alarms and corrections since startup.
type EventCounts struct {
	AlarmOn     int
	AlarmOff    int
	Corrections int
}

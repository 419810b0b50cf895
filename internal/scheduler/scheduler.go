// Package scheduler owns the light relay and keeps it on the photoperiod.
//
// The scheduler has two entry points after Initialize: OnAlarmEvent, run when
// the RTC interrupt was seen, and Reconcile, run periodically. Alarms give a
// transition on the exact minute; reconciliation guarantees the relay
// converges on the policy even if an interrupt is lost or a write failed.
// Neither trusts the relay's previous level; the light is always derived
// from the clock.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/growlight/internal/gpio"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/rtc"
)

// Phase is the scheduler lifecycle stage.
type Phase string

const (
	PhaseUninitialized Phase = "UNINITIALIZED"
	PhaseScheduled     Phase = "SCHEDULED"
)

var (
	// ErrNotInitialized is returned by operations called before Initialize.
	ErrNotInitialized = errors.New("scheduler not initialized")
	// ErrClock wraps every clock failure during Initialize.
	ErrClock = errors.New("clock failure")
)

// Scheduler drives the relay from the RTC. It is not safe for concurrent
// use; the control loop owns it.
type Scheduler struct {
	clock  rtc.Clock
	relay  gpio.Output
	params logic.Params
	logger zerolog.Logger

	phase   Phase
	light   logic.State
	nextOn  time.Time
	nextOff time.Time
	counts  logic.EventCounts
}

// New creates an uninitialized scheduler.
func New(clock rtc.Clock, relay gpio.Output, params logic.Params, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		relay:  relay,
		params: params,
		logger: logger.With().Str("component", "scheduler").Logger(),
		phase:  PhaseUninitialized,
	}
}

// Initialize recovers the clock, programs both alarms from scratch and sets
// the relay to the state the schedule dictates right now. fallback is used
// as the time if the clock lost power.
func (s *Scheduler) Initialize(fallback time.Time) (logic.Event, error) {
	lost, err := s.clock.LostPower()
	if err != nil {
		return logic.Event{}, fmt.Errorf("%w: check power loss: %v", ErrClock, err)
	}
	if lost {
		fb := rtc.Wall(fallback)
		s.logger.Warn().Time("fallback", fb).Msg("rtc lost power, setting build time")
		if err := s.clock.SetTime(fb); err != nil {
			return logic.Event{}, fmt.Errorf("%w: set fallback time: %v", ErrClock, err)
		}
	}

	now, err := s.clock.Now()
	if err != nil {
		return logic.Event{}, fmt.Errorf("%w: read time: %v", ErrClock, err)
	}
	if err := s.armFromScratch(now); err != nil {
		return logic.Event{}, err
	}

	desired := logic.Desired(now, s.params)
	if err := s.setLight(desired); err != nil {
		return logic.Event{}, err
	}
	s.phase = PhaseScheduled

	s.logger.Info().
		Str("light", string(desired)).
		Time("clock", now).
		Time("next_on", s.nextOn).
		Time("next_off", s.nextOff).
		Msg("schedule initialized")

	return logic.Event{
		Timestamp: now,
		Type:      logic.EventTypeFor(desired),
		Cause:     logic.CauseStartup,
		Light:     desired,
		NextAlarm: s.nextAlarm(desired),
	}, nil
}

func (s *Scheduler) armFromScratch(now time.Time) error {
	for _, slot := range []rtc.Slot{rtc.SlotOn, rtc.SlotOff} {
		if err := s.clock.ClearAlarm(slot); err != nil {
			return fmt.Errorf("%w: clear %s alarm: %v", ErrClock, slot, err)
		}
	}
	if err := s.clock.DisableSquareWave(); err != nil {
		return fmt.Errorf("%w: disable square wave: %v", ErrClock, err)
	}

	on := logic.NextOn(now, s.params)
	off := logic.NextOff(on, s.params)
	if err := s.clock.SetAlarm(rtc.SlotOn, on, rtc.MatchHour); err != nil {
		return fmt.Errorf("%w: set on alarm: %v", ErrClock, err)
	}
	if err := s.clock.SetAlarm(rtc.SlotOff, off, rtc.MatchHour); err != nil {
		return fmt.Errorf("%w: set off alarm: %v", ErrClock, err)
	}
	s.nextOn, s.nextOff = on, off
	return nil
}

// OnAlarmEvent services the RTC after an interrupt. Both fired flags are
// checked and ON is handled before OFF, so if both are set the light ends
// OFF. Every step is attempted even if an earlier one fails; the joined
// error is returned and reconciliation corrects whatever was left undone.
func (s *Scheduler) OnAlarmEvent() ([]logic.Event, error) {
	if s.phase != PhaseScheduled {
		return nil, ErrNotInitialized
	}

	now, err := s.clock.Now()
	if err != nil {
		return nil, fmt.Errorf("read time: %w", err)
	}
	onFired, onErr := s.clock.AlarmFired(rtc.SlotOn)
	offFired, offErr := s.clock.AlarmFired(rtc.SlotOff)

	var (
		events []logic.Event
		errs   []error
	)
	if onErr != nil {
		errs = append(errs, fmt.Errorf("read on alarm flag: %w", onErr))
	}
	if offErr != nil {
		errs = append(errs, fmt.Errorf("read off alarm flag: %w", offErr))
	}

	if onFired {
		next := logic.NextOff(now, s.params)
		ev, err := s.handle(now, rtc.SlotOn, logic.StateOn, rtc.SlotOff, next)
		if err != nil {
			errs = append(errs, err)
		}
		s.nextOff = next
		s.counts.AlarmOn++
		events = append(events, ev)
	}
	if offFired {
		next := logic.OnAfterOff(now, s.params)
		ev, err := s.handle(now, rtc.SlotOff, logic.StateOff, rtc.SlotOn, next)
		if err != nil {
			errs = append(errs, err)
		}
		s.nextOn = next
		s.counts.AlarmOff++
		events = append(events, ev)
	}

	if !onFired && !offFired && onErr == nil && offErr == nil {
		s.logger.Debug().Msg("interrupt with no alarm flag set")
	}
	return events, errors.Join(errs...)
}

// handle applies one fired slot: set the light, clear the flag, re-arm the
// opposite slot.
func (s *Scheduler) handle(now time.Time, fired rtc.Slot, state logic.State, rearm rtc.Slot, next time.Time) (logic.Event, error) {
	var errs []error
	if err := s.setLight(state); err != nil {
		errs = append(errs, err)
	}
	if err := s.clock.ClearAlarm(fired); err != nil {
		errs = append(errs, fmt.Errorf("clear %s alarm: %w", fired, err))
	}
	if err := s.clock.SetAlarm(rearm, next, rtc.MatchHour); err != nil {
		errs = append(errs, fmt.Errorf("set %s alarm: %w", rearm, err))
	}

	s.logger.Info().
		Str("alarm", fired.String()).
		Str("light", string(state)).
		Time("clock", now).
		Time("next_"+rearm.String(), next).
		Msg("alarm handled")

	return logic.Event{
		Timestamp: now,
		Type:      logic.EventTypeFor(state),
		Cause:     logic.CauseAlarm,
		Light:     state,
		NextAlarm: next,
	}, errors.Join(errs...)
}

// Reconcile drives the relay to the policy's state for the current time.
// The relay is always written. changed reports whether the intended state
// differed, in which case ev describes the correction.
func (s *Scheduler) Reconcile() (ev logic.Event, changed bool, err error) {
	if s.phase != PhaseScheduled {
		return logic.Event{}, false, ErrNotInitialized
	}

	now, err := s.clock.Now()
	if err != nil {
		return logic.Event{}, false, fmt.Errorf("read time: %w", err)
	}
	desired := logic.Desired(now, s.params)
	prev := s.light
	if err := s.setLight(desired); err != nil {
		return logic.Event{}, false, err
	}
	if prev == desired {
		return logic.Event{}, false, nil
	}

	s.counts.Corrections++
	s.logger.Warn().
		Str("was", string(prev)).
		Str("light", string(desired)).
		Time("clock", now).
		Msg("light corrected by reconciliation")

	return logic.Event{
		Timestamp: now,
		Type:      logic.EventTypeFor(desired),
		Cause:     logic.CauseReconcile,
		Light:     desired,
	}, true, nil
}

// AlarmLatched reports whether either fired flag is set. A flag that stays
// set holds the interrupt line low, so no further edge will arrive until it
// is serviced.
func (s *Scheduler) AlarmLatched() (bool, error) {
	if s.phase != PhaseScheduled {
		return false, ErrNotInitialized
	}
	on, err := s.clock.AlarmFired(rtc.SlotOn)
	if err != nil {
		return false, fmt.Errorf("read on alarm flag: %w", err)
	}
	off, err := s.clock.AlarmFired(rtc.SlotOff)
	if err != nil {
		return false, fmt.Errorf("read off alarm flag: %w", err)
	}
	return on || off, nil
}

// setLight writes the relay and records the state only if the write succeeded.
func (s *Scheduler) setLight(state logic.State) error {
	if err := s.relay.Set(state.On()); err != nil {
		return fmt.Errorf("set relay %s: %w", state, err)
	}
	s.light = state
	return nil
}

func (s *Scheduler) nextAlarm(state logic.State) time.Time {
	if state.On() {
		return s.nextOff
	}
	return s.nextOn
}

// Phase returns the lifecycle stage.
func (s *Scheduler) Phase() Phase { return s.phase }

// Light returns the last state successfully written to the relay, or ""
// before the first write.
func (s *Scheduler) Light() logic.State { return s.light }

// NextOn returns the programmed ON alarm target. The hardware matches time
// of day only; see rtc.NextMatch for the instant it will fire.
func (s *Scheduler) NextOn() time.Time { return s.nextOn }

// NextOff returns the programmed OFF alarm target.
func (s *Scheduler) NextOff() time.Time { return s.nextOff }

// Counts returns handled alarms and corrections since startup.
func (s *Scheduler) Counts() logic.EventCounts { return s.counts }

// Params returns the schedule in force.
func (s *Scheduler) Params() logic.Params { return s.params }

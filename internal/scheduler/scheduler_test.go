package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/growlight/internal/gpio"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/rtc"
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *rtc.FakeClock, *gpio.FakeOutput) {
	t.Helper()
	clock := rtc.NewFakeClock(now)
	relay := &gpio.FakeOutput{}
	return New(clock, relay, logic.DefaultParams(), zerolog.Nop()), clock, relay
}

func initialize(t *testing.T, s *Scheduler) logic.Event {
	t.Helper()
	ev, err := s.Initialize(at(1, 0, 0))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return ev
}

func TestInitializeColdStart(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		light     logic.State
		nextOn    time.Time
		nextOff   time.Time
		fireOn    time.Time
		fireOff   time.Time
		nextAlarm time.Time
	}{
		{
			name:  "exactly on",
			now:   at(10, 8, 0),
			light: logic.StateOn,
			// Hour already reached, so the ON target is tomorrow.
			nextOn:    at(11, 8, 0),
			nextOff:   at(12, 2, 0),
			fireOn:    at(11, 8, 0),
			fireOff:   at(11, 2, 0),
			nextAlarm: at(12, 2, 0),
		},
		{
			name:      "inside yesterday window",
			now:       at(10, 1, 30),
			light:     logic.StateOn,
			nextOn:    at(10, 8, 0),
			nextOff:   at(11, 2, 0),
			fireOn:    at(10, 8, 0),
			fireOff:   at(10, 2, 0),
			nextAlarm: at(11, 2, 0),
		},
		{
			name:      "dark period",
			now:       at(10, 3, 0),
			light:     logic.StateOff,
			nextOn:    at(10, 8, 0),
			nextOff:   at(11, 2, 0),
			fireOn:    at(10, 8, 0),
			fireOff:   at(11, 2, 0),
			nextAlarm: at(10, 8, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, relay := newTestScheduler(t, tt.now)
			ev := initialize(t, s)

			if s.Phase() != PhaseScheduled {
				t.Errorf("phase = %s, want SCHEDULED", s.Phase())
			}
			if s.Light() != tt.light || relay.On() != tt.light.On() {
				t.Errorf("light = %s relay = %v, want %s", s.Light(), relay.On(), tt.light)
			}
			if ev.Cause != logic.CauseStartup || ev.Light != tt.light {
				t.Errorf("unexpected startup event %+v", ev)
			}
			if !ev.NextAlarm.Equal(tt.nextAlarm) {
				t.Errorf("event next alarm = %v, want %v", ev.NextAlarm, tt.nextAlarm)
			}

			on, onEnabled := clock.Alarm(rtc.SlotOn)
			off, offEnabled := clock.Alarm(rtc.SlotOff)
			if !onEnabled || !offEnabled {
				t.Fatal("expected both alarms enabled")
			}
			if !on.Equal(tt.nextOn) || !s.NextOn().Equal(tt.nextOn) {
				t.Errorf("on target = %v, want %v", on, tt.nextOn)
			}
			if !off.Equal(tt.nextOff) || !s.NextOff().Equal(tt.nextOff) {
				t.Errorf("off target = %v, want %v", off, tt.nextOff)
			}
			if got := rtc.NextMatch(rtc.SlotOn, tt.now, on); !got.Equal(tt.fireOn) {
				t.Errorf("on fires at %v, want %v", got, tt.fireOn)
			}
			if got := rtc.NextMatch(rtc.SlotOff, tt.now, off); !got.Equal(tt.fireOff) {
				t.Errorf("off fires at %v, want %v", got, tt.fireOff)
			}
		})
	}
}

func TestInitializeResetsHardware(t *testing.T) {
	s, clock, _ := newTestScheduler(t, at(10, 12, 0))
	clock.Fire(rtc.SlotOn)
	clock.Fire(rtc.SlotOff)

	initialize(t, s)

	for _, slot := range []rtc.Slot{rtc.SlotOn, rtc.SlotOff} {
		if fired, _ := clock.AlarmFired(slot); fired {
			t.Errorf("%s flag not cleared", slot)
		}
	}
	if clock.SquareWave() {
		t.Error("square wave not disabled")
	}
}

func TestInitializeAfterPowerLoss(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 3, 0))
	clock.LosePower(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))

	fallback := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.Initialize(fallback); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	now, _ := clock.Now()
	if !now.Equal(fallback) {
		t.Errorf("clock = %v, want fallback %v", now, fallback)
	}
	if lost, _ := clock.LostPower(); lost {
		t.Error("power loss indicator should be cleared")
	}
	if !relay.On() {
		t.Error("12:00 is inside the photoperiod, expected ON")
	}
	if d := s.NextOff().Sub(s.NextOn()); d != 18*time.Hour {
		t.Errorf("alarm pair %v apart, want 18h", d)
	}
	if want := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC); !s.NextOn().Equal(want) {
		t.Errorf("next on = %v, want %v", s.NextOn(), want)
	}
}

func TestInitializeClockFailure(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 12, 0))
	clock.Fail(errors.New("i2c timeout"))

	_, err := s.Initialize(at(1, 0, 0))
	if !errors.Is(err, ErrClock) {
		t.Fatalf("expected ErrClock, got %v", err)
	}
	if len(relay.Writes) != 0 {
		t.Error("relay must not be driven when the clock fails")
	}
	if s.Phase() != PhaseUninitialized {
		t.Errorf("phase = %s, want UNINITIALIZED", s.Phase())
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	s, _, _ := newTestScheduler(t, at(10, 12, 0))

	if _, err := s.OnAlarmEvent(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("OnAlarmEvent: expected ErrNotInitialized, got %v", err)
	}
	if _, _, err := s.Reconcile(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Reconcile: expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.AlarmLatched(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AlarmLatched: expected ErrNotInitialized, got %v", err)
	}
}

func TestOnAlarmTurnsLightOn(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 7, 59))
	initialize(t, s)
	if relay.On() {
		t.Fatal("expected OFF before 08:00")
	}

	clock.Advance(time.Minute)
	events, err := s.OnAlarmEvent()
	if err != nil {
		t.Fatalf("OnAlarmEvent: %v", err)
	}

	if len(events) != 1 || events[0].Type != logic.EventLightOn || events[0].Cause != logic.CauseAlarm {
		t.Fatalf("unexpected events %+v", events)
	}
	if !relay.On() || s.Light() != logic.StateOn {
		t.Error("expected light ON")
	}
	if fired, _ := clock.AlarmFired(rtc.SlotOn); fired {
		t.Error("on flag not cleared")
	}

	off, _ := clock.Alarm(rtc.SlotOff)
	if want := at(11, 2, 0); !off.Equal(want) || !events[0].NextAlarm.Equal(want) {
		t.Errorf("off alarm = %v, want %v", off, want)
	}
	if s.Counts().AlarmOn != 1 {
		t.Errorf("AlarmOn count = %d, want 1", s.Counts().AlarmOn)
	}
}

func TestOffAlarmTurnsLightOff(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 1, 59))
	initialize(t, s)
	if !relay.On() {
		t.Fatal("expected ON before 02:00")
	}

	clock.Advance(time.Minute)
	events, err := s.OnAlarmEvent()
	if err != nil {
		t.Fatalf("OnAlarmEvent: %v", err)
	}

	if len(events) != 1 || events[0].Type != logic.EventLightOff {
		t.Fatalf("unexpected events %+v", events)
	}
	if relay.On() {
		t.Error("expected light OFF")
	}

	// Target is always the next calendar day; the hardware still fires today.
	on, _ := clock.Alarm(rtc.SlotOn)
	if want := at(11, 8, 0); !on.Equal(want) {
		t.Errorf("on alarm = %v, want %v", on, want)
	}
	now, _ := clock.Now()
	if got, want := rtc.NextMatch(rtc.SlotOn, now, on), at(10, 8, 0); !got.Equal(want) {
		t.Errorf("on alarm fires at %v, want %v", got, want)
	}
	if s.Counts().AlarmOff != 1 {
		t.Errorf("AlarmOff count = %d, want 1", s.Counts().AlarmOff)
	}
}

func TestBothAlarmsFiredEndsOff(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 12, 0))
	initialize(t, s)
	clock.Fire(rtc.SlotOn)
	clock.Fire(rtc.SlotOff)

	events, err := s.OnAlarmEvent()
	if err != nil {
		t.Fatalf("OnAlarmEvent: %v", err)
	}
	if len(events) != 2 || events[0].Type != logic.EventLightOn || events[1].Type != logic.EventLightOff {
		t.Fatalf("expected ON then OFF, got %+v", events)
	}
	if relay.On() || s.Light() != logic.StateOff {
		t.Error("expected light to end OFF")
	}
	for _, slot := range []rtc.Slot{rtc.SlotOn, rtc.SlotOff} {
		if fired, _ := clock.AlarmFired(slot); fired {
			t.Errorf("%s flag not cleared", slot)
		}
	}
}

func TestSpuriousInterrupt(t *testing.T) {
	s, _, relay := newTestScheduler(t, at(10, 12, 0))
	initialize(t, s)
	writes := len(relay.Writes)

	events, err := s.OnAlarmEvent()
	if err != nil {
		t.Fatalf("OnAlarmEvent: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
	if len(relay.Writes) != writes {
		t.Error("relay must not be touched without a fired flag")
	}
}

func TestAlarmRelayFailureStillRearms(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 7, 59))
	initialize(t, s)

	relayErr := errors.New("line busy")
	relay.Fail(relayErr)
	clock.Advance(time.Minute)

	events, err := s.OnAlarmEvent()
	if !errors.Is(err, relayErr) {
		t.Fatalf("expected relay error, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the event to be reported, got %d", len(events))
	}
	if s.Light() != logic.StateOff {
		t.Errorf("light = %s, must not change when the write failed", s.Light())
	}
	if fired, _ := clock.AlarmFired(rtc.SlotOn); fired {
		t.Error("flag must be cleared so the interrupt line is released")
	}
	if off, _ := clock.Alarm(rtc.SlotOff); !off.Equal(at(11, 2, 0)) {
		t.Errorf("off alarm = %v, want re-armed for 02:00", off)
	}

	relay.Fail(nil)
	ev, changed, err := s.Reconcile()
	if err != nil || !changed || ev.Light != logic.StateOn {
		t.Fatalf("reconcile should correct to ON, got %+v %v %v", ev, changed, err)
	}
	if !relay.On() {
		t.Error("relay not corrected")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	s, _, relay := newTestScheduler(t, at(10, 12, 0))
	initialize(t, s)

	for i := 0; i < 3; i++ {
		before := len(relay.Writes)
		_, changed, err := s.Reconcile()
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if changed {
			t.Errorf("call %d: unexpected change", i)
		}
		if len(relay.Writes) != before+1 {
			t.Errorf("call %d: relay must be written every time", i)
		}
		if !relay.On() {
			t.Errorf("call %d: expected ON", i)
		}
	}
	if s.Counts().Corrections != 0 {
		t.Errorf("corrections = %d, want 0", s.Counts().Corrections)
	}
}

func TestReconcileCorrectsMissedAlarm(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 7, 59))
	initialize(t, s)

	// The clock moves past 08:00 without the interrupt being seen.
	clock.Set(at(10, 8, 30))

	ev, changed, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !changed || ev.Cause != logic.CauseReconcile || ev.Type != logic.EventLightOn {
		t.Errorf("unexpected reconcile result %+v changed=%v", ev, changed)
	}
	if !relay.On() {
		t.Error("relay not corrected")
	}
	if s.Counts().Corrections != 1 {
		t.Errorf("corrections = %d, want 1", s.Counts().Corrections)
	}
}

func TestReconcileClockError(t *testing.T) {
	s, clock, relay := newTestScheduler(t, at(10, 12, 0))
	initialize(t, s)
	writes := len(relay.Writes)

	clock.Fail(errors.New("nack"))
	if _, _, err := s.Reconcile(); err == nil {
		t.Fatal("expected error")
	}
	if len(relay.Writes) != writes {
		t.Error("relay must not be written without a clock reading")
	}
}

func TestAlarmLatched(t *testing.T) {
	s, clock, _ := newTestScheduler(t, at(10, 12, 0))
	initialize(t, s)

	latched, err := s.AlarmLatched()
	if err != nil || latched {
		t.Fatalf("expected no latch, got %v %v", latched, err)
	}

	clock.Fire(rtc.SlotOff)
	latched, err = s.AlarmLatched()
	if err != nil || !latched {
		t.Errorf("expected latch, got %v %v", latched, err)
	}
}

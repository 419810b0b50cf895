package main

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/growlight/internal/irq"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/metrics"
	"github.com/sweeney/growlight/internal/mqtt"
	"github.com/sweeney/growlight/internal/rtc"
	"github.com/sweeney/growlight/internal/scheduler"
	"github.com/sweeney/growlight/internal/sensor"
	"github.com/sweeney/growlight/internal/status"
)

// Report reasons carried in STATUS system events.
const (
	reasonAlarm     = "ALARM"
	reasonReconcile = "RECONCILE"
	reasonUpdate    = "UPDATE"
)

// loop is the control loop. It owns the scheduler, the clock and the
// sensors; nothing else touches them.
type loop struct {
	sched      *scheduler.Scheduler
	clock      rtc.Clock
	flag       *irq.Flag
	sensors    *sensor.Suite // nil when no sensors are fitted
	soil       bool
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	tracker    *status.Tracker
	metrics    *metrics.Metrics // may be nil
	network    func() *status.NetworkInfo
	report     io.Writer // receives the text status report
	logger     zerolog.Logger

	now            func() time.Time
	reconcileEvery time.Duration
	sensorEvery    time.Duration

	lastReconcile time.Time
	lastSensor    time.Time
	lastSensorErr string
	reading       sensor.Reading
}

// run services ticks until a signal arrives or an update is installed.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal, updated <-chan struct{}) error {
	l.reset(l.now())

	for {
		select {
		case s := <-sig:
			l.logger.Info().Str("signal", s.String()).Msg("shutting down")
			l.shutdown(signalName(s))
			return nil

		case <-updated:
			l.logger.Info().Msg("update installed, exiting for restart")
			l.shutdown(reasonUpdate)
			return nil

		case <-tick:
			l.step(l.now())
		}
	}
}

// reset starts the reconcile interval at start and makes the next step poll
// the sensors.
func (l *loop) reset(start time.Time) {
	l.lastReconcile, l.lastSensor = start, start.Add(-l.sensorEvery)
	l.refresh()
}

// step runs one pass of the loop at host time t.
func (l *loop) step(t time.Time) {
	if l.flag.Take() {
		l.serviceAlarm()
	}

	if t.Sub(l.lastReconcile) >= l.reconcileEvery {
		l.lastReconcile = t
		l.reconcile()
	}

	if l.sensors != nil && t.Sub(l.lastSensor) >= l.sensorEvery {
		l.lastSensor = t
		l.pollSensors()
	}

	l.refresh()
}

func (l *loop) serviceAlarm() {
	if l.metrics != nil {
		l.metrics.Interrupts.Inc()
	}
	events, err := l.sched.OnAlarmEvent()
	if err != nil {
		l.logger.Error().Err(err).Msg("alarm handling incomplete")
	}
	for _, ev := range events {
		l.publishEvent(ev)
	}
	l.refresh()
	l.publishReport(reasonAlarm)
}

func (l *loop) reconcile() {
	ev, changed, err := l.sched.Reconcile()
	if err != nil {
		l.logger.Error().Err(err).Msg("reconcile failed")
	} else if changed {
		l.publishEvent(ev)
	} else if l.metrics != nil {
		l.metrics.ObserveLight(l.sched.Light())
	}

	// A flag left set holds INT low, so no edge will ever arrive for it.
	latched, err := l.sched.AlarmLatched()
	switch {
	case err != nil:
		l.logger.Error().Err(err).Msg("read alarm flags")
	case latched && !l.flag.Pending():
		l.logger.Warn().Msg("alarm flag latched without interrupt")
		l.flag.Raise()
	}

	l.refresh()
	l.publishReport(reasonReconcile)
}

func (l *loop) pollSensors() {
	clock, err := l.clock.Now()
	if err != nil {
		clock = time.Time{}
	}
	r, err := l.sensors.Read(clock)
	l.reading = r
	l.tracker.SetReading(r)
	if l.metrics != nil {
		l.metrics.ObserveReading(r)
		if l.soil && !r.HasSoil {
			l.metrics.ObserveSoilError()
		}
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg != l.lastSensorErr {
		if err != nil {
			l.logger.Warn().Err(err).Msg("sensor read failed")
		} else {
			l.logger.Info().Msg("sensors recovered")
		}
		l.lastSensorErr = msg
	}
	l.logger.Debug().Msg(status.FormatReading(r))
}

// refresh copies scheduler state into the tracker. Next alarm times are
// shown as the instants the hardware will actually fire.
func (l *loop) refresh() {
	s := status.Schedule{
		Light:  l.sched.Light(),
		Phase:  string(l.sched.Phase()),
		Counts: l.sched.Counts(),
	}
	if clock, err := l.clock.Now(); err == nil {
		s.Clock = clock
		if l.sched.Phase() == scheduler.PhaseScheduled {
			s.NextOn = rtc.NextMatch(rtc.SlotOn, clock, l.sched.NextOn())
			s.NextOff = rtc.NextMatch(rtc.SlotOff, clock, l.sched.NextOff())
		}
	}
	l.tracker.Update(s)

	if l.mqttStatus != nil {
		connected := l.mqttStatus.IsConnected()
		l.tracker.SetMQTTConnected(connected)
		if l.metrics != nil {
			l.metrics.SetMQTTConnected(connected)
		}
	}
}

func (l *loop) publishEvent(ev logic.Event) {
	if l.metrics != nil {
		l.metrics.ObserveEvent(ev)
	}
	l.logger.Info().
		Str("event", string(ev.Type)).
		Str("cause", string(ev.Cause)).
		Time("clock", ev.Timestamp).
		Msg("light event")
	if err := l.publisher.Publish(ev); err != nil {
		l.logger.Warn().Err(err).Msg("publish light event")
	}
}

// publishReport logs the text status and publishes it with the latest reading.
func (l *loop) publishReport(reason string) {
	if l.network != nil {
		l.tracker.SetNetwork(l.network())
	}
	snap := l.tracker.Snapshot()

	if l.report != nil {
		io.WriteString(l.report, status.FormatText(snap))
	}
	l.logger.Info().
		Str("light", string(snap.Light)).
		Str("reason", reason).
		Bool("network", snap.Network.Connected()).
		Msg("status")

	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStatus,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStatus, reason),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.logger.Warn().Err(err).Msg("publish status")
	}
	if l.reading.HasEnvironment || l.reading.HasSoil {
		if err := l.publisher.PublishReading(l.reading); err != nil {
			l.logger.Warn().Err(err).Msg("publish reading")
		}
	}
}

func (l *loop) shutdown(reason string) {
	l.refresh()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.logger.Warn().Err(err).Msg("publish shutdown event")
	} else {
		l.logger.Info().Msg("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/sweeney/growlight/internal/config"
	"github.com/sweeney/growlight/internal/console"
	"github.com/sweeney/growlight/internal/gpio"
	"github.com/sweeney/growlight/internal/irq"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/metrics"
	"github.com/sweeney/growlight/internal/mqtt"
	"github.com/sweeney/growlight/internal/rtc"
	"github.com/sweeney/growlight/internal/scheduler"
	"github.com/sweeney/growlight/internal/sensor"
	"github.com/sweeney/growlight/internal/status"
	"github.com/sweeney/growlight/internal/update"
	"github.com/sweeney/growlight/internal/version"
	"github.com/sweeney/growlight/internal/web"
)

// nopPublisher discards everything. It stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(logic.Event) error { return nil }
func (nopPublisher) PublishReading(sensor.Reading) error { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error { return nil }

// runDaemon brings up the hardware and services, then runs the control loop
// until a signal arrives or an update has been installed.
func runDaemon(cfg config.Config, logger zerolog.Logger, con *console.Server) error {
	bootID := uuid.NewString()
	logger.Info().
		Str("version", version.Version).
		Str("boot_id", bootID).
		Str("schedule", fmt.Sprintf("%02d:%02d+%s", cfg.Schedule.OnHour, cfg.Schedule.OnMinute, cfg.Schedule.Photoperiod)).
		Msg("starting")

	hw := cfg.Hardware

	// The relay is claimed first and parked OFF so the light is never left
	// in an unknown state while the rest comes up.
	relay, err := gpio.NewRealOutput(hw.Chip, hw.RelayPin, hw.RelayActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()
	if err := relay.Set(false); err != nil {
		return fmt.Errorf("park relay: %w", err)
	}

	// The pump is not driven, only held off.
	if pump, err := gpio.NewRealOutput(hw.Chip, hw.PumpPin, true); err != nil {
		logger.Warn().Err(err).Int("pin", hw.PumpPin).Msg("pump pin unavailable")
	} else {
		defer pump.Close()
		if err := pump.Set(false); err != nil {
			logger.Warn().Err(err).Msg("park pump")
		}
	}

	adaptor := raspi.NewAdaptor()
	if err := adaptor.Connect(); err != nil {
		return fmt.Errorf("connect i2c adaptor: %w", err)
	}
	defer adaptor.Finalize()

	clock, err := rtc.Open(adaptor, hw.I2CBus)
	if err != nil {
		return fmt.Errorf("init rtc: %w", err)
	}
	defer clock.Close()

	bme, err := sensor.OpenBME280(adaptor, hw.I2CBus, hw.BME280Address)
	if err != nil {
		return fmt.Errorf("init environment sensor: %w", err)
	}

	var probe *sensor.SoilProbe
	if cfg.Soil.Enabled {
		probe = openSoil(cfg, adaptor, logger)
	}
	if probe != nil {
		defer probe.Close()
	}
	sensors := sensor.NewSuite(bme, probe)

	sched := scheduler.New(clock, relay, cfg.Params(), logger)
	startup, err := sched.Initialize(version.BuildTimestamp())
	if err != nil {
		return fmt.Errorf("initialize schedule: %w", err)
	}

	flag := &irq.Flag{}
	if w, err := gpio.WatchFalling(hw.Chip, hw.AlarmPin, flag.Raise); err != nil {
		logger.Warn().Err(err).Int("pin", hw.AlarmPin).Msg("alarm interrupt unavailable, relying on reconcile")
	} else {
		defer w.Close()
	}

	m := metrics.New()

	var (
		publisher  mqtt.Publisher = nopPublisher{}
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "growlight-" + bootID[:8]
		}
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, clientID, logger)
		publisher, mqttStatus = p, p
	} else {
		logger.Warn().Msg("no mqtt broker configured, publishing disabled")
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		OnHour:      cfg.Schedule.OnHour,
		OnMinute:    cfg.Schedule.OnMinute,
		Photoperiod: cfg.Schedule.Photoperiod,
		ReconcileMs: cfg.Intervals.Reconcile.Milliseconds(),
		SensorMs:    cfg.Intervals.Sensor.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		ConsoleAddr: cfg.Console.Addr,
		Update:      cfg.Update.Enabled(),
		Version:     version.Version,
		BootID:      bootID,
	})
	tracker.SetNetwork(detectNetwork())

	var (
		updater *update.Updater
		updated <-chan struct{}
	)
	if cfg.Update.Enabled() {
		target := cfg.Update.Target
		if target == "" {
			if target, err = os.Executable(); err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}
		}
		updater = update.New(target, cfg.Update.PasswordHash, logger)
		updated = updater.Applied()
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, web.Options{
			Metrics: m,
			Updater: updater,
			Logger:  logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	if con != nil {
		con.SetStatus(func() string { return status.FormatText(tracker.Snapshot()) })
		addr, err := con.Listen(cfg.Console.Addr)
		if err != nil {
			logger.Warn().Err(err).Msg("console unavailable")
		} else {
			logger.Info().Str("addr", addr.String()).Msg("console listening")
		}
		defer con.Close()
	}

	// The text report goes to stdout and the console.
	var report io.Writer = os.Stdout
	if con != nil {
		report = io.MultiWriter(os.Stdout, con)
	}

	l := &loop{
		sched:          sched,
		clock:          clock,
		flag:           flag,
		sensors:        sensors,
		soil:           probe != nil,
		publisher:      publisher,
		mqttStatus:     mqttStatus,
		tracker:        tracker,
		metrics:        m,
		network:        detectNetwork,
		report:         report,
		logger:         logger,
		now:            time.Now,
		reconcileEvery: cfg.Intervals.Reconcile,
		sensorEvery:    cfg.Intervals.Sensor,
	}
	l.refresh()

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn().Err(err).Msg("publish startup event")
	} else {
		logger.Info().Msg("published startup event")
	}
	l.publishEvent(startup)

	logger.Info().
		Dur("loop", cfg.Intervals.Loop).
		Dur("reconcile", cfg.Intervals.Reconcile).
		Dur("sensor", cfg.Intervals.Sensor).
		Bool("soil", probe != nil).
		Msg("started")

	ticker := time.NewTicker(cfg.Intervals.Loop)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ticker.C, sigCh, updated)
}

// openSoil brings up the probe's power switch and ADC. A failure disables
// soil sensing and is not fatal.
func openSoil(cfg config.Config, adaptor *raspi.Adaptor, logger zerolog.Logger) *sensor.SoilProbe {
	hw := cfg.Hardware
	power, err := gpio.NewRealOutput(hw.Chip, hw.SoilPowerPin, false)
	if err != nil {
		logger.Warn().Err(err).Int("pin", hw.SoilPowerPin).Msg("soil probe power unavailable, soil sensing disabled")
		return nil
	}
	adc, err := sensor.OpenADS1115(adaptor, hw.I2CBus, hw.ADS1115Address)
	if err != nil {
		power.Close()
		logger.Warn().Err(err).Msg("soil adc unavailable, soil sensing disabled")
		return nil
	}
	return sensor.NewSoilProbe(adc, power, cfg.Soil.Channel, cfg.Calibration(), cfg.Soil.Settle)
}

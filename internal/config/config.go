// Package config loads daemon configuration from defaults, an optional YAML
// file and GROWLIGHT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/growlight/internal/gpio"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

// Config is the full daemon configuration.
type Config struct {
	Environment string    `yaml:"environment"`
	Schedule    Schedule  `yaml:"schedule"`
	Soil        Soil      `yaml:"soil"`
	Hardware    Hardware  `yaml:"hardware"`
	Intervals   Intervals `yaml:"intervals"`
	MQTT        MQTT      `yaml:"mqtt"`
	HTTP        HTTP      `yaml:"http"`
	Console     Console   `yaml:"console"`
	Update      Update    `yaml:"update"`
}

// Schedule is the photoperiod. It is fixed for the life of the process.
type Schedule struct {
	OnHour      int           `yaml:"on_hour"`
	OnMinute    int           `yaml:"on_minute"`
	Photoperiod time.Duration `yaml:"photoperiod"`
}

// Soil is the moisture probe calibration and wiring.
type Soil struct {
	Enabled bool          `yaml:"enabled"`
	Dry     int           `yaml:"dry"`
	Wet     int           `yaml:"wet"`
	Channel string        `yaml:"channel"`
	Settle  time.Duration `yaml:"settle"`
}

// Hardware is the board wiring.
type Hardware struct {
	Chip           string `yaml:"chip"`
	RelayPin       int    `yaml:"relay_pin"`
	RelayActiveLow bool   `yaml:"relay_active_low"`
	AlarmPin       int    `yaml:"alarm_pin"`
	SoilPowerPin   int    `yaml:"soil_power_pin"`
	PumpPin        int    `yaml:"pump_pin"`
	I2CBus         int    `yaml:"i2c_bus"`
	BME280Address  int    `yaml:"bme280_address"`
	ADS1115Address int    `yaml:"ads1115_address"`
}

// Intervals are the control loop cadences.
type Intervals struct {
	Loop      time.Duration `yaml:"loop"`
	Reconcile time.Duration `yaml:"reconcile"`
	Sensor    time.Duration `yaml:"sensor"`
}

// MQTT is the broker connection. An empty broker disables publishing.
type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTP is the status server. An empty address disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Console is the remote log console. An empty address disables it.
type Console struct {
	Addr    string `yaml:"addr"`
	History int    `yaml:"history"`
}

// Update controls over-the-air binary replacement. It is disabled unless a
// bcrypt password hash is configured.
type Update struct {
	PasswordHash string `yaml:"password_hash"`
	Target       string `yaml:"target"`
}

// Enabled reports whether updates are accepted.
func (u Update) Enabled() bool { return u.PasswordHash != "" }

// Environment variable names.
const (
	EnvPrefix          = "GROWLIGHT_"
	envEnvironment     = EnvPrefix + "ENV"
	envConfig          = EnvPrefix + "CONFIG"
	envMQTTBroker      = EnvPrefix + "MQTT_BROKER"
	envHTTPAddr        = EnvPrefix + "HTTP_ADDR"
	envConsoleAddr     = EnvPrefix + "CONSOLE_ADDR"
	envOTAPasswordHash = EnvPrefix + "OTA_PASSWORD_HASH"
	envOnTime          = EnvPrefix + "ON_TIME"
	envPhotoperiod     = EnvPrefix + "PHOTOPERIOD"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Default returns the built-in configuration.
func Default() Config {
	p := logic.DefaultParams()
	return Config{
		Environment: "production",
		Schedule: Schedule{
			OnHour:      p.OnHour,
			OnMinute:    p.OnMinute,
			Photoperiod: p.Photoperiod,
		},
		Soil: Soil{
			Enabled: true,
			Dry:     sensor.DefaultDry,
			Wet:     sensor.DefaultWet,
			Channel: "0",
			Settle:  sensor.DefaultSettle,
		},
		Hardware: Hardware{
			Chip:           gpio.DefaultChip,
			RelayPin:       gpio.PinRelay,
			AlarmPin:       gpio.PinAlarm,
			SoilPowerPin:   gpio.PinSoilPower,
			PumpPin:        gpio.PinPump,
			I2CBus:         1,
			BME280Address:  sensor.BME280Address,
			ADS1115Address: sensor.ADS1115Address,
		},
		Intervals: Intervals{
			Loop:      time.Second,
			Reconcile: 30 * time.Second,
			Sensor:    time.Second,
		},
		MQTT: MQTT{
			Broker: "tcp://192.168.1.200:1883",
		},
		HTTP:    HTTP{Addr: ":80"},
		Console: Console{Addr: ":23", History: 200},
		Update:  Update{},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then the environment, and validates the result. When path
// is empty GROWLIGHT_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Environment = getEnv(envEnvironment, c.Environment)
	c.MQTT.Broker = getEnv(envMQTTBroker, c.MQTT.Broker)
	c.HTTP.Addr = getEnv(envHTTPAddr, c.HTTP.Addr)
	c.Console.Addr = getEnv(envConsoleAddr, c.Console.Addr)
	c.Update.PasswordHash = getEnv(envOTAPasswordHash, c.Update.PasswordHash)

	if v := os.Getenv(envOnTime); v != "" {
		h, m, err := parseClock(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envOnTime, err)
		}
		c.Schedule.OnHour, c.Schedule.OnMinute = h, m
	}
	if v := os.Getenv(envPhotoperiod); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPhotoperiod, err)
		}
		c.Schedule.Photoperiod = d
	}
	return nil
}

// Params returns the photoperiod policy parameters.
func (c Config) Params() logic.Params {
	return logic.Params{
		OnHour:      c.Schedule.OnHour,
		OnMinute:    c.Schedule.OnMinute,
		Photoperiod: c.Schedule.Photoperiod,
	}
}

// Calibration returns the soil probe calibration.
func (c Config) Calibration() sensor.Calibration {
	return sensor.Calibration{Dry: c.Soil.Dry, Wet: c.Soil.Wet}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	// The OFF alarm has no seconds register.
	if c.Schedule.Photoperiod%time.Minute != 0 {
		errs = append(errs, fmt.Errorf("photoperiod %v: must be whole minutes", c.Schedule.Photoperiod))
	}
	if c.Soil.Enabled {
		if err := c.Calibration().Validate(); err != nil {
			errs = append(errs, err)
		}
		switch c.Soil.Channel {
		case "0", "1", "2", "3":
		default:
			errs = append(errs, fmt.Errorf("soil channel %q: must be 0-3", c.Soil.Channel))
		}
	}
	if c.Intervals.Loop <= 0 || c.Intervals.Reconcile <= 0 || c.Intervals.Sensor <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	if c.Intervals.Reconcile < c.Intervals.Loop {
		errs = append(errs, fmt.Errorf("reconcile interval %v shorter than loop interval %v", c.Intervals.Reconcile, c.Intervals.Loop))
	}
	if c.Hardware.Chip == "" {
		errs = append(errs, errors.New("gpio chip must be set"))
	}
	if c.Console.History < 0 {
		errs = append(errs, errors.New("console history must not be negative"))
	}
	if c.Update.PasswordHash != "" && !strings.HasPrefix(c.Update.PasswordHash, "$2") {
		errs = append(errs, errors.New("update password hash must be a bcrypt hash"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Package sensor reads the environmental sensor and the soil moisture probe.
package sensor

import (
	"errors"
	"fmt"
	"time"
)

// Environment reads ambient conditions. A gobot i2c.BME280Driver satisfies it.
type Environment interface {
	Temperature() (float32, error)
	Humidity() (float32, error)
}

// AnalogReader reads a raw ADC count. A gobot i2c.ADS1x15Driver satisfies it.
type AnalogReader interface {
	AnalogRead(pin string) (int, error)
}

// Default calibration of the capacitive probe in raw counts.
const (
	DefaultDry = 2380
	DefaultWet = 1960
)

// Calibration holds the raw readings of the probe in dry air and in water.
type Calibration struct {
	Dry int
	Wet int
}

// Validate rejects a calibration that cannot be mapped.
func (c Calibration) Validate() error {
	if c.Dry == c.Wet {
		return fmt.Errorf("soil calibration: dry and wet are both %d", c.Dry)
	}
	return nil
}

// MoisturePercent maps a raw reading linearly from [Dry, Wet] onto [0, 100]
// using integer arithmetic that truncates toward zero, then clamps.
func MoisturePercent(raw int, cal Calibration) int {
	run := cal.Wet - cal.Dry
	if run == 0 {
		return 0
	}
	pct := (raw - cal.Dry) * 100 / run
	return max(0, min(100, pct))
}

// Reading is one poll of every sensor. Fields of a sensor that failed are
// zero and its Has flag is false.
type Reading struct {
	Time           time.Time
	Temperature    float32 // Celsius
	Humidity       float32 // percent relative humidity
	Moisture       int     // percent
	MoistureRaw    int
	HasEnvironment bool
	HasSoil        bool
}

// Suite polls the environmental sensor and an optional soil probe together.
type Suite struct {
	env  Environment
	soil *SoilProbe
}

// NewSuite combines env with soil. soil may be nil when no probe is fitted.
func NewSuite(env Environment, soil *SoilProbe) *Suite {
	return &Suite{env: env, soil: soil}
}

// Read polls every sensor. A failing sensor does not prevent the others from
// being read; the returned error joins every failure.
func (s *Suite) Read(now time.Time) (Reading, error) {
	r := Reading{Time: now}
	var errs []error

	if s.env != nil {
		temp, terr := s.env.Temperature()
		hum, herr := s.env.Humidity()
		if err := errors.Join(terr, herr); err != nil {
			errs = append(errs, fmt.Errorf("read environment: %w", err))
		} else {
			r.Temperature, r.Humidity, r.HasEnvironment = temp, hum, true
		}
	}

	if s.soil != nil {
		raw, pct, err := s.soil.Read()
		if err != nil {
			errs = append(errs, err)
		} else {
			r.MoistureRaw, r.Moisture, r.HasSoil = raw, pct, true
		}
	}

	return r, errors.Join(errs...)
}

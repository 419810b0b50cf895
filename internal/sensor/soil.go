package sensor

import (
	"fmt"
	"time"

	"github.com/sweeney/growlight/internal/gpio"
)

// DefaultSettle is how long the probe is powered before sampling.
const DefaultSettle = 200 * time.Millisecond

// SoilProbe is a capacitive moisture probe whose supply is switched so it
// only draws current (and corrodes) while being read.
type SoilProbe struct {
	adc     AnalogReader
	power   gpio.Output
	channel string
	cal     Calibration
	settle  time.Duration
	sleep   func(time.Duration)
}

// NewSoilProbe returns a probe read through adc on channel, powered by power.
func NewSoilProbe(adc AnalogReader, power gpio.Output, channel string, cal Calibration, settle time.Duration) *SoilProbe {
	return &SoilProbe{
		adc:     adc,
		power:   power,
		channel: channel,
		cal:     cal,
		settle:  settle,
		sleep:   time.Sleep,
	}
}

// WithSleep replaces the settle delay function. Tests pass a no-op.
func (p *SoilProbe) WithSleep(sleep func(time.Duration)) *SoilProbe {
	p.sleep = sleep
	return p
}

// Read powers the probe, waits for it to settle, samples it and powers it
// down again. The supply is switched off even when the sample fails.
func (p *SoilProbe) Read() (raw, pct int, err error) {
	if err := p.power.Set(true); err != nil {
		return 0, 0, fmt.Errorf("power soil probe: %w", err)
	}
	p.sleep(p.settle)

	raw, readErr := p.adc.AnalogRead(p.channel)
	offErr := p.power.Set(false)

	if readErr != nil {
		return 0, 0, fmt.Errorf("read soil probe: %w", readErr)
	}
	if offErr != nil {
		return 0, 0, fmt.Errorf("unpower soil probe: %w", offErr)
	}
	return raw, MoisturePercent(raw, p.cal), nil
}

// Close switches the probe off and releases its supply line.
func (p *SoilProbe) Close() error {
	p.power.Set(false)
	return p.power.Close()
}

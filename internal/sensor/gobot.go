package sensor

import (
	"fmt"

	"gobot.io/x/gobot/v2/drivers/i2c"
)

// Default I2C addresses.
const (
	BME280Address  = 0x76
	ADS1115Address = 0x48
)

// OpenBME280 starts a BME280 on the given bus of a gobot I2C connector.
func OpenBME280(c i2c.Connector, bus, address int) (*i2c.BME280Driver, error) {
	d := i2c.NewBME280Driver(c, i2c.WithBus(bus), i2c.WithAddress(address))
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("start bme280 at 0x%02x: %w", address, err)
	}
	return d, nil
}

// OpenADS1115 starts an ADS1115 ADC on the given bus of a gobot I2C connector.
// Channels are read with AnalogRead("0".."3") for single-ended inputs.
func OpenADS1115(c i2c.Connector, bus, address int) (*i2c.ADS1x15Driver, error) {
	d := i2c.NewADS1115Driver(c, i2c.WithBus(bus), i2c.WithAddress(address))
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("start ads1115 at 0x%02x: %w", address, err)
	}
	return d, nil
}

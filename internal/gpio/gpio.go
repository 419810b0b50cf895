// Package gpio drives the relay outputs and watches the RTC interrupt line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output is a single digital output such as a relay coil or a sensor supply.
type Output interface {
	// Set drives the output to its logical on or off level. Active-low
	// wiring is resolved by the implementation.
	Set(on bool) error

	// Close parks the output off and releases it.
	Close() error
}

// Watcher is a registered edge callback.
type Watcher interface {
	Close() error
}

// DefaultChip is the Raspberry Pi header GPIO controller.
const DefaultChip = "gpiochip0"

// Pin definitions (BCM numbering)
const (
	PinRelay     = 26 // Grow light relay
	PinAlarm     = 23 // DS3231 INT/SQW, open drain, active low
	PinSoilPower = 4  // Soil probe supply
	PinPump      = 16 // Water pump relay, active low, parked off
)

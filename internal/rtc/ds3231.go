package rtc

import (
	"fmt"
	"time"

	"gobot.io/x/gobot/v2/drivers/i2c"
)

// Address is the fixed I2C address of the DS3231.
const Address = 0x68

// Register map.
const (
	regTime    = 0x00 // seconds..year, 7 bytes
	regAlarm1  = 0x07 // seconds, minutes, hours, day/date
	regAlarm2  = 0x0B // minutes, hours, day/date
	regControl = 0x0E
	regStatus  = 0x0F
)

// Control register bits.
const (
	ctrlA1IE  = 0x01
	ctrlA2IE  = 0x02
	ctrlINTCN = 0x04
	ctrlRS1   = 0x08
	ctrlRS2   = 0x10
)

// Status register bits.
const (
	statA1F    = 0x01
	statA2F    = 0x02
	statEN32K  = 0x08
	statOSF    = 0x80
	alarmMaskN = 0x80 // AxMn: field ignored when set
	hour12     = 0x40
	hourPM     = 0x20
	century    = 0x80
)

// Bus is the register-level I2C access the driver needs. A gobot
// i2c.Connection satisfies it.
type Bus interface {
	ReadByteData(reg uint8) (uint8, error)
	WriteByteData(reg uint8, val uint8) error
	ReadBlockData(reg uint8, b []byte) error
	WriteBlockData(reg uint8, b []byte) error
	Close() error
}

// DS3231 drives a Maxim DS3231 over a Bus.
type DS3231 struct {
	bus Bus
}

// Open connects to the DS3231 on the given bus of a gobot I2C connector,
// such as the raspi adaptor.
func Open(c i2c.Connector, bus int) (*DS3231, error) {
	conn, err := c.GetI2cConnection(Address, bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", bus, err)
	}
	d, err := NewDS3231(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// NewDS3231 probes the device on bus and returns a driver for it.
func NewDS3231(bus Bus) (*DS3231, error) {
	if _, err := bus.ReadByteData(regStatus); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPresent, err)
	}
	return &DS3231{bus: bus}, nil
}

func (d *DS3231) Now() (time.Time, error) {
	buf := make([]byte, 7)
	if err := d.bus.ReadBlockData(regTime, buf); err != nil {
		return time.Time{}, fmt.Errorf("read time registers: %w", err)
	}
	year := 2000 + fromBCD(buf[6])
	if buf[5]&century != 0 {
		year += 100
	}
	return time.Date(
		year,
		time.Month(fromBCD(buf[5]&0x1F)),
		fromBCD(buf[4]&0x3F),
		decodeHour(buf[2]),
		fromBCD(buf[1]&0x7F),
		fromBCD(buf[0]&0x7F),
		0, time.UTC,
	), nil
}

func (d *DS3231) SetTime(t time.Time) error {
	t = Wall(t)
	if t.Year() < 2000 || t.Year() > 2199 {
		return fmt.Errorf("set time: year %d out of range", t.Year())
	}
	month := toBCD(int(t.Month()))
	if t.Year() >= 2100 {
		month |= century
	}
	buf := []byte{
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		toBCD(weekday(t)),
		toBCD(t.Day()),
		month,
		toBCD(t.Year() % 100),
	}
	if err := d.bus.WriteBlockData(regTime, buf); err != nil {
		return fmt.Errorf("write time registers: %w", err)
	}
	return d.update(regStatus, statOSF, 0)
}

func (d *DS3231) LostPower() (bool, error) {
	st, err := d.bus.ReadByteData(regStatus)
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	return st&statOSF != 0, nil
}

// SetAlarm programs slot to fire daily at target's time of day. Interrupt
// mode is enabled as a side effect since the alarm is useless without it.
func (d *DS3231) SetAlarm(slot Slot, target time.Time, mode MatchMode) error {
	if !slot.valid() {
		return ErrBadSlot
	}
	if mode != MatchHour {
		return fmt.Errorf("%w: %s", ErrBadMode, mode)
	}

	// Seconds, minutes and hours compared; day/date masked.
	var (
		reg  uint8
		buf  []byte
		ie   uint8
		date = toBCD(target.Day()) | alarmMaskN
	)
	switch slot {
	case SlotOn:
		reg, ie = regAlarm1, ctrlA1IE
		buf = []byte{toBCD(target.Second()), toBCD(target.Minute()), toBCD(target.Hour()), date}
	case SlotOff:
		reg, ie = regAlarm2, ctrlA2IE
		buf = []byte{toBCD(target.Minute()), toBCD(target.Hour()), date}
	}
	if err := d.bus.WriteBlockData(reg, buf); err != nil {
		return fmt.Errorf("write alarm %s: %w", slot, err)
	}
	return d.update(regControl, 0, ctrlINTCN|ie)
}

func (d *DS3231) ClearAlarm(slot Slot) error {
	flag, err := firedBit(slot)
	if err != nil {
		return err
	}
	return d.update(regStatus, flag, 0)
}

func (d *DS3231) AlarmFired(slot Slot) (bool, error) {
	flag, err := firedBit(slot)
	if err != nil {
		return false, err
	}
	st, err := d.bus.ReadByteData(regStatus)
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	return st&flag != 0, nil
}

func (d *DS3231) DisableSquareWave() error {
	if err := d.update(regControl, ctrlRS1|ctrlRS2, ctrlINTCN); err != nil {
		return err
	}
	return d.update(regStatus, statEN32K, 0)
}

func (d *DS3231) Close() error {
	return d.bus.Close()
}

// update read-modify-writes reg, clearing clr bits then setting set bits.
// Writing the status register with an alarm flag bit set leaves that flag
// unchanged, so flags are only ever cleared here.
func (d *DS3231) update(reg, clr, set uint8) error {
	v, err := d.bus.ReadByteData(reg)
	if err != nil {
		return fmt.Errorf("read register 0x%02x: %w", reg, err)
	}
	nv := v&^clr | set
	if nv == v {
		return nil
	}
	if reg == regStatus {
		// A flag raised between read and write must survive.
		nv |= (statA1F | statA2F) &^ clr
	}
	if err := d.bus.WriteByteData(reg, nv); err != nil {
		return fmt.Errorf("write register 0x%02x: %w", reg, err)
	}
	return nil
}

func firedBit(slot Slot) (uint8, error) {
	switch slot {
	case SlotOn:
		return statA1F, nil
	case SlotOff:
		return statA2F, nil
	}
	return 0, ErrBadSlot
}

func decodeHour(b byte) int {
	if b&hour12 == 0 {
		return fromBCD(b & 0x3F)
	}
	h := fromBCD(b & 0x1F)
	if h == 12 {
		h = 0
	}
	if b&hourPM != 0 {
		h += 12
	}
	return h
}

// weekday returns 1 (Monday) to 7 (Sunday).
func weekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

func toBCD(v int) byte   { return byte(v/10<<4 | v%10) }
func fromBCD(b byte) int { return int(b>>4)*10 + int(b&0x0F) }

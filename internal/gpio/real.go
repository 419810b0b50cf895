//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives a GPIO line using the Linux GPIO character device.
type RealOutput struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	pin       int
	activeLow bool
}

// NewRealOutput requests pin on chip as an output, initially off.
func NewRealOutput(chipName string, pin int, activeLow bool) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line, pin: pin, activeLow: activeLow}, nil
}

// Set drives the line. The value is logical, so active-low lines are
// inverted by the kernel.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Close drives the output off, then reconfigures the pin to an input pulled
// to its inactive level before releasing it. For active-high lines this is
// the Pi boot default.
func (o *RealOutput) Close() error {
	var errs []error

	if o.line != nil {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("park pin %d: %w", o.pin, err))
		}
		pull := gpiocdev.WithPullDown
		if o.activeLow {
			pull = gpiocdev.WithPullUp
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, pull); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.pin, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", o.pin, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealWatcher delivers falling edges on an input line to a handler.
type RealWatcher struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// WatchFalling requests pin as an input with pull-up and calls handler on
// every falling edge. The handler runs on a goroutine owned by gpiocdev and
// must not block.
func WatchFalling(chipName string, pin int, handler func()) (*RealWatcher, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request interrupt pin %d: %w", pin, err)
	}

	return &RealWatcher{chip: chip, line: line}, nil
}

// Close stops edge delivery and releases the line.
func (w *RealWatcher) Close() error {
	var errs []error
	if err := w.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close interrupt pin: %w", err))
	}
	if err := w.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}

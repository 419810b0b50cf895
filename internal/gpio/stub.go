//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pin int, activeLow bool) (*RealOutput, error) {
	return nil, errUnsupported
}

func (o *RealOutput) Set(on bool) error { return errUnsupported }

func (o *RealOutput) Close() error { return nil }

// RealWatcher is not available on non-Linux platforms.
type RealWatcher struct{}

// WatchFalling returns an error on non-Linux platforms.
func WatchFalling(chipName string, pin int, handler func()) (*RealWatcher, error) {
	return nil, errUnsupported
}

func (w *RealWatcher) Close() error { return nil }

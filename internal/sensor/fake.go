package sensor

import "sync"

// FakeEnvironment returns fixed conditions.
type FakeEnvironment struct {
	mu    sync.Mutex
	Temp  float32
	Hum   float32
	Err   error
	Reads int
}

func (f *FakeEnvironment) Temperature() (float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Temp, nil
}

func (f *FakeEnvironment) Humidity() (float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Hum, nil
}

// FakeADC returns a fixed raw count and records which channels were read.
type FakeADC struct {
	mu       sync.Mutex
	Value    int
	Err      error
	Channels []string
}

func (f *FakeADC) AnalogRead(pin string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels = append(f.Channels, pin)
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Value, nil
}

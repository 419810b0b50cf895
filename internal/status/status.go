// Package status provides a thread-safe status tracker for the growlight daemon.
// It is written by the control loop and read by HTTP handlers and console clients.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing the network probing code from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Connected reports whether the node has a usable network link.
func (n *NetworkInfo) Connected() bool {
	return n != nil && n.Status == "connected"
}

// Config contains daemon configuration and identity for display.
type Config struct {
	OnHour      int
	OnMinute    int
	Photoperiod time.Duration
	ReconcileMs int64
	SensorMs    int64
	Broker      string
	HTTPAddr    string
	ConsoleAddr string
	Update      bool
	Version     string
	BootID      string
}

// Schedule is the scheduler's state as published by the control loop.
type Schedule struct {
	Light logic.State
	Phase string
	Clock time.Time
	// NextOn and NextOff are the instants the alarms will next fire.
	NextOn  time.Time
	NextOff time.Time
	Counts  logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Schedule
	Reading       sensor.Reading
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the scheduler state. Called from the control loop on every tick.
func (t *Tracker) Update(s Schedule) {
	t.mu.Lock()
	t.snap.Schedule = s
	t.mu.Unlock()
}

// SetReading records the latest sensor poll.
func (t *Tracker) SetReading(r sensor.Reading) {
	t.mu.Lock()
	t.snap.Reading = r
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetNow replaces the time source used to stamp snapshots.
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}

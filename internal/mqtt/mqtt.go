// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

// Topic is the MQTT topic for light events.
const Topic = "growlight/light/events"

// TopicReadings is the MQTT topic for sensor readings.
const TopicReadings = "growlight/environment/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "growlight/system"

// System event names.
const (
	EventStartup  = "STARTUP"
	EventStatus   = "STATUS"
	EventShutdown = "SHUTDOWN"
	EventOffline  = "OFFLINE" // last will, sent by the broker
)

// clockLayout renders RTC readings, which carry no zone.
const clockLayout = "2006-01-02T15:04:05"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a light event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishReading sends a sensor reading to the broker.
	PublishReading(r sensor.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, status, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "STATUS", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "ALARM", "RECONCILE"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a light event.
type Payload struct {
	Light LightPayload `json:"light"`
}

// LightPayload contains the light event details.
type LightPayload struct {
	Clock     string `json:"clock"`
	Event     string `json:"event"`
	Cause     string `json:"cause"`
	State     string `json:"state"`
	NextAlarm string `json:"next_alarm,omitempty"`
}

// FormatPayload creates the JSON payload for a light event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Light: LightPayload{
			Clock: event.Timestamp.Format(clockLayout),
			Event: string(event.Type),
			Cause: string(event.Cause),
			State: string(event.Light),
		},
	}
	if !event.NextAlarm.IsZero() {
		payload.Light.NextAlarm = event.NextAlarm.Format(clockLayout)
	}
	return json.Marshal(payload)
}

// ReadingPayload represents the MQTT message payload for a sensor reading.
type ReadingPayload struct {
	Environment EnvironmentPayload `json:"environment"`
}

// EnvironmentPayload holds one reading. Sensors that failed are omitted.
type EnvironmentPayload struct {
	Clock        string   `json:"clock"`
	TemperatureC *float32 `json:"temperature_c,omitempty"`
	HumidityPct  *float32 `json:"humidity_pct,omitempty"`
	MoisturePct  *int     `json:"moisture_pct,omitempty"`
	MoistureRaw  *int     `json:"moisture_raw,omitempty"`
}

// FormatReadingPayload creates the JSON payload for a sensor reading.
func FormatReadingPayload(r sensor.Reading) ([]byte, error) {
	env := EnvironmentPayload{Clock: r.Time.Format(clockLayout)}
	if r.HasEnvironment {
		temp, hum := r.Temperature, r.Humidity
		env.TemperatureC, env.HumidityPct = &temp, &hum
	}
	if r.HasSoil {
		pct, raw := r.Moisture, r.MoistureRaw
		env.MoisturePct, env.MoistureRaw = &pct, &raw
	}
	return json.Marshal(ReadingPayload{Environment: env})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Light         string           `json:"light"`
	Phase         string           `json:"phase"`
	Clock         string           `json:"clock,omitempty"`
	NextOn        string           `json:"next_on,omitempty"`
	NextOff       string           `json:"next_off,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	BootID        string           `json:"boot_id,omitempty"`
	Version       string           `json:"version,omitempty"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Counts        CountsJSON       `json:"event_counts"`
	Environment   *EnvironmentJSON `json:"environment,omitempty"`
	Network       *NetworkJSON     `json:"network,omitempty"`
	Config        ConfigJSON       `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	AlarmOn     int `json:"alarm_on"`
	AlarmOff    int `json:"alarm_off"`
	Corrections int `json:"corrections"`
}

// EnvironmentJSON is the latest sensor reading. Missing sensors are omitted.
type EnvironmentJSON struct {
	ReadAt       string   `json:"read_at"`
	TemperatureC *float32 `json:"temperature_c,omitempty"`
	HumidityPct  *float32 `json:"humidity_pct,omitempty"`
	MoisturePct  *int     `json:"moisture_pct,omitempty"`
	MoistureRaw  *int     `json:"moisture_raw,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	OnTime      string `json:"on_time"`
	Photoperiod string `json:"photoperiod"`
	ReconcileMs int64  `json:"reconcile_ms"`
	SensorMs    int64  `json:"sensor_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	ConsoleAddr string `json:"console_addr,omitempty"`
	Update      bool   `json:"update_enabled"`
}

func wallOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(clockLayout)
}

func buildInner(snap Snapshot) StatusInner {
	phase := snap.Phase
	if phase == "" {
		phase = "UNKNOWN"
	}

	return StatusInner{
		Light:         lightOrUnknown(snap.Light),
		Phase:         phase,
		Clock:         wallOrEmpty(snap.Clock),
		NextOn:        wallOrEmpty(snap.NextOn),
		NextOff:       wallOrEmpty(snap.NextOff),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		BootID:        snap.Config.BootID,
		Version:       snap.Config.Version,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			AlarmOn:     snap.Counts.AlarmOn,
			AlarmOff:    snap.Counts.AlarmOff,
			Corrections: snap.Counts.Corrections,
		},
		Config: ConfigJSON{
			OnTime:      time.Date(0, 1, 1, snap.Config.OnHour, snap.Config.OnMinute, 0, 0, time.UTC).Format("15:04"),
			Photoperiod: snap.Config.Photoperiod.String(),
			ReconcileMs: snap.Config.ReconcileMs,
			SensorMs:    snap.Config.SensorMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			ConsoleAddr: snap.Config.ConsoleAddr,
			Update:      snap.Config.Update,
		},
	}
}

func buildEnvironment(snap Snapshot, inner *StatusInner) {
	r := snap.Reading
	if !r.HasEnvironment && !r.HasSoil {
		return
	}
	env := &EnvironmentJSON{ReadAt: wallOrEmpty(r.Time)}
	if r.HasEnvironment {
		temp, hum := r.Temperature, r.Humidity
		env.TemperatureC, env.HumidityPct = &temp, &hum
	}
	if r.HasSoil {
		pct, raw := r.Moisture, r.MoistureRaw
		env.MoisturePct, env.MoistureRaw = &pct, &raw
	}
	inner.Environment = env
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildEnvironment(snap, &inner)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildEnvironment(snap, &inner)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

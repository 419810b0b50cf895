package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/growlight/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"wall": func(t time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return t.Format("Mon 2006-01-02 15:04:05")
	},
	"clock": func(h, m int) string {
		return fmt.Sprintf("%02d:%02d", h, m)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Grow Light</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Grow Light</h1>

{{$light := stateOrUnknown (printf "%s" .Light)}}
<h2>Light</h2>
<table>
<tr><th>State</th><td id="light-state" class="{{if eq $light "ON"}}on{{else if eq $light "OFF"}}off{{else}}unknown{{end}}">{{$light}}</td></tr>
<tr><th>Scheduler</th><td>{{stateOrUnknown .Phase}}</td></tr>
<tr><th>Clock</th><td>{{wall .Clock}}</td></tr>
<tr><th>Next ON</th><td>{{wall .NextOn}}</td></tr>
<tr><th>Next OFF</th><td>{{wall .NextOff}}</td></tr>
<tr><th>Schedule</th><td>{{clock .Config.OnHour .Config.OnMinute}} for {{.Config.Photoperiod}}</td></tr>
</table>

<h2>Environment</h2>
<table>
{{if .Reading.HasEnvironment}}<tr><th>Temperature</th><td>{{printf "%.1f" .Reading.Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{printf "%.1f" .Reading.Humidity}} %</td></tr>{{else}}<tr><th>Air</th><td class="unknown">no reading</td></tr>{{end}}
{{if .Reading.HasSoil}}<tr><th>Soil moisture</th><td>{{.Reading.Moisture}} % (raw {{.Reading.MoistureRaw}})</td></tr>{{else}}<tr><th>Soil</th><td class="unknown">no reading</td></tr>{{end}}
{{if not .Reading.Time.IsZero}}<tr><th>Read at</th><td>{{wall .Reading.Time}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Alarm ON</th><td>{{.Counts.AlarmOn}}</td></tr>
<tr><th>Alarm OFF</th><td>{{.Counts.AlarmOff}}</td></tr>
<tr><th>Corrections</th><td>{{.Counts.Corrections}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Version</th><td>{{.Config.Version}}</td></tr>
<tr><th>Reconcile</th><td>{{.Config.ReconcileMs}}ms</td></tr>
<tr><th>Sensors</th><td>{{.Config.SensorMs}}ms</td></tr>
<tr><th>Console</th><td>{{if .Config.ConsoleAddr}}{{.Config.ConsoleAddr}}{{else}}disabled{{end}}</td></tr>
<tr><th>Updates</th><td>{{if .Config.Update}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

const clockLayout = "2006-01-02 15:04:05"

func clockOrUnknown(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(clockLayout)
}

func lightOrUnknown(s logic.State) string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// FormatText renders the periodic status block written to the console.
func FormatText(snap Snapshot) string {
	var b strings.Builder

	netState, ip := "FAIL", "-"
	if snap.Network.Connected() {
		netState = "OK"
	}
	if snap.Network != nil && snap.Network.IP != "" {
		ip = snap.Network.IP
	}

	b.WriteString("--- STATUS ---\n")
	fmt.Fprintf(&b, "Time: %s\n", clockOrUnknown(snap.Clock))
	fmt.Fprintf(&b, "Light: %s\n", lightOrUnknown(snap.Light))
	fmt.Fprintf(&b, "Network: %s\n", netState)
	fmt.Fprintf(&b, "IP: %s\n", ip)
	fmt.Fprintf(&b, "Uptime: %ds\n", int64(snap.Uptime().Seconds()))
	fmt.Fprintf(&b, "Next ON: %s\n", clockOrUnknown(snap.NextOn))
	fmt.Fprintf(&b, "Next OFF: %s\n", clockOrUnknown(snap.NextOff))
	return b.String()
}

// FormatReading renders one sensor poll on a single line, e.g.
// "H:55.20% T:23.10C D:Fri 2026-01-02 10:00:00 M:50%".
func FormatReading(r sensor.Reading) string {
	hum, temp, moist := "--", "--", "--"
	if r.HasEnvironment {
		hum = fmt.Sprintf("%.2f", r.Humidity)
		temp = fmt.Sprintf("%.2f", r.Temperature)
	}
	if r.HasSoil {
		moist = fmt.Sprintf("%d", r.Moisture)
	}
	return fmt.Sprintf("H:%s%% T:%sC D:%s %s M:%s%%",
		hum, temp, r.Time.Format("Mon"), r.Time.Format(clockLayout), moist)
}

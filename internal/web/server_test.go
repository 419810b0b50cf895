package web

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/metrics"
	"github.com/sweeney/growlight/internal/scheduler"
	"github.com/sweeney/growlight/internal/sensor"
	"github.com/sweeney/growlight/internal/status"
	"github.com/sweeney/growlight/internal/update"
)

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() status.Config {
	return status.Config{
		OnHour:      8,
		Photoperiod: 18 * time.Hour,
		ReconcileMs: 30000,
		SensorMs:    1000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
		Version:     "1.2.3",
	}
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, testConfig())
	tr.SetNow(func() time.Time { return start.Add(90 * time.Second) })
	opts.Logger = zerolog.Nop()
	srv := New(":0", tr, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func scheduled(light logic.State) status.Schedule {
	return status.Schedule{
		Light:   light,
		Phase:   string(scheduler.PhaseScheduled),
		Clock:   testClock,
		NextOn:  time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC),
		NextOff: time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC),
		Counts:  logic.EventCounts{AlarmOn: 3, AlarmOff: 2, Corrections: 1},
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(scheduled(logic.StateOn))
	tr.SetMQTTConnected(true)
	tr.SetReading(sensor.Reading{Time: testClock, Temperature: 24.5, Humidity: 50, HasEnvironment: true})

	resp, body := get(t, ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Light != "ON" {
		t.Errorf("Light: got %q, want ON", sj.Status.Light)
	}
	if sj.Status.Phase != "SCHEDULED" {
		t.Errorf("Phase: got %q", sj.Status.Phase)
	}
	if sj.Status.NextOff != "2026-03-11T02:00:00" {
		t.Errorf("NextOff: got %q", sj.Status.NextOff)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Corrections != 1 {
		t.Errorf("Counts.Corrections: got %d, want 1", sj.Status.Counts.Corrections)
	}
	if sj.Status.Environment == nil || sj.Status.Environment.TemperatureC == nil || *sj.Status.Environment.TemperatureC != 24.5 {
		t.Errorf("Environment: got %+v", sj.Status.Environment)
	}
	if sj.Status.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds: got %d, want 90", sj.Status.UptimeSeconds)
	}
}

func TestJSONUnknownBeforeInit(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	_, body := get(t, ts.URL+"/index.json")
	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)

	if sj.Status.Light != "UNKNOWN" {
		t.Errorf("Light before init: got %q, want UNKNOWN", sj.Status.Light)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(scheduled(logic.StateOff))
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "Greenhouse"})
	tr.SetReading(sensor.Reading{Time: testClock, Moisture: 37, MoistureRaw: 2225, HasSoil: true})

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		if resp.StatusCode != 200 {
			t.Errorf("%s: status %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: Content-Type %q", path, ct)
		}
		for _, want := range []string{
			`class="off">OFF<`,
			"Wed 2026-03-11 08:00:00",
			"08:00 for 18h0m0s",
			"37 % (raw 2225)",
			"192.168.1.42",
			"1m 30s",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
	}
}

func TestHealthz(t *testing.T) {
	ts, tr := newTestServer(t, Options{})

	resp, _ := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before init: status %d, want 503", resp.StatusCode)
	}

	tr.Update(scheduled(logic.StateOn))
	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != 200 || body != "ok\n" {
		t.Errorf("after init: %d %q", resp.StatusCode, body)
	}
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	for _, path := range []string{"/nonexistent", "/metrics", "/update"} {
		resp, _ := get(t, ts.URL+path)
		if resp.StatusCode != 404 {
			t.Errorf("%s: status %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveLight(logic.StateOn)
	ts, _ := newTestServer(t, Options{Metrics: m})

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "growlight_light_on 1") {
		t.Errorf("metrics body missing light gauge")
	}
}

type updateFixture struct {
	url     string
	target  string
	metrics *metrics.Metrics
	updater *update.Updater
}

func newUpdateServer(t *testing.T, maxBytes int64) updateFixture {
	t.Helper()
	target := filepath.Join(t.TempDir(), "growlight")
	if err := os.WriteFile(target, []byte("old"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	m := metrics.New()
	u := update.New(target, string(hash), zerolog.Nop())
	ts, _ := newTestServer(t, Options{Metrics: m, Updater: u, MaxImageBytes: maxBytes})
	return updateFixture{url: ts.URL + "/update", target: target, metrics: m, updater: u}
}

func postImage(t *testing.T, f updateFixture, password string, body []byte, sum string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(body))
	if password != "" {
		req.SetBasicAuth("admin", password)
	}
	if sum != "" {
		req.Header.Set(HeaderImageSHA256, sum)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /update: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func elf(body string) []byte {
	return append([]byte{0x7f, 'E', 'L', 'F'}, body...)
}

func TestUpdateEndpoint(t *testing.T) {
	f := newUpdateServer(t, 0)
	img := elf("new image")
	sum := sha256.Sum256(img)

	if code := postImage(t, f, "sesame", img, hex.EncodeToString(sum[:])); code != 200 {
		t.Fatalf("status %d, want 200", code)
	}
	got, _ := os.ReadFile(f.target)
	if !bytes.Equal(got, img) {
		t.Errorf("target = %q, want new image", got)
	}
	select {
	case <-f.updater.Applied():
	default:
		t.Error("expected Applied closed")
	}
	if v := testutil.ToFloat64(f.metrics.Updates.WithLabelValues("ok")); v != 1 {
		t.Errorf("updates ok = %v, want 1", v)
	}
}

func TestUpdateEndpointRejects(t *testing.T) {
	tests := []struct {
		name     string
		password string
		body     []byte
		sum      string
		maxBytes int64
		want     int
		result   string
	}{
		{"no auth", "", elf("x"), "", 0, 401, "unauthorized"},
		{"wrong password", "guess", elf("x"), "", 0, 401, "unauthorized"},
		{"not elf", "sesame", []byte("hello"), "", 0, 422, "rejected"},
		{"bad checksum", "sesame", elf("x"), strings.Repeat("0", 64), 0, 422, "rejected"},
		{"too large", "sesame", elf(strings.Repeat("x", 100)), "", 16, 413, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUpdateServer(t, tt.maxBytes)
			if code := postImage(t, f, tt.password, tt.body, tt.sum); code != tt.want {
				t.Errorf("status %d, want %d", code, tt.want)
			}
			got, _ := os.ReadFile(f.target)
			if string(got) != "old" {
				t.Errorf("target modified: %q", got)
			}
			if v := testutil.ToFloat64(f.metrics.Updates.WithLabelValues(tt.result)); v != 1 {
				t.Errorf("updates %s = %v, want 1", tt.result, v)
			}
		})
	}
}

func TestUpdateRequiresPost(t *testing.T) {
	f := newUpdateServer(t, 0)
	resp, _ := get(t, f.url)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /update: status %d, want 405", resp.StatusCode)
	}
}

// Package metrics exposes daemon state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

const namespace = "growlight"

// Sensor names used for the sensor_errors_total label.
const (
	SensorEnvironment = "environment"
	SensorSoil        = "soil"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	LightOn       prometheus.Gauge
	LightEvents   *prometheus.CounterVec
	Interrupts    prometheus.Counter
	Temperature   prometheus.Gauge
	Humidity      prometheus.Gauge
	Moisture      prometheus.Gauge
	MoistureRaw   prometheus.Gauge
	SensorErrors  *prometheus.CounterVec
	MQTTConnected prometheus.Gauge
	Updates       *prometheus.CounterVec
}

// New creates and registers the daemon metrics, plus Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "light_on",
			Help:      "1 when the light relay is energised.",
		}),
		LightEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "light_events_total",
			Help:      "Light transitions by event and cause.",
		}, []string{"event", "cause"}),
		Interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_interrupts_total",
			Help:      "Clock alarm interrupts serviced.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last air temperature reading.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last relative humidity reading.",
		}),
		Moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "soil_moisture_percent",
			Help:      "Last soil moisture reading.",
		}),
		MoistureRaw: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "soil_moisture_raw",
			Help:      "Last raw soil probe ADC value.",
		}),
		SensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Failed sensor reads by sensor.",
		}, []string{"sensor"}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 when the broker connection is up.",
		}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Firmware update attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.LightOn, m.LightEvents, m.Interrupts,
		m.Temperature, m.Humidity, m.Moisture, m.MoistureRaw, m.SensorErrors,
		m.MQTTConnected, m.Updates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEvent records a light decision.
func (m *Metrics) ObserveEvent(ev logic.Event) {
	m.LightOn.Set(boolGauge(ev.Light.On()))
	m.LightEvents.WithLabelValues(string(ev.Type), string(ev.Cause)).Inc()
}

// ObserveLight records the relay state without counting a transition.
func (m *Metrics) ObserveLight(s logic.State) {
	m.LightOn.Set(boolGauge(s.On()))
}

// ObserveReading records a sensor poll. Sensors missing from r count as errors.
func (m *Metrics) ObserveReading(r sensor.Reading) {
	if r.HasEnvironment {
		m.Temperature.Set(float64(r.Temperature))
		m.Humidity.Set(float64(r.Humidity))
	} else {
		m.SensorErrors.WithLabelValues(SensorEnvironment).Inc()
	}
	if r.HasSoil {
		m.Moisture.Set(float64(r.Moisture))
		m.MoistureRaw.Set(float64(r.MoistureRaw))
	}
}

// ObserveSoilError counts a failed soil probe read.
func (m *Metrics) ObserveSoilError() {
	m.SensorErrors.WithLabelValues(SensorSoil).Inc()
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	m.MQTTConnected.Set(boolGauge(connected))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Package metrics exports converter state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/itohio/gobuck/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "buck"

var _ core.Recorder = (*Collector)(nil)

// Collector implements core.Recorder with Prometheus collectors.
type Collector struct {
	registry *prometheus.Registry

	setpoint prometheus.Gauge
	output   prometheus.Gauge
	current  prometheus.Gauge
	input    prometheus.Gauge
	duty     prometheus.Gauge
	running  prometheus.Gauge

	samples          prometheus.Counter
	ceilingClamps    prometheus.Counter
	conversionFaults prometheus.Counter
	controllerResets prometheus.Counter
	clockFailures    prometheus.Counter
	telemetryLines   *prometheus.CounterVec
}

// New creates a collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_volts",
			Help:      "Filtered output voltage setpoint.",
		}),
		output: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_volts",
			Help:      "Measured output voltage.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_current_milliamps",
			Help:      "Measured load current.",
		}),
		input: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_volts",
			Help:      "Measured input rail voltage.",
		}),
		duty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duty_ratio",
			Help:      "Duty fraction written to the PWM.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1=running,0=idle",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Completed ADC conversions.",
		}),
		ceilingClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoint_ceiling_clamps_total",
			Help:      "Setpoint clamps to the input rail.",
		}),
		conversionFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_faults_total",
			Help:      "ADC conversions that timed out.",
		}),
		controllerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_resets_total",
			Help:      "Controller resets on entering idle.",
		}),
		clockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rtc_read_failures_total",
			Help:      "Failed RTC reads.",
		}),
		telemetryLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_lines_total",
			Help:      "Telemetry lines by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.setpoint, c.output, c.current, c.input, c.duty, c.running,
		c.samples, c.ceilingClamps, c.conversionFaults, c.controllerResets,
		c.clockFailures, c.telemetryLines,
	)
	return c
}

// Registry returns the registry holding the converter metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveSample(s core.Snapshot) {
	c.samples.Inc()
	c.setpoint.Set(float64(s.Setpoint))
	c.output.Set(float64(s.Output))
	c.current.Set(float64(s.Current))
	c.input.Set(float64(s.Input))
}

func (c *Collector) ObserveCeiling() {
	c.ceilingClamps.Inc()
}

func (c *Collector) ObserveConversionFault() {
	c.conversionFaults.Inc()
}

func (c *Collector) ObserveRunState(r core.RunState) {
	if r == core.Running {
		c.running.Set(1)
		return
	}
	c.running.Set(0)
}

func (c *Collector) ObserveDuty(duty float32) {
	c.duty.Set(float64(duty))
}

func (c *Collector) ObserveControllerReset() {
	c.controllerResets.Inc()
}

func (c *Collector) ObserveClockFailure() {
	c.clockFailures.Inc()
}

func (c *Collector) ObserveTelemetry(err error) {
	if err != nil {
		c.telemetryLines.WithLabelValues("error").Inc()
		return
	}
	c.telemetryLines.WithLabelValues("ok").Inc()
}

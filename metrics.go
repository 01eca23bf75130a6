package supra

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for supra's request lifecycle
// and circuits. It is safe for concurrent use, and a nil collector records
// nothing.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec

	compressionFallbacks *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supra_requests_total",
				Help: "Total number of completed HTTP exchanges",
			},
			[]string{"name", "method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supra_request_duration_seconds",
				Help:    "Duration of requests in seconds, including decoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name", "method", "status_code"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "supra_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"name", "method"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supra_errors_total",
				Help: "Total number of failed requests by error type",
			},
			[]string{"type", "name"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "supra_circuit_state",
				Help: "Current state of a circuit (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supra_circuit_transitions_total",
				Help: "Total number of circuit state transitions",
			},
			[]string{"name", "from", "to"},
		),
		compressionFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supra_request_compression_fallbacks_total",
				Help: "Total number of payloads sent uncompressed because compression failed",
			},
			[]string{"name"},
		),
		registry: registry,
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(name, method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(name, method, statusCodeStr).Inc()
	mc.requestDuration.WithLabelValues(name, method, statusCodeStr).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(name, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(name, method).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(name, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(name, method).Dec()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, name string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, name).Inc()
}

// RecordCircuitState sets gauge to circuit state.
func (mc *MetricsCollector) RecordCircuitState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitTransition counts a transition and updates the state gauge.
func (mc *MetricsCollector) RecordCircuitTransition(name string, from, to CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	mc.RecordCircuitState(name, to)
}

// RecordCompressionFallback counts a payload sent uncompressed.
func (mc *MetricsCollector) RecordCompressionFallback(name string) {
	if mc == nil {
		return
	}

	mc.compressionFallbacks.WithLabelValues(name).Inc()
}

// CircuitCollector exports the rolling-window counters of every circuit in a
// registry at scrape time.
type CircuitCollector struct {
	registry *Registry

	successes *prometheus.Desc
	failures  *prometheus.Desc
	timeouts  *prometheus.Desc
	rejects   *prometheus.Desc
	errorPct  *prometheus.Desc
}

// NewCircuitCollector returns a collector over registry.
func NewCircuitCollector(registry *Registry) *CircuitCollector {
	labels := []string{"name", "state"}
	return &CircuitCollector{
		registry:  registry,
		successes: prometheus.NewDesc("supra_circuit_window_successes", "Successful calls in the rolling window", labels, nil),
		failures:  prometheus.NewDesc("supra_circuit_window_failures", "Failed calls, timeouts included, in the rolling window", labels, nil),
		timeouts:  prometheus.NewDesc("supra_circuit_window_timeouts", "Timed out calls in the rolling window", labels, nil),
		rejects:   prometheus.NewDesc("supra_circuit_window_rejects", "Calls rejected by the circuit in the rolling window", labels, nil),
		errorPct:  prometheus.NewDesc("supra_circuit_window_error_percentage", "Error percentage over the rolling window", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *CircuitCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.successes
	ch <- c.failures
	ch <- c.timeouts
	ch <- c.rejects
	ch <- c.errorPct
}

// Collect implements prometheus.Collector.
func (c *CircuitCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.registry.Snapshot() {
		state := s.State.String()
		ch <- prometheus.MustNewConstMetric(c.successes, prometheus.GaugeValue, float64(s.Successes), s.Name, state)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(s.Failures), s.Name, state)
		ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.GaugeValue, float64(s.Timeouts), s.Name, state)
		ch <- prometheus.MustNewConstMetric(c.rejects, prometheus.GaugeValue, float64(s.Rejects), s.Name, state)
		ch <- prometheus.MustNewConstMetric(c.errorPct, prometheus.GaugeValue, s.ErrorPercentage, s.Name, state)
	}
}

package sessionguard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the sink contract for spec §6's counters/timings/gauges.
// Only the contract is specified here — the metrics backend itself is an
// external collaborator. A no-op implementation (NoOpMetrics) is the
// Config default; PrometheusMetrics wires the Prometheus client used
// across the retrieval pack (paulround2tele-studio backend, dcache).
type Metrics interface {
	// Counter increments a named counter by one, with optional tags
	// (e.g. "store", "error").
	Counter(name string, tags map[string]string)
	// Timing records a duration against a named timer.
	Timing(name string, d time.Duration, tags map[string]string)
	// Gauge sets a named gauge to value.
	Gauge(name string, value float64, tags map[string]string)
}

// NoOpMetrics discards every call; it is the Config default so a store
// never requires a metrics backend to function.
type NoOpMetrics struct{}

func (NoOpMetrics) Counter(string, map[string]string)                {}
func (NoOpMetrics) Timing(string, time.Duration, map[string]string)  {}
func (NoOpMetrics) Gauge(string, float64, map[string]string)         {}

// PrometheusMetrics is a Metrics sink backed by prometheus/client_golang,
// modeled on other_examples' dcache MetricSet{Hit, Latency, Error}
// construction (CounterVec/HistogramVec/GaugeVec registered once, looked
// up by label on every call).
type PrometheusMetrics struct {
	counters *prometheus.CounterVec
	timings  *prometheus.HistogramVec
	gauges   *prometheus.GaugeVec
}

// NewPrometheusMetrics registers the three vector metrics under appName
// and returns a Metrics sink. Callers own the *prometheus.Registry (pass
// nil to use the default global registry, as dcache does).
func NewPrometheusMetrics(appName string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: appName + "_sessionguard_total",
			Help: "sessionguard event counters by name and tag.",
		}, []string{"name", "tag_key", "tag_value"}),
		timings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    appName + "_sessionguard_duration_ms",
			Help:    "sessionguard operation latency in milliseconds.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048},
		}, []string{"name"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: appName + "_sessionguard_gauge",
			Help: "sessionguard point-in-time gauges.",
		}, []string{"name"}),
	}
	reg.MustRegister(m.counters, m.timings, m.gauges)
	return m
}

func (m *PrometheusMetrics) Counter(name string, tags map[string]string) {
	k, v := flattenFirstTag(tags)
	m.counters.WithLabelValues(name, k, v).Inc()
}

func (m *PrometheusMetrics) Timing(name string, d time.Duration, _ map[string]string) {
	m.timings.WithLabelValues(name).Observe(float64(d.Milliseconds()))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, _ map[string]string) {
	m.gauges.WithLabelValues(name).Set(value)
}

func flattenFirstTag(tags map[string]string) (key, value string) {
	for k, v := range tags {
		return k, v
	}
	return "", ""
}

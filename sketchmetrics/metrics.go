// Package sketchmetrics instruments sketches and the parallel engine with
// Prometheus metrics, grounded on mingrammer-keyflare's
// internal/metrics/server.go: a small Collector interface with a
// prometheus.Registry-backed implementation, plus a Noop for callers that
// don't want metrics wired in at all.
package sketchmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector receives sketch-lifecycle observations. Implementations must be
// safe for concurrent use. The parallel engine reports once per ParallelAdd
// call, after the merge tournament has finished.
type Collector interface {
	// ObserveAdded records that n additional items were added to a sketch
	// of the given kind ("hll", "cms-linear", "cms-log8", "cms-log16",
	// "hh").
	ObserveAdded(kind string, n uint64)
	// ObserveRecords records that n additional records were attributed to
	// a sketch of the given kind.
	ObserveRecords(kind string, n uint64)
	// ObserveSaturation reports whether a CMS of the given variant has at
	// least one saturated counter. The engine calls it once, after the
	// merge tournament.
	ObserveSaturation(kind string, saturated bool)
}

// Noop is a Collector that discards every observation. It is the default
// when a caller does not configure metrics.
type Noop struct{}

func (Noop) ObserveAdded(string, uint64)       {}
func (Noop) ObserveRecords(string, uint64)     {}
func (Noop) ObserveSaturation(string, bool)    {}

// PrometheusCollector is a Collector backed by its own prometheus.Registry,
// so that multiple independent PrometheusCollector instances (e.g. in
// tests) never collide on the default global registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	added     *prometheus.CounterVec
	records   *prometheus.CounterVec
	saturated *prometheus.GaugeVec
}

// NewPrometheusCollector builds a PrometheusCollector with its own
// registry and registers the sketch_n_added_total, sketch_n_records_total,
// and sketch_cms_saturated metrics on it.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		registry: registry,
		added: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "sketch_n_added_total",
			Help: "Total number of items added to a sketch, by kind.",
		}, []string{"kind"}),
		records: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "sketch_n_records_total",
			Help: "Total number of records attributed to a sketch, by kind.",
		}, []string{"kind"}),
		saturated: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sketch_cms_saturated",
			Help: "1 if the named Count-Min Sketch variant has a saturated counter, else 0.",
		}, []string{"kind"}),
	}
	return c
}

func (c *PrometheusCollector) ObserveAdded(kind string, n uint64) {
	c.added.WithLabelValues(kind).Add(float64(n))
}

func (c *PrometheusCollector) ObserveRecords(kind string, n uint64) {
	c.records.WithLabelValues(kind).Add(float64(n))
}

func (c *PrometheusCollector) ObserveSaturation(kind string, saturated bool) {
	v := 0.0
	if saturated {
		v = 1.0
	}
	c.saturated.WithLabelValues(kind).Set(v)
}

// Registry returns the collector's private prometheus.Registry, for callers
// that want to add further metrics alongside these.
func (c *PrometheusCollector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an http.Handler that serves this collector's metrics in
// the Prometheus text exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

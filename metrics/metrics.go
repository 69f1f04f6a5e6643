// Package metrics exposes prometheus counters for the record lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	migrations  *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	storageErrs *prometheus.CounterVec
	writes      prometheus.Counter
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "record_migrations_total",
			Help:      "Records synthesised, upgraded or repaired on read, by source shape.",
		}, []string{"kind"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "key_resolutions_total",
			Help:      "Storage key resolutions by outcome.",
		}, []string{"outcome"}),
		storageErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "storage_errors_total",
			Help:      "Failed key-value operations by operation.",
		}, []string{"op"}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mosaic",
			Name:      "record_writes_total",
			Help:      "Successful record writes.",
		}),
	}
	reg.MustRegister(m.migrations, m.resolutions, m.storageErrs, m.writes)
	return m
}

func (m *Metrics) Migration(kind string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrs.WithLabelValues(op).Inc()
}

func (m *Metrics) Write() {
	if m == nil {
		return
	}
	m.writes.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

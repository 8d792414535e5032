// Package metrics holds the prometheus collectors of the result store and
// the exporters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	parseErrors  prometheus.Counter
	onceDuration prometheus.Histogram
	exported     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matbench",
			Subsystem: "store",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome",
		}, []string{"outcome"}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "matbench",
			Subsystem: "store",
			Name:      "parse_errors_total",
			Help:      "Run directories that failed to parse",
		}),
		onceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matbench",
			Subsystem: "store",
			Name:      "once_phase_duration_seconds",
			Help:      "Duration of the full artifact parse of a run directory",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		exported: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matbench",
			Subsystem: "lts",
			Name:      "exported_payloads_total",
			Help:      "LTS payloads shipped, by exporter",
		}, []string{"exporter"}),
	}
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) ObserveOncePhase(d time.Duration) {
	if m == nil {
		return
	}
	m.onceDuration.Observe(d.Seconds())
}

func (m *Metrics) Exported(exporter string, n int) {
	if m == nil {
		return
	}
	m.exported.WithLabelValues(exporter).Add(float64(n))
}

// CacheLookups returns the collector counting cache outcomes.
func (m *Metrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }

func (m *Metrics) ParseErrors() prometheus.Counter { return m.parseErrors }

// WriteTextfile writes the current values in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

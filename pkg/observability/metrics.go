package observability

import (
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one engine.
type Metrics struct {
	Registry *prometheus.Registry

	firings    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	tokens     *prometheus.CounterVec
	fatal      *prometheus.CounterVec
	processing *prometheus.HistogramVec
	contexts   prometheus.Gauge
}

// NewMetrics registers the engine collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		firings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sluice_node_firings_total",
				Help: "Total number of processing cycles started per node",
			},
			[]string{"node"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sluice_node_errors_total",
				Help: "Total number of recoverable node errors",
			},
			[]string{"node"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sluice_tokens_committed_total",
				Help: "Total number of tokens committed per output",
			},
			[]string{"node", "port"},
		),
		fatal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sluice_node_fatal_total",
				Help: "Total number of fatal node failures",
			},
			[]string{"node"},
		),
		processing: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sluice_processing_duration_seconds",
				Help:    "Duration of node processing cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sluice_execution_contexts",
			Help: "Number of live execution contexts",
		}),
	}
	m.Registry.MustRegister(m.firings, m.errors, m.tokens, m.fatal, m.processing, m.contexts)
	return m
}

// Observe records one node event.
func (m *Metrics) Observe(e domain.Event) {
	node := e.Label
	if node == "" {
		node = e.Node.String()
	}
	switch e.Type {
	case domain.EventProcessingStarted:
		m.firings.WithLabelValues(node).Inc()
	case domain.EventProcessingFinished:
		m.processing.WithLabelValues(node).Observe(e.Duration)
	case domain.EventErrorRaised:
		m.errors.WithLabelValues(node).Inc()
	case domain.EventTokenCommitted:
		m.tokens.WithLabelValues(node, e.Port).Inc()
	case domain.EventFatal:
		m.fatal.WithLabelValues(node).Inc()
	}
}

// SetContexts records the number of live execution contexts.
func (m *Metrics) SetContexts(n int) {
	m.contexts.Set(float64(n))
}

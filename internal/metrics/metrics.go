// Package metrics provides Prometheus collectors for the session service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "veo_studio"

// Generation outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeAuthorization = "authorization"
	OutcomeNotFound      = "not_found"
	OutcomeGeneric       = "generic"
	OutcomeStale         = "stale"
)

// Store write results.
const (
	WriteOK          = "ok"
	WriteUnavailable = "unavailable"
	WriteFailed      = "failed"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Generations        *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	StoreWrites        *prometheus.CounterVec
	LiveHandles        prometheus.Gauge
	Transitions        *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh prometheus.NewRegistry
// keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "total",
				Help:      "Total number of generation runs by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Generation duration in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
			},
		),
		StoreWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "writes_total",
				Help:      "Total number of history writes by result",
			},
			[]string{"result"},
		),
		LiveHandles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "handle",
				Name:      "live",
				Help:      "Number of live media handles",
			},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// ObserveGeneration records one finished generation run.
func (m *Metrics) ObserveGeneration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
	if outcome != OutcomeStale {
		m.GenerationDuration.Observe(d.Seconds())
	}
}

// ObserveWrite records one history write.
func (m *Metrics) ObserveWrite(result string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(result).Inc()
}

// SetLiveHandles sets the live handle gauge.
func (m *Metrics) SetLiveHandles(n int) {
	if m == nil {
		return
	}
	m.LiveHandles.Set(float64(n))
}

// ObserveTransition records a session state change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

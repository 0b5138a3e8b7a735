package deletion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	captured *prometheus.CounterVec
	evicted  prometheus.Counter
	restores *prometheus.CounterVec
}

// NewMetrics registers the snapshot counters on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		captured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_snapshots_captured_total",
			Help: "Deleted entities captured for undo.",
		}, []string{"type"}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_snapshots_evicted_total",
			Help: "Expired snapshots removed during scans.",
		}),
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_restores_total",
			Help: "Snapshot restore attempts by outcome.",
		}, []string{"type", "result"}),
	}
}

func (m *Metrics) capturedInc(t EntityType) {
	if m == nil {
		return
	}
	m.captured.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) evictedInc() {
	if m == nil {
		return
	}
	m.evicted.Inc()
}

func (m *Metrics) restoreInc(t EntityType, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.restores.WithLabelValues(string(t), result).Inc()
}

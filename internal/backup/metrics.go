package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created  *prometheus.CounterVec
	restored *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_backups_created_total",
			Help: "Backups written, by type and trigger.",
		}, []string{"type", "trigger"}),
		restored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_backup_restore_items_total",
			Help: "Entities processed by backup restores, by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) createdInc(t Type, trigger string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(t), trigger).Inc()
}

func (m *Metrics) restoredAdd(r RestoreResult) {
	if m == nil {
		return
	}
	m.restored.WithLabelValues("created").Add(float64(r.Created))
	m.restored.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.restored.WithLabelValues("failed").Add(float64(r.Failed))
}

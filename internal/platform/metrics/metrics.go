package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	TransactionsOpened prometheus.Counter
	StageChanges       prometheus.Counter
	DocumentsSubmitted prometheus.Counter
	DocumentsReviewed  *prometheus.CounterVec
	Deletions          *prometheus.CounterVec
	Restores           *prometheus.CounterVec
}

// New creates all metrics on the default registry. The process may call this
// at most once.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransactionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_transactions_opened_total",
			Help: "Total number of transactions opened",
		}),
		StageChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_stage_changes_total",
			Help: "Total number of stage transitions applied",
		}),
		DocumentsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_documents_submitted_total",
			Help: "Total number of document versions submitted",
		}),
		DocumentsReviewed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_documents_reviewed_total",
			Help: "Total number of document reviews by decision",
		}, []string{"decision"}),
		Deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_deletions_total",
			Help: "Total number of soft deletes by resource type",
		}, []string{"resource_type"}),
		Restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_restores_total",
			Help: "Total number of restores by resource type",
		}, []string{"resource_type"}),
	}
}

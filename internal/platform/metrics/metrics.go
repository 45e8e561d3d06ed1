package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	HoldsCreated           prometheus.Counter
	HoldsIssued            prometheus.Counter
	HoldsReleased          prometheus.Counter
	NotificationsRequested prometheus.Counter
	Acknowledgments        prometheus.Counter
	Escalations            prometheus.Counter
	RemindersDispatched    prometheus.Counter
	DispatchFailures       prometheus.Counter
	ComplianceRate         *prometheus.GaugeVec
	OperationDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HoldsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_holds_created_total",
			Help: "Total number of legal holds created",
		}),
		HoldsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_holds_issued_total",
			Help: "Total number of legal holds issued (Draft to Active)",
		}),
		HoldsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_holds_released_total",
			Help: "Total number of legal holds fully released",
		}),
		NotificationsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_notifications_requested_total",
			Help: "Total number of custodian notifications recorded",
		}),
		Acknowledgments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_acknowledgments_total",
			Help: "Total number of custodian acknowledgments recorded",
		}),
		Escalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_escalations_total",
			Help: "Total number of custodian escalations",
		}),
		RemindersDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_reminders_dispatched_total",
			Help: "Total number of reminder dispatch attempts recorded",
		}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "holdright_dispatch_failures_total",
			Help: "Total number of failed notification delivery attempts",
		}),
		ComplianceRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "holdright_hold_compliance_rate",
			Help: "Latest compliance rate per hold (0-100)",
		}, []string{"hold_id"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "holdright_operation_duration_seconds",
			Help:    "Latency of hold service operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

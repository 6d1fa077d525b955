package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the business counters exported on /metrics.
type Metrics struct {
	Signups           *prometheus.CounterVec
	Promotions        prometheus.Counter
	HoldsCreated      *prometheus.CounterVec
	HoldTransitions   *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	TablesLocked      *prometheus.CounterVec
	MaintenanceRuns   *prometheus.CounterVec
	MaintenanceTiming prometheus.Histogram
}

// NewMetrics registers the counters with reg.  A nil registry creates a
// private one, which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Signups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_signups_total",
			Help: "Signups created, by source",
		}, []string{"source"}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Name: "tables_waitlist_promotions_total",
			Help: "Waitlist entries promoted into a signup",
		}),
		HoldsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_holds_created_total",
			Help: "Collateral hold rows created, by strategy and status",
		}, []string{"strategy", "status"}),
		HoldTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_hold_transitions_total",
			Help: "Hold status transitions applied, by target status",
		}, []string{"status"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_webhook_events_total",
			Help: "Webhook events received, by type and outcome",
		}, []string{"type", "outcome"}),
		TablesLocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_locked_total",
			Help: "Tables locked by maintenance, by outcome",
		}, []string{"outcome"}),
		MaintenanceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tables_maintenance_runs_total",
			Help: "Maintenance sweeps, by result",
		}, []string{"result"}),
		MaintenanceTiming: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tables_maintenance_duration_seconds",
			Help:    "Duration of a maintenance sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Package metrics exposes Prometheus instrumentation for the patch
// ledger daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PendingPatches tracks the current size of the pending ledger.
	PendingPatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sktm",
		Name:      "pending_patches",
		Help:      "Number of patches currently in the pending ledger.",
	})

	// PendingJobs tracks registered CI builds awaiting completion.
	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sktm",
		Name:      "pending_jobs",
		Help:      "Number of pending CI jobs.",
	})

	// ExpiredPendingPatches tracks patches pending past the expiry window.
	ExpiredPendingPatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sktm",
		Name:      "expired_pending_patches",
		Help:      "Number of patches pending longer than the expiry window.",
	})

	// MigrationsApplied counts schema migrations applied at startup.
	MigrationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sktm",
		Name:      "migrations_applied_total",
		Help:      "Number of schema migrations applied.",
	})

	// LedgerOps counts ledger mutations by operation and outcome.
	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sktm",
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by operation and outcome.",
	}, []string{"operation", "outcome"})
)

// ObserveOp records a ledger operation outcome.
func ObserveOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LedgerOps.WithLabelValues(operation, outcome).Inc()
}

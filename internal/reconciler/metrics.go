package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirror the reconcile-loop counters and gauges (§4.E, §6):
// devopspolicy_reconcile_total, devopspolicy_reconcile_errors_total,
// devopspolicy_violations_total{namespace,policy},
// devopspolicy_health_score{namespace,policy}.
var (
	ReconcileTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "reconcile_total",
			Help:      "Total number of reconcile cycles run",
		},
	)

	ReconcileErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "reconcile_errors_total",
			Help:      "Total number of reconcile cycles that returned an error",
		},
	)

	RemediationsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "remediations_applied_total",
			Help:      "Total number of enforcement patches successfully applied",
		},
	)

	RemediationsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "remediations_failed_total",
			Help:      "Total number of enforcement patches that failed to apply",
		},
	)

	PodsScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "pods_scanned_total",
			Help:      "Total number of pods evaluated across all reconcile cycles",
		},
	)

	AuditResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devopspolicy",
			Name:      "audit_results_total",
			Help:      "Total number of PolicyAuditResult objects written",
		},
	)

	ViolationsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devopspolicy",
			Name:      "violations_total",
			Help:      "Violations observed in the most recent reconcile cycle",
		},
		[]string{"namespace", "policy"},
	)

	HealthScoreGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devopspolicy",
			Name:      "health_score",
			Help:      "Health score computed in the most recent reconcile cycle (0-100)",
		},
		[]string{"namespace", "policy"},
	)

	EnforcementModeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devopspolicy",
			Name:      "enforcement_mode",
			Help:      "1 if the policy's enforcementMode is enforce, 0 if audit",
		},
		[]string{"namespace", "policy"},
	)

	ViolationsBySeverityGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devopspolicy",
			Name:      "violations_by_severity",
			Help:      "Violations observed in the most recent reconcile cycle, by severity",
		},
		[]string{"severity", "namespace", "policy"},
	)

	ReconcileDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "devopspolicy",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a single reconcile cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// ClearNamespaceGauges zeroes out the per-namespace/policy gauge series on
// finalization, so a deleted DevOpsPolicy does not leave stale series
// behind (§4.E handle_deletion).
func ClearNamespaceGauges(namespace, policyName string) {
	ViolationsGauge.DeleteLabelValues(namespace, policyName)
	HealthScoreGauge.DeleteLabelValues(namespace, policyName)
	EnforcementModeGauge.DeleteLabelValues(namespace, policyName)
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		ViolationsBySeverityGauge.DeleteLabelValues(sev, namespace, policyName)
	}
}

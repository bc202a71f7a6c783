package watchagg

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a dedicated Prometheus registry for the watch aggregator
// (§4.F), kept separate from the reconciler's default registry so the
// watch /metrics endpoint serves only the watch aggregator's series. A
// replica that loses leadership resets is_leader to 0; its score and
// pod-count gauges keep their last values.
var Registry = prometheus.NewRegistry()

var (
	ClusterHealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devopspolicy",
		Subsystem: "watch",
		Name:      "cluster_health_score",
		Help:      "Unweighted mean health score across all tracked namespaces",
	})

	NamespaceHealthScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "devopspolicy",
		Subsystem: "watch",
		Name:      "namespace_health_score",
		Help:      "Health score for a single namespace's currently tracked pods",
	}, []string{"namespace"})

	PodEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devopspolicy",
		Subsystem: "watch",
		Name:      "pod_events_total",
		Help:      "Total number of pod watch events processed",
	})

	PodsTrackedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devopspolicy",
		Subsystem: "watch",
		Name:      "pods_tracked_total",
		Help:      "Number of distinct pods currently tracked",
	})

	LeaderGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devopspolicy",
		Subsystem: "watch",
		Name:      "is_leader",
		Help:      "1 if this replica currently holds the watch leader lease, 0 otherwise",
	})
)

func init() {
	Registry.MustRegister(ClusterHealthScore, NamespaceHealthScore, PodEventsTotal, PodsTrackedGauge, LeaderGauge)
}

// UpdatePrometheusMetrics snapshots the aggregator's current health-score
// state into the watch registry's gauges (§4.F update_prometheus_metrics).
// PodEventsTotal is incremented directly as events are processed, not
// snapshotted here.
func UpdatePrometheusMetrics(a *Aggregator) {
	ClusterHealthScore.Set(float64(a.ClusterScore()))
	PodsTrackedGauge.Set(float64(a.PodsTracked()))
	for ns, score := range a.NamespaceScores() {
		NamespaceHealthScore.WithLabelValues(ns).Set(float64(score))
	}
}

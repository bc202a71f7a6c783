package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is a dedicated Prometheus registry for the admission webhook
// (§4.D), separate from the reconciler's and watch aggregator's so the
// webhook's /metrics endpoint never reports a stale or foreign series.
var Registry = prometheus.NewRegistry()

var (
	RequestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "devopspolicy",
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Total admission webhook requests by operation and allowed/denied",
	}, []string{"operation", "allowed"})

	DenialsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "devopspolicy",
		Subsystem: "webhook",
		Name:      "denials_total",
		Help:      "Total admission webhook denials by namespace",
	}, []string{"namespace"})

	RequestDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "devopspolicy",
		Subsystem: "webhook",
		Name:      "request_duration_seconds",
		Help:      "Duration of admission webhook request processing in seconds",
	})
)

package watchagg

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the watch aggregator's HTTP surface: /metrics against the
// dedicated watch registry, plus /healthz and /readyz liveness probes.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", handleOK)
	mux.HandleFunc("/readyz", handleOK)
	return mux
}

func handleOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

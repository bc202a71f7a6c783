package admission

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// PolicyLookup resolves the effective DevOpsPolicy spec for a namespace, or
// nil when no policy applies to it.
type PolicyLookup func(namespace string) *policy.Spec

// Server is the HTTP handler for the validating admission webhook (§4.D,
// §6). It fails open: any error decoding the request, or no policy found
// for the pod's namespace, allows the pod through rather than blocking the
// API server.
type Server struct {
	Lookup      PolicyLookup
	MinSeverity policy.Severity

	ready atomic.Bool
}

// SetReady flips the readiness probe's answer. `webhook serve` sets it to
// true after building its clients, before it starts listening; no
// connectivity check against the cluster is made first.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate", s.handleValidate)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("NOT READY"))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { RequestDuration.Observe(time.Since(start).Seconds()) }()

	review := admissionv1.AdmissionReview{}
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		slog.Error("admission: failed to decode review", "error", err)
		writeReview(w, allowReview(nil, true, ""))
		return
	}

	req := review.Request
	if req == nil {
		writeReview(w, allowReview(nil, true, ""))
		return
	}

	pod := &corev1.Pod{}
	if err := json.Unmarshal(req.Object.Raw, pod); err != nil {
		slog.Error("admission: failed to decode pod object", "error", err, "uid", req.UID)
		writeReview(w, allowReview(req, true, ""))
		return
	}
	if pod.Namespace == "" {
		pod.Namespace = req.Namespace
	}

	spec := s.Lookup(pod.Namespace)
	verdict := ValidatePodAdmissionWithSeverity(pod, spec, s.MinSeverity)

	RequestsTotal.WithLabelValues(string(req.Operation), strconv.FormatBool(verdict.Allowed)).Inc()
	if !verdict.Allowed {
		DenialsTotal.WithLabelValues(pod.Namespace).Inc()
	}

	slog.Info("admission decision",
		"namespace", pod.Namespace, "pod", pod.Name,
		"allowed", verdict.Allowed, "violations", len(verdict.Violations))

	writeReview(w, allowReview(req, verdict.Allowed, verdict.Message))
}

func allowReview(req *admissionv1.AdmissionRequest, allowed bool, message string) admissionv1.AdmissionReview {
	resp := &admissionv1.AdmissionResponse{Allowed: allowed}
	if req != nil {
		resp.UID = req.UID
	}
	if !allowed {
		resp.Result = &metav1.Status{Message: message}
	}
	return admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			Kind:       "AdmissionReview",
			APIVersion: "admission.k8s.io/v1",
		},
		Response: resp,
	}
}

func writeReview(w http.ResponseWriter, review admissionv1.AdmissionReview) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(review); err != nil {
		slog.Error("admission: failed to encode review response", "error", err)
	}
}

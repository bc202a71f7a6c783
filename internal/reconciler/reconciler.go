// Package reconciler implements the DevOpsPolicy reconcile loop (§4.E):
// finalizer lifecycle, policy-gated pod evaluation across the policy's
// namespace, enforcement application, status write-back, and audit result
// emission.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/stochasticquant/kube-devops-operator/internal/enforcement"
	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// Clock returns the current time; overridden in tests for deterministic
// audit-result naming.
type Clock func() time.Time

// Reconciler runs one DevOpsPolicy through its full reconcile cycle.
type Reconciler struct {
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
	Clock   Clock

	RequeueInterval      time.Duration
	ErrorRequeueInterval time.Duration
	AuditRetention       int
}

// Result instructs the caller when to requeue this DevOpsPolicy next.
type Result struct {
	RequeueAfter time.Duration
}

func (r *Reconciler) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Reconcile runs a single pass for the DevOpsPolicy obj (§4.E state
// table): deletion handling takes priority over every other phase; a
// level-triggered short-circuit skips evaluation when observedGeneration
// already matches metadata.generation and the object is not being deleted.
func (r *Reconciler) Reconcile(ctx context.Context, obj *unstructured.Unstructured) (Result, error) {
	ReconcileTotal.Inc()
	start := r.now()
	defer func() { ReconcileDurationSeconds.Observe(r.now().Sub(start).Seconds()) }()

	result, err := r.reconcile(ctx, obj)
	if err != nil {
		ReconcileErrorsTotal.Inc()
		slog.Error("reconcile failed", "policy", obj.GetName(), "namespace", obj.GetNamespace(), "error", err)
		return Result{RequeueAfter: r.errorRequeueInterval()}, err
	}
	return result, nil
}

func (r *Reconciler) reconcile(ctx context.Context, obj *unstructured.Unstructured) (Result, error) {
	if obj.GetDeletionTimestamp() != nil {
		return r.handleDeletion(ctx, obj)
	}

	if err := EnsureFinalizer(ctx, r.Dynamic, obj); err != nil {
		return Result{}, err
	}

	spec, err := decodeSpec(obj)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode DevOpsPolicy spec: %w", err)
	}

	observedGeneration, _, _ := unstructured.NestedInt64(obj.Object, "status", "observedGeneration")
	if observedGeneration == obj.GetGeneration() {
		return Result{RequeueAfter: r.requeueInterval()}, nil
	}

	namespace := obj.GetNamespace()
	pods, err := r.Typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("failed to list pods in namespace %s: %w", namespace, err)
	}

	var metrics policy.Metrics
	var violations []policy.ViolationDetail
	remediated := 0
	failed := 0
	var remediatedWorkloads []string
	seen := map[string]bool{}

	for i := range pods.Items {
		pod := &pods.Items[i]
		PodsScannedTotal.Inc()
		metrics.Add(governance.EvaluateMetrics(pod, spec))
		violations = append(violations, governance.DetectViolationsDetailed(pod, spec)...)

		plan, ok := enforcement.PlanRemediation(ctx, r.Typed, pod, spec)
		if !ok {
			continue
		}
		key := plan.Workload.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		remediatedWorkloads = append(remediatedWorkloads, key)

		if err := r.applyPlan(ctx, namespace, plan, pod, spec); err != nil {
			slog.Error("enforcement apply failed", "workload", key, "error", err)
			failed++
			RemediationsFailedTotal.Inc()
			continue
		}
		remediated++
		RemediationsAppliedTotal.Inc()
	}

	score := governance.CalculateHealthScore(metrics)
	classification := governance.Classify(score)

	r.recordMetrics(namespace, obj.GetName(), score, violations, spec)

	if err := r.writeStatus(ctx, obj, spec, obj.GetGeneration(), score, uint32(len(violations)), uint32(remediated), uint32(failed), remediatedWorkloads, classification); err != nil {
		return Result{}, err
	}

	result := policy.AuditResult{
		PolicyName:      obj.GetName(),
		Timestamp:       r.now().UTC().Format(time.RFC3339),
		HealthScore:     score,
		TotalViolations: uint32(len(violations)),
		TotalPods:       metrics.TotalPods,
		Classification:  classification,
		Violations:      violations,
	}
	if err := WriteAuditResult(ctx, r.Dynamic, namespace, result, r.now().UnixMilli(), r.auditRetention()); err != nil {
		return Result{}, err
	}

	return Result{RequeueAfter: r.requeueInterval()}, nil
}

func (r *Reconciler) applyPlan(ctx context.Context, namespace string, plan *enforcement.Plan, pod *corev1.Pod, spec *policy.Spec) error {
	patchBytes, err := enforcement.BuildPatch(plan, pod.Spec.Containers, spec.DefaultProbe, spec.DefaultResources)
	if err != nil {
		return fmt.Errorf("failed to build patch: %w", err)
	}

	gvr := workloadGVR(plan.Workload.Kind)
	_, err = r.Dynamic.Resource(gvr).Namespace(namespace).Patch(ctx, plan.Workload.Name, types.StrategicMergePatchType, patchBytes, metav1.PatchOptions{FieldManager: enforcement.FieldManager})
	if err != nil {
		return fmt.Errorf("failed to patch %s: %w", plan.Workload.Key(), err)
	}
	return nil
}

func workloadGVR(kind string) schema.GroupVersionResource {
	switch kind {
	case "StatefulSet":
		return schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "statefulsets"}
	case "DaemonSet":
		return schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "daemonsets"}
	default:
		return schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	}
}

func (r *Reconciler) recordMetrics(namespace, policyName string, score uint32, violations []policy.ViolationDetail, spec *policy.Spec) {
	HealthScoreGauge.WithLabelValues(namespace, policyName).Set(float64(score))
	ViolationsGauge.WithLabelValues(namespace, policyName).Set(float64(len(violations)))
	if spec.IsEnforceMode() {
		EnforcementModeGauge.WithLabelValues(namespace, policyName).Set(1)
	} else {
		EnforcementModeGauge.WithLabelValues(namespace, policyName).Set(0)
	}

	bySeverity := map[policy.Severity]int{}
	for _, v := range violations {
		bySeverity[v.Severity]++
	}
	for _, sev := range []policy.Severity{policy.SeverityCritical, policy.SeverityHigh, policy.SeverityMedium, policy.SeverityLow} {
		ViolationsBySeverityGauge.WithLabelValues(string(sev), namespace, policyName).Set(float64(bySeverity[sev]))
	}
}

func (r *Reconciler) writeStatus(ctx context.Context, obj *unstructured.Unstructured, spec *policy.Spec, generation int64, score, violationsCount, applied, failed uint32, remediated []string, classification string) error {
	healthy := score >= 80
	message := fmt.Sprintf("%s: health score %d, %d violation(s) across the namespace", classification, score, violationsCount)
	lastEvaluated := r.now().UTC().Format(time.RFC3339)

	status := map[string]any{
		"observedGeneration":  generation,
		"healthy":             healthy,
		"healthScore":         int64(score),
		"violations":          int64(violationsCount),
		"lastEvaluated":       lastEvaluated,
		"message":             message,
		"remediationsApplied": int64(applied),
		"remediationsFailed":  int64(failed),
	}
	if len(remediated) > 0 {
		workloads := make([]any, len(remediated))
		for i, w := range remediated {
			workloads[i] = w
		}
		status["remediatedWorkloads"] = workloads
	}

	patch := map[string]any{"status": status}
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal status patch: %w", err)
	}

	_, err = r.Dynamic.Resource(k8sclient.DevOpsPolicyGVR).Namespace(obj.GetNamespace()).Patch(
		ctx, obj.GetName(), types.MergePatchType, patchBytes,
		metav1.PatchOptions{FieldManager: "kube-devops-operator"}, "status",
	)
	if err != nil {
		return fmt.Errorf("failed to write DevOpsPolicy status for %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}
	return nil
}

func (r *Reconciler) handleDeletion(ctx context.Context, obj *unstructured.Unstructured) (Result, error) {
	if !HasFinalizer(obj) {
		return Result{}, nil
	}
	ClearNamespaceGauges(obj.GetNamespace(), obj.GetName())
	if err := RemoveFinalizer(ctx, r.Dynamic, obj); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

func (r *Reconciler) requeueInterval() time.Duration {
	if r.RequeueInterval <= 0 {
		return 30 * time.Second
	}
	return r.RequeueInterval
}

func (r *Reconciler) errorRequeueInterval() time.Duration {
	if r.ErrorRequeueInterval <= 0 {
		return 60 * time.Second
	}
	return r.ErrorRequeueInterval
}

func (r *Reconciler) auditRetention() int {
	if r.AuditRetention <= 0 {
		return policy.AuditRetention
	}
	return r.AuditRetention
}

func decodeSpec(obj *unstructured.Unstructured) (*policy.Spec, error) {
	specMap, found, err := unstructured.NestedMap(obj.Object, "spec")
	if err != nil {
		return nil, err
	}
	var spec policy.Spec
	if !found {
		return &spec, nil
	}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(specMap, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

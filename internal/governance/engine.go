package governance

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// restartCountOf returns the restart count client-go reports for a
// container, by name, via pod.Status.ContainerStatuses. Zero if unknown.
func restartCountOf(pod *corev1.Pod, containerName string) int32 {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == containerName {
			return cs.RestartCount
		}
	}
	return 0
}

func hasLatestTag(image string) bool {
	return strings.HasSuffix(image, ":latest")
}

// EvaluateMetrics contributes exactly 1 to TotalPods and, for each
// container, increments the counter for every enabled check that fails.
// A policy of nil is treated as the empty (no-op) policy.
func EvaluateMetrics(pod *corev1.Pod, spec *policy.Spec) policy.Metrics {
	m := policy.Metrics{TotalPods: 1}
	if pod.Spec.Containers == nil {
		return m
	}

	restartThreshold := int32(1<<31 - 1) // sentinel: nothing exceeds it when unset
	if spec != nil && spec.MaxRestartCount != nil {
		restartThreshold = *spec.MaxRestartCount
	}

	for _, c := range pod.Spec.Containers {
		if spec != nil && boolEnabled(spec.ForbidLatestTag) && hasLatestTag(c.Image) {
			m.LatestTag++
		}
		if spec != nil && boolEnabled(spec.RequireLivenessProbe) && c.LivenessProbe == nil {
			m.MissingLiveness++
		}
		if spec != nil && boolEnabled(spec.RequireReadinessProbe) && c.ReadinessProbe == nil {
			m.MissingReadiness++
		}
		if spec != nil && spec.MaxRestartCount != nil {
			rc := restartCountOf(pod, c.Name)
			if rc > restartThreshold {
				capped := rc
				if capped > 5 {
					capped = 5
				}
				if capped < 0 {
					capped = 0
				}
				m.HighRestarts += uint32(capped)
			}
		}
	}

	if spec != nil && spec.ForbidPendingDuration != nil && pod.Status.Phase == corev1.PodPending {
		m.Pending = 1
	}

	return m
}

func boolEnabled(b *bool) bool {
	return b != nil && *b
}

// EvaluatePodUnconditional is the policy-free evaluation used by the watch
// aggregator (§4.F), which tracks every namespace without resolving a
// per-namespace policy object. All checks are always on, with a fixed
// restart threshold of 3 — matching the original engine's base evaluator.
func EvaluatePodUnconditional(pod *corev1.Pod) policy.Metrics {
	m := policy.Metrics{TotalPods: 1}
	const restartThreshold = 3

	for _, c := range pod.Spec.Containers {
		if hasLatestTag(c.Image) {
			m.LatestTag++
		}
		if c.LivenessProbe == nil {
			m.MissingLiveness++
		}
		if c.ReadinessProbe == nil {
			m.MissingReadiness++
		}
		rc := restartCountOf(pod, c.Name)
		if rc > restartThreshold {
			capped := rc
			if capped > 5 {
				capped = 5
			}
			if capped < 0 {
				capped = 0
			}
			m.HighRestarts += uint32(capped)
		}
	}

	if pod.Status.Phase == corev1.PodPending {
		m.Pending = 1
	}

	return m
}

// DetectViolationsUnconditional returns the check names (not full detail
// records) that fail under the unconditional, policy-free ruleset.
func DetectViolationsUnconditional(pod *corev1.Pod) []policy.CheckType {
	var out []policy.CheckType
	const restartThreshold = 3

	for _, c := range pod.Spec.Containers {
		if hasLatestTag(c.Image) {
			out = append(out, policy.CheckLatestTag)
		}
		if c.LivenessProbe == nil {
			out = append(out, policy.CheckMissingLiveness)
		}
		if c.ReadinessProbe == nil {
			out = append(out, policy.CheckMissingReadiness)
		}
		if restartCountOf(pod, c.Name) > restartThreshold {
			out = append(out, policy.CheckHighRestarts)
		}
	}

	if pod.Status.Phase == corev1.PodPending {
		out = append(out, policy.CheckPending)
	}

	return out
}

// DetectViolationsWithPolicy returns just the check names (not full detail
// records) that fail under the policy-gated ruleset, for callers that need
// only the check names or a count.
func DetectViolationsWithPolicy(pod *corev1.Pod, spec *policy.Spec) []policy.CheckType {
	details := DetectViolationsDetailed(pod, spec)
	out := make([]policy.CheckType, len(details))
	for i, d := range details {
		out[i] = d.ViolationType
	}
	return out
}

// DetectViolationsDetailed produces one ViolationDetail per (container,
// failing check), with severity resolved via overrides.get(type) ??
// defaults(type).
func DetectViolationsDetailed(pod *corev1.Pod, spec *policy.Spec) []policy.ViolationDetail {
	var out []policy.ViolationDetail
	if spec == nil {
		return out
	}

	podName := pod.Name
	if podName == "" {
		podName = "unknown"
	}
	namespace := pod.Namespace
	if namespace == "" {
		namespace = "default"
	}

	restartThreshold := int32(1<<31 - 1)
	if spec.MaxRestartCount != nil {
		restartThreshold = *spec.MaxRestartCount
	}

	sev := func(check policy.CheckType) policy.Severity {
		return policy.EffectiveSeverity(check, spec.SeverityOverrides)
	}

	for _, c := range pod.Spec.Containers {
		if boolEnabled(spec.ForbidLatestTag) && hasLatestTag(c.Image) {
			out = append(out, policy.ViolationDetail{
				ViolationType: policy.CheckLatestTag,
				Severity:      sev(policy.CheckLatestTag),
				PodName:       podName,
				Namespace:     namespace,
				ContainerName: c.Name,
				Message:       fmt.Sprintf("container '%s' uses :latest tag", c.Name),
			})
		}
		if boolEnabled(spec.RequireLivenessProbe) && c.LivenessProbe == nil {
			out = append(out, policy.ViolationDetail{
				ViolationType: policy.CheckMissingLiveness,
				Severity:      sev(policy.CheckMissingLiveness),
				PodName:       podName,
				Namespace:     namespace,
				ContainerName: c.Name,
				Message:       fmt.Sprintf("container '%s' missing liveness probe", c.Name),
			})
		}
		if boolEnabled(spec.RequireReadinessProbe) && c.ReadinessProbe == nil {
			out = append(out, policy.ViolationDetail{
				ViolationType: policy.CheckMissingReadiness,
				Severity:      sev(policy.CheckMissingReadiness),
				PodName:       podName,
				Namespace:     namespace,
				ContainerName: c.Name,
				Message:       fmt.Sprintf("container '%s' missing readiness probe", c.Name),
			})
		}
		if spec.MaxRestartCount != nil {
			rc := restartCountOf(pod, c.Name)
			if rc > restartThreshold {
				out = append(out, policy.ViolationDetail{
					ViolationType: policy.CheckHighRestarts,
					Severity:      sev(policy.CheckHighRestarts),
					PodName:       podName,
					Namespace:     namespace,
					ContainerName: c.Name,
					Message:       fmt.Sprintf("container '%s' has %d restarts (threshold: %d)", c.Name, rc, restartThreshold),
				})
			}
		}
	}

	if spec.ForbidPendingDuration != nil && pod.Status.Phase == corev1.PodPending {
		out = append(out, policy.ViolationDetail{
			ViolationType: policy.CheckPending,
			Severity:      sev(policy.CheckPending),
			PodName:       podName,
			Namespace:     namespace,
			ContainerName: "",
			Message:       "pod is in Pending phase",
		})
	}

	return out
}

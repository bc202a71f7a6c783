// Package admission implements the validating admission webhook gate
// (spec §4.D): evaluating an incoming pod against a namespace's policy and
// severity threshold, and deriving the restricted policy variant used when
// the webhook itself evaluates admission-time checks.
package admission

import (
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// Verdict is the outcome of evaluating one pod against one policy.
type Verdict struct {
	Allowed    bool
	Violations []policy.ViolationDetail
	Message    string
}

// BuildAdmissionRestrictedPolicy returns a clone of spec with the two
// checks that cannot be evaluated at admission time disabled: restart
// counts and pending duration both require runtime pod status history the
// API server does not yet have at admission (§4.D invariant 5). Every
// other field, including severity overrides, is preserved unchanged.
func BuildAdmissionRestrictedPolicy(spec *policy.Spec) *policy.Spec {
	if spec == nil {
		return nil
	}
	restricted := spec.Clone()
	restricted.MaxRestartCount = nil
	restricted.ForbidPendingDuration = nil
	return restricted
}

// ValidatePodAdmission evaluates pod against spec with no severity
// filtering: any violation denies.
func ValidatePodAdmission(pod *corev1.Pod, spec *policy.Spec) Verdict {
	return ValidatePodAdmissionWithSeverity(pod, spec, "")
}

// ValidatePodAdmissionWithSeverity evaluates pod against the
// admission-restricted form of spec, denying only when a surviving
// violation's severity rank meets or exceeds minSeverity (§4.D / S3). An
// empty minSeverity denies on any violation. A nil spec or a pod in a
// system namespace always allows (fail-open, §4.D invariant: no policy
// found never blocks).
func ValidatePodAdmissionWithSeverity(pod *corev1.Pod, spec *policy.Spec, minSeverity policy.Severity) Verdict {
	if spec == nil {
		return Verdict{Allowed: true}
	}
	if governance.IsSystemNamespace(pod.Namespace) {
		return Verdict{Allowed: true}
	}

	restricted := BuildAdmissionRestrictedPolicy(spec)
	all := governance.DetectViolationsDetailed(pod, restricted)

	threshold := 0
	if minSeverity != "" {
		threshold = minSeverity.Rank()
	}

	var surviving []policy.ViolationDetail
	for _, v := range all {
		if v.Severity.Rank() >= threshold {
			surviving = append(surviving, v)
		}
	}

	if len(surviving) == 0 {
		return Verdict{Allowed: true, Violations: all}
	}
	return Verdict{
		Allowed:    false,
		Violations: surviving,
		Message:    FormatDenialMessage(surviving),
	}
}

// FormatDenialMessage renders the admission response's denial reason
// (§4.D): "Denied by DevOpsPolicy: <msg1>, <msg2>, ...".
func FormatDenialMessage(violations []policy.ViolationDetail) string {
	messages := make([]string, len(violations))
	for i, v := range violations {
		messages[i] = v.Message
	}
	return "Denied by DevOpsPolicy: " + strings.Join(messages, ", ")
}

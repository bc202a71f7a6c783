package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

func boolPtr(b bool) *bool    { return &b }
func int32Ptr(i int32) *int32 { return &i }

func podWithImage(ns, name, image string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: name, Image: image}},
		},
	}
}

// S2 — denial on a :latest tag, with the exact message format.
func TestS2_DeniedByLatestTag(t *testing.T) {
	pod := podWithImage("production", "nginx", "nginx:latest")
	spec := &policy.Spec{ForbidLatestTag: boolPtr(true)}

	verdict := ValidatePodAdmission(pod, spec)
	require.False(t, verdict.Allowed)
	assert.Equal(t, "Denied by DevOpsPolicy: container 'nginx' uses :latest tag", verdict.Message)
}

// S3 — a violation lowered to low severity by a severity override is
// allowed through when the gate's minimum severity threshold is high.
func TestS3_SeverityThresholdAllowsLowSeverityViolation(t *testing.T) {
	pod := podWithImage("production", "nginx", "nginx:1.25")
	pod.Spec.Containers[0].ReadinessProbe = nil

	low := policy.SeverityLow
	spec := &policy.Spec{
		RequireReadinessProbe: boolPtr(true),
		SeverityOverrides:     &policy.SeverityOverrides{MissingReadiness: &low},
	}

	verdict := ValidatePodAdmissionWithSeverity(pod, spec, policy.SeverityHigh)
	assert.True(t, verdict.Allowed)
}

func TestValidatePodAdmission_NilPolicyAllowsFailOpen(t *testing.T) {
	pod := podWithImage("production", "nginx", "nginx:latest")
	verdict := ValidatePodAdmission(pod, nil)
	assert.True(t, verdict.Allowed)
}

func TestValidatePodAdmission_SystemNamespaceBypassesEvenWithPolicy(t *testing.T) {
	pod := podWithImage("kube-system", "nginx", "nginx:latest")
	spec := &policy.Spec{ForbidLatestTag: boolPtr(true)}
	verdict := ValidatePodAdmission(pod, spec)
	assert.True(t, verdict.Allowed)
}

func TestBuildAdmissionRestrictedPolicy_ClearsRuntimeOnlyChecks(t *testing.T) {
	low := policy.SeverityLow
	spec := &policy.Spec{
		ForbidLatestTag:       boolPtr(true),
		MaxRestartCount:       int32Ptr(3),
		ForbidPendingDuration: func() *uint64 { u := uint64(300); return &u }(),
		SeverityOverrides:     &policy.SeverityOverrides{LatestTag: &low},
	}

	restricted := BuildAdmissionRestrictedPolicy(spec)
	assert.Nil(t, restricted.MaxRestartCount)
	assert.Nil(t, restricted.ForbidPendingDuration)
	assert.NotNil(t, restricted.ForbidLatestTag)
	require.NotNil(t, restricted.SeverityOverrides)
	assert.Equal(t, policy.SeverityLow, *restricted.SeverityOverrides.LatestTag)

	// original spec must be untouched
	assert.NotNil(t, spec.MaxRestartCount)
	assert.NotNil(t, spec.ForbidPendingDuration)
}

func TestFormatDenialMessage_JoinsMultipleViolations(t *testing.T) {
	msg := FormatDenialMessage([]policy.ViolationDetail{
		{Message: "a"},
		{Message: "b"},
	})
	assert.Equal(t, "Denied by DevOpsPolicy: a, b", msg)
}

package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

func makeTestPod(name, namespace, image string, hasLiveness, hasReadiness bool, restartCount int32, phase corev1.PodPhase) *corev1.Pod {
	var liveness, readiness *corev1.Probe
	if hasLiveness {
		liveness = &corev1.Probe{}
	}
	if hasReadiness {
		readiness = &corev1.Probe{}
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:           "main",
				Image:          image,
				LivenessProbe:  liveness,
				ReadinessProbe: readiness,
			}},
		},
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:         "main",
				RestartCount: restartCount,
			}},
		},
	}
}

func allEnabledPolicy() *policy.Spec {
	return &policy.Spec{
		ForbidLatestTag:       boolPtr(true),
		RequireLivenessProbe:  boolPtr(true),
		RequireReadinessProbe: boolPtr(true),
		MaxRestartCount:       int32Ptr(3),
		ForbidPendingDuration: uint64Ptr(300),
	}
}

func boolPtr(b bool) *bool       { return &b }
func int32Ptr(i int32) *int32    { return &i }
func uint64Ptr(u uint64) *uint64 { return &u }

// S1 — Compliant pod, all checks on.
func TestS1_CompliantPod(t *testing.T) {
	pod := makeTestPod("web", "prod", "nginx:1.25", true, true, 0, corev1.PodRunning)
	spec := allEnabledPolicy()

	m := EvaluateMetrics(pod, spec)
	violations := DetectViolationsDetailed(pod, spec)

	assert.Empty(t, violations)
	assert.EqualValues(t, 1, m.TotalPods)
	score := CalculateHealthScore(m)
	assert.EqualValues(t, 100, score)
	assert.Equal(t, "Healthy", Classify(score))
}

// S2 — Denial-grade violation by :latest (message format verified here;
// the admission-gate-level denial wiring is covered in the admission package).
func TestS2_LatestTagViolationMessage(t *testing.T) {
	pod := makeTestPod("nginx", "prod", "nginx:latest", true, true, 0, corev1.PodRunning)
	pod.Spec.Containers[0].Name = "nginx"
	spec := &policy.Spec{ForbidLatestTag: boolPtr(true)}

	violations := DetectViolationsDetailed(pod, spec)
	require.Len(t, violations, 1)
	assert.Equal(t, "container 'nginx' uses :latest tag", violations[0].Message)
	assert.Equal(t, policy.SeverityHigh, violations[0].Severity)
}

func TestRestartCount_StrictlyGreaterThan(t *testing.T) {
	pod := makeTestPod("a", "prod", "nginx:1.25", true, true, 3, corev1.PodRunning)
	spec := &policy.Spec{MaxRestartCount: int32Ptr(3)}

	m := EvaluateMetrics(pod, spec)
	assert.EqualValues(t, 0, m.HighRestarts, "restartCount == threshold must not trigger")

	pod4 := makeTestPod("b", "prod", "nginx:1.25", true, true, 4, corev1.PodRunning)
	m4 := EvaluateMetrics(pod4, spec)
	assert.EqualValues(t, 4, m4.HighRestarts)
}

func TestRestartCount_CappedAtFive(t *testing.T) {
	pod := makeTestPod("a", "prod", "nginx:1.25", true, true, 50, corev1.PodRunning)
	spec := &policy.Spec{MaxRestartCount: int32Ptr(3)}

	m := EvaluateMetrics(pod, spec)
	assert.EqualValues(t, 5, m.HighRestarts)
}

func TestPendingCheck_GatedByPresenceNotValue(t *testing.T) {
	pod := makeTestPod("a", "prod", "nginx:1.25", true, true, 0, corev1.PodPending)
	spec := &policy.Spec{ForbidPendingDuration: uint64Ptr(1)}

	m := EvaluateMetrics(pod, spec)
	assert.EqualValues(t, 1, m.Pending)
}

func TestEmptyPolicyIsNoOp(t *testing.T) {
	pod := makeTestPod("a", "prod", "nginx:latest", false, false, 100, corev1.PodPending)
	m := EvaluateMetrics(pod, &policy.Spec{})
	violations := DetectViolationsDetailed(pod, &policy.Spec{})

	assert.Empty(t, violations)
	assert.EqualValues(t, 0, m.LatestTag+m.MissingLiveness+m.MissingReadiness+m.HighRestarts+m.Pending)
	assert.EqualValues(t, 100, CalculateHealthScore(m))
}

func TestSystemNamespacePredicate(t *testing.T) {
	cases := map[string]bool{
		"kube-system":   true,
		"kube-public":   true,
		"my-system":     true,
		"cert-manager":  true,
		"istio-system":  true,
		"monitoring":    true,
		"observability": true,
		"argocd":        true,
		"default":       false,
		"production":    false,
	}
	for ns, want := range cases {
		assert.Equal(t, want, IsSystemNamespace(ns), ns)
	}
}

func TestMultiContainerViolationCount(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "multi", Namespace: "prod"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{Name: "bad", Image: "x:latest"},
				{Name: "worse", Image: "y:latest"},
			},
		},
	}
	spec := &policy.Spec{
		ForbidLatestTag:       boolPtr(true),
		RequireLivenessProbe:  boolPtr(true),
		RequireReadinessProbe: boolPtr(true),
	}
	violations := DetectViolationsDetailed(pod, spec)
	assert.Len(t, violations, 6) // 3 checks x 2 containers
}

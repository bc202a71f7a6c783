package enforcement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

func boolPtr(b bool) *bool { return &b }

func TestStripReplicaSetHash(t *testing.T) {
	assert.Equal(t, "web-app", stripReplicaSetHash("web-app-5d4f8b9c7f"))
	assert.Equal(t, "webapp", stripReplicaSetHash("webapp"))
	assert.Equal(t, "app", stripReplicaSetHash("app-hash"))
}

func TestResolveOwner_DeploymentDirect(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: "p", Namespace: "production",
			OwnerReferences: []metav1.OwnerReference{{Kind: "Deployment", Name: "web-app"}},
		},
	}
	ref, ok := ResolveOwner(context.Background(), nil, pod)
	require.True(t, ok)
	assert.Equal(t, policy.WorkloadRef{Kind: "Deployment", Name: "web-app", Namespace: "production"}, *ref)
}

func TestResolveOwner_ReplicaSetFallbackHeuristic(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: "p", Namespace: "production",
			OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "web-app-5d4f8b9c7f"}},
		},
	}
	ref, ok := ResolveOwner(context.Background(), nil, pod)
	require.True(t, ok)
	assert.Equal(t, "web-app", ref.Name)
	assert.Equal(t, "Deployment", ref.Kind)
}

func TestResolveOwner_NoRecognizedOwner(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			OwnerReferences: []metav1.OwnerReference{{Kind: "Job", Name: "x"}},
		},
	}
	_, ok := ResolveOwner(context.Background(), nil, pod)
	assert.False(t, ok)
}

func TestIsProtectedNamespace(t *testing.T) {
	for ns, want := range map[string]bool{
		"kube-system":     true,
		"kube-public":     true,
		"kube-node-lease": true,
		"kube-flannel":    true,
		"argocd":          true,
		"production":      false,
	} {
		assert.Equal(t, want, IsProtectedNamespace(ns), ns)
	}
}

func podWithOwner(ns, name string, liveness, readiness bool, resources corev1.ResourceRequirements) *corev1.Pod {
	var lp, rp *corev1.Probe
	if liveness {
		lp = &corev1.Probe{}
	}
	if readiness {
		rp = &corev1.Probe{}
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name, Namespace: ns,
			OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "web-app-5d4f8b9c7f"}},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:           "main",
				LivenessProbe:  lp,
				ReadinessProbe: rp,
				Resources:      resources,
			}},
		},
	}
}

func enforcePolicy() *policy.Spec {
	mode := policy.EnforcementEnforce
	return &policy.Spec{
		RequireLivenessProbe:  boolPtr(true),
		RequireReadinessProbe: boolPtr(true),
		EnforcementMode:       &mode,
		DefaultResources:      &policy.DefaultResourceConfig{},
	}
}

// S4 — Enforce plan for missing probes.
func TestS4_PlanWithThreeActions(t *testing.T) {
	pod := podWithOwner("production", "web-pod", false, false, corev1.ResourceRequirements{})
	plan, ok := PlanRemediation(context.Background(), fake.NewSimpleClientset(), pod, enforcePolicy())
	require.True(t, ok)
	assert.Equal(t, "web-app", plan.Workload.Name)
	assert.Len(t, plan.Actions, 3)

	patchBytes, err := BuildPatch(plan, pod.Spec.Containers, nil, enforcePolicy().DefaultResources)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(patchBytes, &decoded))
	annotations := decoded["spec"].(map[string]any)["template"].(map[string]any)["metadata"].(map[string]any)["annotations"].(map[string]any)
	assert.Equal(t, FieldManager, annotations[PatchedByAnnotation])
}

// S5 — Enforcement dedup: two pods owned by the same ReplicaSet produce
// plans with identical WorkloadRef keys.
func TestS5_DedupKeyMatches(t *testing.T) {
	podA := podWithOwner("production", "web-pod-a", false, false, corev1.ResourceRequirements{})
	podA.OwnerReferences[0].Name = "web-app-abc123"
	podB := podWithOwner("production", "web-pod-b", false, false, corev1.ResourceRequirements{})
	podB.OwnerReferences[0].Name = "web-app-abc123"

	planA, okA := PlanRemediation(context.Background(), fake.NewSimpleClientset(), podA, enforcePolicy())
	planB, okB := PlanRemediation(context.Background(), fake.NewSimpleClientset(), podB, enforcePolicy())
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, planA.Workload.Key(), planB.Workload.Key())
}

func TestPlanRemediation_ProtectedNamespaceReturnsNone(t *testing.T) {
	pod := podWithOwner("kube-system", "p", false, false, corev1.ResourceRequirements{})
	_, ok := PlanRemediation(context.Background(), fake.NewSimpleClientset(), pod, enforcePolicy())
	assert.False(t, ok)
}

func TestPlanRemediation_AuditModeReturnsNone(t *testing.T) {
	pod := podWithOwner("production", "p", false, false, corev1.ResourceRequirements{})
	audit := policy.EnforcementAudit
	spec := enforcePolicy()
	spec.EnforcementMode = &audit
	_, ok := PlanRemediation(context.Background(), fake.NewSimpleClientset(), pod, spec)
	assert.False(t, ok)
}

func TestPlanRemediation_CompliantPodReturnsNone(t *testing.T) {
	pod := podWithOwner("production", "p", true, true, corev1.ResourceRequirements{
		Requests: corev1.ResourceList{corev1.ResourceCPU: mustQuantity("100m")},
	})
	_, ok := PlanRemediation(context.Background(), fake.NewSimpleClientset(), pod, enforcePolicy())
	assert.False(t, ok)
}

func TestPlanRemediation_LatestTagNeverPatchable(t *testing.T) {
	pod := podWithOwner("production", "p", true, true, corev1.ResourceRequirements{
		Requests: corev1.ResourceList{corev1.ResourceCPU: mustQuantity("100m")},
	})
	pod.Spec.Containers[0].Image = "nginx:latest"
	spec := enforcePolicy()
	spec.ForbidLatestTag = boolPtr(true)
	_, ok := PlanRemediation(context.Background(), fake.NewSimpleClientset(), pod, spec)
	assert.False(t, ok, ":latest is never patchable, even when forbidden")
}

func TestBuildDefaultProbe_PortResolutionPrecedence(t *testing.T) {
	c := corev1.Container{Ports: []corev1.ContainerPort{{ContainerPort: 9090}}}
	probe := BuildDefaultProbe(c, nil)
	assert.Equal(t, int32(9090), probe.TCPSocket.Port.IntVal)

	explicit := int32(7000)
	probeExplicit := BuildDefaultProbe(c, &policy.DefaultProbeConfig{TCPPort: &explicit})
	assert.Equal(t, int32(7000), probeExplicit.TCPSocket.Port.IntVal)

	probeFallback := BuildDefaultProbe(corev1.Container{}, nil)
	assert.Equal(t, int32(8080), probeFallback.TCPSocket.Port.IntVal)
}

func TestBuildDefaultResources_Fallbacks(t *testing.T) {
	r := BuildDefaultResources(nil)
	assert.Equal(t, "100m", r.Requests.Cpu().String())
	assert.Equal(t, "500m", r.Limits.Cpu().String())
	assert.Equal(t, "128Mi", r.Requests.Memory().String())
	assert.Equal(t, "256Mi", r.Limits.Memory().String())
}

package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
)

func devopsPolicy(name, namespace string, generation int64, specFields map[string]any) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "devops.stochastic.io/v1",
		"kind":       "DevOpsPolicy",
		"metadata": map[string]any{
			"name":       name,
			"namespace":  namespace,
			"generation": generation,
		},
		"spec": specFields,
	}}
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestReconcile_CompliantPodYieldsHealthyStatus(t *testing.T) {
	gvrToListKind := map[schema.GroupVersionResource]string{
		k8sclient.DevOpsPolicyGVR:      "DevOpsPolicyList",
		k8sclient.PolicyAuditResultGVR: "PolicyAuditResultList",
	}
	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)

	typed := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "production"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:           "main",
				Image:          "nginx:1.25",
				LivenessProbe:  &corev1.Probe{},
				ReadinessProbe: &corev1.Probe{},
			}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	})

	obj := devopsPolicy("baseline", "production", 1, map[string]any{
		"forbidLatestTag":       true,
		"requireLivenessProbe":  true,
		"requireReadinessProbe": true,
	})
	_, err := dyn.Resource(k8sclient.DevOpsPolicyGVR).Namespace("production").Create(context.Background(), obj, metav1.CreateOptions{})
	require.NoError(t, err)

	r := &Reconciler{Typed: typed, Dynamic: dyn, Clock: fixedClock(time.Unix(1700000000, 0))}
	result, err := r.Reconcile(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, result.RequeueAfter)

	updated, err := dyn.Resource(k8sclient.DevOpsPolicyGVR).Namespace("production").Get(context.Background(), "baseline", metav1.GetOptions{})
	require.NoError(t, err)
	healthy, found, err := unstructured.NestedBool(updated.Object, "status", "healthy")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, healthy)

	audits, err := dyn.Resource(k8sclient.PolicyAuditResultGVR).Namespace("production").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, audits.Items, 1)
}

func TestReconcile_ObservedGenerationShortCircuits(t *testing.T) {
	gvrToListKind := map[schema.GroupVersionResource]string{
		k8sclient.DevOpsPolicyGVR:      "DevOpsPolicyList",
		k8sclient.PolicyAuditResultGVR: "PolicyAuditResultList",
	}
	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)
	typed := fake.NewSimpleClientset()

	obj := devopsPolicy("baseline", "production", 3, map[string]any{})
	obj.Object["status"] = map[string]any{"observedGeneration": int64(3)}
	_, err := dyn.Resource(k8sclient.DevOpsPolicyGVR).Namespace("production").Create(context.Background(), obj, metav1.CreateOptions{})
	require.NoError(t, err)

	r := &Reconciler{Typed: typed, Dynamic: dyn}
	result, err := r.Reconcile(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, result.RequeueAfter)

	audits, err := dyn.Resource(k8sclient.PolicyAuditResultGVR).Namespace("production").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, audits.Items, "short-circuited reconcile must not emit an audit result")
}

// S8 — finalizer lifecycle: deletion with the finalizer present clears it
// and the namespace gauges, without touching pods or status.
func TestReconcile_DeletionRemovesFinalizer(t *testing.T) {
	gvrToListKind := map[schema.GroupVersionResource]string{
		k8sclient.DevOpsPolicyGVR: "DevOpsPolicyList",
	}
	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)

	obj := devopsPolicy("baseline", "production", 1, map[string]any{})
	now := metav1.Now()
	obj.SetDeletionTimestamp(&now)
	obj.SetFinalizers([]string{Finalizer})
	_, err := dyn.Resource(k8sclient.DevOpsPolicyGVR).Namespace("production").Create(context.Background(), obj, metav1.CreateOptions{})
	require.NoError(t, err)

	r := &Reconciler{Typed: fake.NewSimpleClientset(), Dynamic: dyn}
	_, err = r.Reconcile(context.Background(), obj)
	require.NoError(t, err)

	updated, err := dyn.Resource(k8sclient.DevOpsPolicyGVR).Namespace("production").Get(context.Background(), "baseline", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, updated.GetFinalizers())
}

func TestAuditResultName_IsDeterministicPerMillisecond(t *testing.T) {
	assert.Equal(t, "baseline-1700000000000", AuditResultName("baseline", 1700000000000))
}

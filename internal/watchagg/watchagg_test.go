package watchagg

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestHolderIdentity_IncludesHostnameAndIsUnique(t *testing.T) {
	a := HolderIdentity()
	b := HolderIdentity()
	assert.NotEqual(t, a, b)

	host, err := os.Hostname()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, host+"-"), a)
}

func TestAcquireLease_CreatesWhenAbsent(t *testing.T) {
	client := fake.NewSimpleClientset()
	acquired, err := AcquireLease(context.Background(), client, "replica-a", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestAcquireLease_RenewsOwnHolder(t *testing.T) {
	client := fake.NewSimpleClientset()
	_, err := AcquireLease(context.Background(), client, "replica-a", 15*time.Second)
	require.NoError(t, err)

	acquired, err := AcquireLease(context.Background(), client, "replica-a", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestAcquireLease_DeniesFreshOtherHolder(t *testing.T) {
	client := fake.NewSimpleClientset()
	_, err := AcquireLease(context.Background(), client, "replica-a", 15*time.Second)
	require.NoError(t, err)

	acquired, err := AcquireLease(context.Background(), client, "replica-b", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestAcquireLease_TakesOverExpiredHolder(t *testing.T) {
	client := fake.NewSimpleClientset()
	staleIdentity := "replica-a"
	staleTime := metav1.NewMicroTime(time.Now().Add(-1 * time.Hour))
	duration := int32(15)
	_, err := client.CoordinationV1().Leases(LeaseNamespace).Create(context.Background(), &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: LeaseName, Namespace: LeaseNamespace},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &staleIdentity,
			RenewTime:            &staleTime,
			LeaseDurationSeconds: &duration,
		},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	acquired, err := AcquireLease(context.Background(), client, "replica-b", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func testPod(ns, name, image string, liveness bool) *corev1.Pod {
	var probe *corev1.Probe
	if liveness {
		probe = &corev1.Probe{}
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "main", Image: image, LivenessProbe: probe, ReadinessProbe: probe}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestAggregator_AppliedThenDeletedNetsToZero(t *testing.T) {
	agg := NewAggregator()
	pod := testPod("production", "web", "nginx:latest", false)

	agg.HandleEvent(EventApplied, pod)
	assert.Less(t, agg.NamespaceScore("production"), uint32(100))

	agg.HandleEvent(EventDeleted, pod)
	assert.EqualValues(t, 100, agg.NamespaceScore("production"))
}

func TestAggregator_ReapplyReplacesPreviousContribution(t *testing.T) {
	agg := NewAggregator()
	bad := testPod("production", "web", "nginx:latest", false)
	good := testPod("production", "web", "nginx:1.25", true)

	agg.HandleEvent(EventApplied, bad)
	scoreAfterBad := agg.NamespaceScore("production")

	agg.HandleEvent(EventApplied, good)
	scoreAfterGood := agg.NamespaceScore("production")

	assert.Greater(t, scoreAfterGood, scoreAfterBad)
	assert.EqualValues(t, 100, scoreAfterGood)
}

func TestAggregator_ClusterScoreIsUnweightedMeanAcrossNamespaces(t *testing.T) {
	agg := NewAggregator()
	agg.HandleEvent(EventApplied, testPod("a", "p1", "nginx:1.25", true))
	agg.HandleEvent(EventApplied, testPod("b", "p2", "nginx:latest", false))

	// namespace a: healthy (100), namespace b: degraded by :latest+missing probes.
	scoreA := agg.NamespaceScore("a")
	scoreB := agg.NamespaceScore("b")
	expected := uint32((uint64(scoreA) + uint64(scoreB)) / 2)
	assert.Equal(t, expected, agg.ClusterScore())
}

func TestAggregator_NoPodsIsHealthy(t *testing.T) {
	agg := NewAggregator()
	assert.EqualValues(t, 100, agg.ClusterScore())
}

func TestAggregator_PodsTrackedCount(t *testing.T) {
	agg := NewAggregator()
	agg.HandleEvent(EventApplied, testPod("a", "p1", "nginx:1.25", true))
	agg.HandleEvent(EventApplied, testPod("a", "p2", "nginx:1.25", true))
	assert.EqualValues(t, 2, agg.PodsTracked())

	agg.HandleEvent(EventDeleted, testPod("a", "p1", "nginx:1.25", true))
	assert.EqualValues(t, 1, agg.PodsTracked())
}

package reconciler

import (
	"context"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"

	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// AuditResultName derives the PolicyAuditResult object name from the
// policy name and the cycle's timestamp (unix milliseconds), so successive
// cycles never collide (§4.E, §9).
func AuditResultName(policyName string, unixMillis int64) string {
	return fmt.Sprintf("%s-%d", policyName, unixMillis)
}

// WriteAuditResult creates a new PolicyAuditResult and evicts the oldest
// surplus results for the same policy beyond retention (§3, §9 open
// question 3). Eviction is oldest-first by creation timestamp.
func WriteAuditResult(ctx context.Context, client dynamic.Interface, namespace string, result policy.AuditResult, unixMillis int64, retention int) error {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "devops.stochastic.io/v1",
		"kind":       "PolicyAuditResult",
		"metadata": map[string]any{
			"name":      AuditResultName(result.PolicyName, unixMillis),
			"namespace": namespace,
			"labels":    map[string]any{"devops.stochastic.io/policy": result.PolicyName},
		},
		"spec": auditResultToMap(result),
	}}

	if _, err := client.Resource(k8sclient.PolicyAuditResultGVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create PolicyAuditResult for policy %s: %w", result.PolicyName, err)
	}
	AuditResultsTotal.Inc()

	return enforceRetention(ctx, client, namespace, result.PolicyName, retention)
}

func auditResultToMap(r policy.AuditResult) map[string]any {
	violations := make([]any, len(r.Violations))
	for i, v := range r.Violations {
		violations[i] = map[string]any{
			"violationType": string(v.ViolationType),
			"severity":      string(v.Severity),
			"podName":       v.PodName,
			"namespace":     v.Namespace,
			"containerName": v.ContainerName,
			"message":       v.Message,
		}
	}
	return map[string]any{
		"policyName":      r.PolicyName,
		"clusterName":     r.ClusterName,
		"timestamp":       r.Timestamp,
		"healthScore":     int64(r.HealthScore),
		"totalViolations": int64(r.TotalViolations),
		"totalPods":       int64(r.TotalPods),
		"classification":  r.Classification,
		"violations":      violations,
	}
}

func enforceRetention(ctx context.Context, client dynamic.Interface, namespace, policyName string, retention int) error {
	if retention <= 0 {
		retention = policy.AuditRetention
	}

	list, err := client.Resource(k8sclient.PolicyAuditResultGVR).Namespace(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "devops.stochastic.io/policy=" + policyName,
	})
	if err != nil {
		return fmt.Errorf("failed to list PolicyAuditResults for policy %s: %w", policyName, err)
	}

	items := list.Items
	if len(items) <= retention {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].GetCreationTimestamp().Time.Before(items[j].GetCreationTimestamp().Time)
	})

	surplus := len(items) - retention
	for i := 0; i < surplus; i++ {
		name := items[i].GetName()
		if err := client.Resource(k8sclient.PolicyAuditResultGVR).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("failed to evict stale PolicyAuditResult %s: %w", name, err)
		}
	}
	return nil
}

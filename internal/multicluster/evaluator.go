package multicluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// ClusterEvaluation is one kubeconfig context's evaluation result.
type ClusterEvaluation struct {
	ContextName     string
	HealthScore     uint32
	Classification  string
	TotalPods       uint32
	TotalViolations uint32
	Violations      []policy.ViolationDetail
	Error           string
}

// Report is the aggregate multi-cluster analysis result (§4.G, §6).
type Report struct {
	Clusters                []ClusterEvaluation
	AggregateScore          uint32
	AggregateClassification string
}

// EvaluateCluster lists every pod across the context's non-system
// namespaces and evaluates each against the DevOpsPolicy governing its
// own namespace in that same cluster, resolved via the context's own
// dynamic client (every cluster carries its own DevOpsPolicy objects).
func EvaluateCluster(ctx context.Context, kubeconfigPath, contextName string) ClusterEvaluation {
	typedClient, err := ClientForContext(kubeconfigPath, contextName)
	if err != nil {
		return ClusterEvaluation{ContextName: contextName, Error: err.Error()}
	}
	dynClient, err := DynamicClientForContext(kubeconfigPath, contextName)
	if err != nil {
		return ClusterEvaluation{ContextName: contextName, Error: err.Error()}
	}

	pods, err := typedClient.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return ClusterEvaluation{ContextName: contextName, Error: fmt.Sprintf("failed to list pods: %v", err)}
	}

	specCache := map[string]*policy.Spec{}
	var metrics policy.Metrics
	var violations []policy.ViolationDetail
	for i := range pods.Items {
		pod := &pods.Items[i]
		if governance.IsSystemNamespace(pod.Namespace) {
			continue
		}
		spec, cached := specCache[pod.Namespace]
		if !cached {
			spec, _, err = k8sclient.LookupNamespacePolicy(ctx, dynClient, pod.Namespace)
			if err != nil {
				slog.Warn("multi-cluster: policy lookup failed, evaluating against defaults", "context", contextName, "namespace", pod.Namespace, "error", err)
				spec = nil
			}
			specCache[pod.Namespace] = spec
		}
		metrics.Add(governance.EvaluateMetrics(pod, spec))
		violations = append(violations, governance.DetectViolationsDetailed(pod, spec)...)
	}

	score := governance.CalculateHealthScore(metrics)
	return ClusterEvaluation{
		ContextName:     contextName,
		HealthScore:     score,
		Classification:  governance.Classify(score),
		TotalPods:       metrics.TotalPods,
		TotalViolations: uint32(len(violations)),
		Violations:      violations,
	}
}

// EvaluateAll evaluates every given context concurrently (bounded by
// concurrency) and aggregates the results. A context that fails to
// evaluate is reported but excluded from the weighted aggregate rather
// than failing the whole report.
func EvaluateAll(ctx context.Context, kubeconfigPath string, contexts []string, concurrency int) *Report {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]ClusterEvaluation, len(contexts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, name := range contexts {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = EvaluateCluster(ctx, kubeconfigPath, name)
		}(i, name)
	}
	wg.Wait()

	return AggregateReport(results)
}

// AggregateReport computes the pod-count-weighted aggregate score over the
// successful cluster evaluations (§4.G, S6): floor(Σscore_i*pods_i /
// Σpods_i), or 100/Healthy if there are zero total pods across all
// successful clusters.
func AggregateReport(evaluations []ClusterEvaluation) *Report {
	var weightedSum, totalPods uint64
	for _, e := range evaluations {
		if e.Error != "" {
			continue
		}
		weightedSum += uint64(e.HealthScore) * uint64(e.TotalPods)
		totalPods += uint64(e.TotalPods)
	}

	aggregate := uint32(100)
	if totalPods > 0 {
		aggregate = uint32(weightedSum / totalPods)
	}

	return &Report{
		Clusters:                evaluations,
		AggregateScore:          aggregate,
		AggregateClassification: governance.Classify(aggregate),
	}
}

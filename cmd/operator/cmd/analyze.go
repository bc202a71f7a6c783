package cmd

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

var analyzeNamespace string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "One-shot policy evaluation of the current cluster (read-only)",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeNamespace, "namespace", "", "restrict analysis to a single namespace (default: all)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clients, err := k8sclient.New()
	if err != nil {
		return fmt.Errorf("failed to build kubernetes client: %w", err)
	}

	pods, err := clients.Typed.CoreV1().Pods(analyzeNamespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list pods: %w", err)
	}

	specCache := map[string]*policy.Spec{}
	lookup := func(namespace string) *policy.Spec {
		if spec, ok := specCache[namespace]; ok {
			return spec
		}
		spec, _, err := k8sclient.LookupNamespacePolicy(ctx, clients.Dynamic, namespace)
		if err != nil {
			spec = nil
		}
		specCache[namespace] = spec
		return spec
	}

	var metrics policy.Metrics
	var violations []policy.ViolationDetail
	for i := range pods.Items {
		pod := &pods.Items[i]
		if governance.IsSystemNamespace(pod.Namespace) {
			continue
		}
		spec := lookup(pod.Namespace)
		metrics.Add(governance.EvaluateMetrics(pod, spec))
		violations = append(violations, governance.DetectViolationsDetailed(pod, spec)...)
	}

	score := governance.CalculateHealthScore(metrics)
	classification := governance.Classify(score)

	fmt.Printf("pods analyzed: %d\nhealthScore: %d\nclassification: %s\ntotalViolations: %d\n",
		metrics.TotalPods, score, classification, len(violations))
	for _, v := range violations {
		fmt.Printf("  - %s/%s[%s]: %s (%s)\n", v.Namespace, v.PodName, v.ContainerName, v.Message, v.Severity)
	}
	return nil
}

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

var listNamespace string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cluster resources the operator governs",
}

var listPodsCmd = &cobra.Command{
	Use:   "pods",
	Short: "List non-system-namespace pods with their violation counts",
	RunE:  runListPods,
}

func init() {
	listPodsCmd.Flags().StringVar(&listNamespace, "namespace", "", "restrict to a single namespace (default: all)")
	listCmd.AddCommand(listPodsCmd)
	rootCmd.AddCommand(listCmd)
}

func runListPods(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clients, err := k8sclient.New()
	if err != nil {
		return fmt.Errorf("failed to build kubernetes client: %w", err)
	}

	pods, err := clients.Typed.CoreV1().Pods(listNamespace).List(ctx, metav1.ListOptions{})
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

	for i := range pods.Items {
		pod := &pods.Items[i]
		if governance.IsSystemNamespace(pod.Namespace) {
			continue
		}
		spec := lookup(pod.Namespace)
		violations := governance.DetectViolationsDetailed(pod, spec)
		fmt.Printf("%s/%s\tviolations=%d\n", pod.Namespace, pod.Name, len(violations))
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

var checkBundleName string

var checkCmd = &cobra.Command{
	Use:   "check <pod-manifest.yaml>",
	Short: "Evaluate a single pod manifest against a policy bundle, offline",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkBundleName, "bundle", "baseline",
		"built-in policy bundle to check against (baseline|restricted|permissive)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	bundle, ok := policy.GetBundle(checkBundleName)
	if !ok {
		return fmt.Errorf("unknown policy bundle %q", checkBundleName)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", args[0], err)
	}

	var pod corev1.Pod
	if err := k8syaml.Unmarshal(data, &pod); err != nil {
		return fmt.Errorf("failed to parse pod manifest: %w", err)
	}

	violations := governance.DetectViolationsDetailed(&pod, &bundle.Spec)
	metrics := governance.EvaluateMetrics(&pod, &bundle.Spec)
	score := governance.CalculateHealthScoreWithSeverity(metrics, bundle.Spec.SeverityOverrides)
	classification := governance.Classify(score)

	fmt.Printf("bundle: %s\nhealthScore: %d\nclassification: %s\nviolations: %d\n", bundle.Name, score, classification, len(violations))
	for _, v := range violations {
		fmt.Printf("  - [%s] %s: %s\n", v.Severity, v.ViolationType, v.Message)
	}

	if len(violations) > 0 {
		return fmt.Errorf("%d violation(s) found", len(violations))
	}
	return nil
}

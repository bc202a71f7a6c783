package cmd

import (
	"context"
	"fmt"
	"os"
	"reflect"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

var (
	policyApplyNamespace string
	policyApplyName      string
	policyExportOut      string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and manage built-in policy bundles and DevOpsPolicy objects",
}

var policyBundleListCmd = &cobra.Command{
	Use:   "bundle-list",
	Short: "List the built-in policy bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, b := range policy.AllBundles() {
			fmt.Printf("%-12s %s\n", b.Name, b.Description)
		}
		return nil
	},
}

var policyBundleShowCmd = &cobra.Command{
	Use:   "bundle-show <name>",
	Short: "Print a built-in bundle's spec as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, ok := policy.GetBundle(args[0])
		if !ok {
			return fmt.Errorf("unknown policy bundle %q", args[0])
		}
		out, err := yaml.Marshal(bundle.Spec)
		if err != nil {
			return fmt.Errorf("failed to marshal bundle: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	},
}

var policyBundleApplyCmd = &cobra.Command{
	Use:   "bundle-apply <name>",
	Short: "Create or update a DevOpsPolicy from a built-in bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyBundleApply,
}

var policyExportCmd = &cobra.Command{
	Use:   "export <policy-name>",
	Short: "Export a cluster DevOpsPolicy's spec as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyExport,
}

var policyImportCmd = &cobra.Command{
	Use:   "import <spec.yaml>",
	Short: "Create or update a DevOpsPolicy from an exported spec file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyImport,
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <a.yaml> <b.yaml>",
	Short: "Show a field-by-field diff between two DevOpsPolicySpec values",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyDiff,
}

func init() {
	policyBundleApplyCmd.Flags().StringVar(&policyApplyNamespace, "namespace", "default", "namespace to create/update the policy in")
	policyBundleApplyCmd.Flags().StringVar(&policyApplyName, "name", "", "policy object name (default: the bundle name)")
	policyExportCmd.Flags().StringVar(&policyApplyNamespace, "namespace", "default", "namespace the policy lives in")
	policyExportCmd.Flags().StringVar(&policyExportOut, "out", "", "write to this file instead of stdout")
	policyImportCmd.Flags().StringVar(&policyApplyNamespace, "namespace", "default", "namespace to create/update the policy in")
	policyImportCmd.Flags().StringVar(&policyApplyName, "name", "", "policy object name (required)")

	policyCmd.AddCommand(policyBundleListCmd, policyBundleShowCmd, policyBundleApplyCmd, policyExportCmd, policyImportCmd, policyDiffCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyBundleApply(cmd *cobra.Command, args []string) error {
	bundle, ok := policy.GetBundle(args[0])
	if !ok {
		return fmt.Errorf("unknown policy bundle %q", args[0])
	}
	name := policyApplyName
	if name == "" {
		name = bundle.Name
	}
	return upsertDevOpsPolicy(policyApplyNamespace, name, &bundle.Spec)
}

func runPolicyImport(cmd *cobra.Command, args []string) error {
	if policyApplyName == "" {
		return fmt.Errorf("--name is required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var spec policy.Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("failed to parse spec: %w", err)
	}
	return upsertDevOpsPolicy(policyApplyNamespace, policyApplyName, &spec)
}

func upsertDevOpsPolicy(namespace, name string, spec *policy.Spec) error {
	ctx := context.Background()
	if IsDryRun() {
		out, _ := yaml.Marshal(spec)
		fmt.Printf("dry-run: would apply DevOpsPolicy %s/%s:\n%s", namespace, name, out)
		return nil
	}

	clients, err := k8sclient.New()
	if err != nil {
		return err
	}

	specMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(spec)
	if err != nil {
		return fmt.Errorf("failed to convert spec: %w", err)
	}

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "devops.stochastic.io/v1",
		"kind":       "DevOpsPolicy",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": specMap,
	}}

	resource := clients.Dynamic.Resource(k8sclient.DevOpsPolicyGVR).Namespace(namespace)
	existing, err := resource.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		_, err = resource.Create(ctx, obj, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("failed to create DevOpsPolicy %s/%s: %w", namespace, name, err)
		}
		fmt.Printf("created DevOpsPolicy %s/%s\n", namespace, name)
		return nil
	}

	existing.Object["spec"] = specMap
	_, err = resource.Update(ctx, existing, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to update DevOpsPolicy %s/%s: %w", namespace, name, err)
	}
	fmt.Printf("updated DevOpsPolicy %s/%s\n", namespace, name)
	return nil
}

func runPolicyExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clients, err := k8sclient.New()
	if err != nil {
		return err
	}

	obj, err := clients.Dynamic.Resource(k8sclient.DevOpsPolicyGVR).Namespace(policyApplyNamespace).Get(ctx, args[0], metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get DevOpsPolicy %s/%s: %w", policyApplyNamespace, args[0], err)
	}
	spec, err := k8sclient.DecodeSpec(obj)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}

	if policyExportOut == "" {
		os.Stdout.Write(out)
		return nil
	}
	return os.WriteFile(policyExportOut, out, 0644)
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	specA, err := loadSpecFile(args[0])
	if err != nil {
		return err
	}
	specB, err := loadSpecFile(args[1])
	if err != nil {
		return err
	}

	diffs := diffSpecFields(specA, specB)
	if len(diffs) == 0 {
		fmt.Println("no differences")
		return nil
	}
	for _, d := range diffs {
		fmt.Println(d)
	}
	return nil
}

func loadSpecFile(path string) (*policy.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var spec policy.Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &spec, nil
}

// diffSpecFields renders a field-by-field comparison between two specs
// (§2.1 "policy diff... used to preview bundle-apply"), reflecting over
// the exported struct fields so new Spec fields are picked up automatically.
func diffSpecFields(a, b *policy.Spec) []string {
	var diffs []string
	va, vb := reflect.ValueOf(*a), reflect.ValueOf(*b)
	t := va.Type()
	for i := 0; i < t.NumField(); i++ {
		fa := fmt.Sprintf("%v", derefForDiff(va.Field(i)))
		fb := fmt.Sprintf("%v", derefForDiff(vb.Field(i)))
		if fa != fb {
			diffs = append(diffs, fmt.Sprintf("%s: %s -> %s", t.Field(i).Name, fa, fb))
		}
	}
	return diffs
}

func derefForDiff(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "<unset>"
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

package cmd

import (
	"context"
	"fmt"
	"os"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/yaml"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
)

var crdCmd = &cobra.Command{
	Use:   "crd",
	Short: "Generate or install the DevOpsPolicy and PolicyAuditResult CustomResourceDefinitions",
}

var crdGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print both CRD manifests as YAML",
	RunE:  runCRDGenerate,
}

var crdInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Create both CRDs on the current cluster if absent",
	RunE:  runCRDInstall,
}

func init() {
	crdCmd.AddCommand(crdGenerateCmd, crdInstallCmd)
	rootCmd.AddCommand(crdCmd)
}

func boolSchema() apiextensionsv1.JSONSchemaProps { return apiextensionsv1.JSONSchemaProps{Type: "boolean"} }
func intSchema() apiextensionsv1.JSONSchemaProps  { return apiextensionsv1.JSONSchemaProps{Type: "integer"} }
func stringSchema() apiextensionsv1.JSONSchemaProps {
	return apiextensionsv1.JSONSchemaProps{Type: "string"}
}

// devOpsPolicyCRD builds the DevOpsPolicy CustomResourceDefinition,
// mirroring the spec/status shape in §3/§6.
func devOpsPolicyCRD() *apiextensionsv1.CustomResourceDefinition {
	specProps := map[string]apiextensionsv1.JSONSchemaProps{
		"forbidLatestTag":       boolSchema(),
		"requireLivenessProbe":  boolSchema(),
		"requireReadinessProbe": boolSchema(),
		"maxRestartCount":       intSchema(),
		"forbidPendingDuration": intSchema(),
		"enforcementMode":       {Type: "string", Enum: []apiextensionsv1.JSON{{Raw: []byte(`"audit"`)}, {Raw: []byte(`"enforce"`)}}},
		"defaultProbe": {
			Type: "object",
			Properties: map[string]apiextensionsv1.JSONSchemaProps{
				"tcpPort":             intSchema(),
				"initialDelaySeconds": intSchema(),
				"periodSeconds":       intSchema(),
			},
		},
		"defaultResources": {
			Type: "object",
			Properties: map[string]apiextensionsv1.JSONSchemaProps{
				"cpuRequest":    stringSchema(),
				"cpuLimit":      stringSchema(),
				"memoryRequest": stringSchema(),
				"memoryLimit":   stringSchema(),
			},
		},
		"severityOverrides": {
			Type: "object",
			Properties: map[string]apiextensionsv1.JSONSchemaProps{
				"latestTag":        stringSchema(),
				"missingLiveness":  stringSchema(),
				"missingReadiness": stringSchema(),
				"highRestarts":     stringSchema(),
				"pending":          stringSchema(),
			},
		},
	}

	statusProps := map[string]apiextensionsv1.JSONSchemaProps{
		"observedGeneration":  intSchema(),
		"healthy":             boolSchema(),
		"healthScore":         intSchema(),
		"violations":          intSchema(),
		"lastEvaluated":       stringSchema(),
		"message":             stringSchema(),
		"remediationsApplied": intSchema(),
		"remediationsFailed":  intSchema(),
		"remediatedWorkloads": {Type: "array", Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: &apiextensionsv1.JSONSchemaProps{Type: "string"}}},
	}

	return buildCRD("devopspolicies", "DevOpsPolicy", "DevOpsPolicyList", specProps, statusProps, true)
}

// policyAuditResultCRD builds the PolicyAuditResult CustomResourceDefinition.
func policyAuditResultCRD() *apiextensionsv1.CustomResourceDefinition {
	specProps := map[string]apiextensionsv1.JSONSchemaProps{
		"policyName":      stringSchema(),
		"clusterName":     stringSchema(),
		"timestamp":       stringSchema(),
		"healthScore":     intSchema(),
		"totalViolations": intSchema(),
		"totalPods":       intSchema(),
		"classification":  stringSchema(),
		"violations": {
			Type: "array",
			Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: &apiextensionsv1.JSONSchemaProps{
				Type: "object",
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"violationType": stringSchema(),
					"severity":      stringSchema(),
					"podName":       stringSchema(),
					"namespace":     stringSchema(),
					"containerName": stringSchema(),
					"message":       stringSchema(),
				},
			}},
		},
	}
	return buildCRD("policyauditresults", "PolicyAuditResult", "PolicyAuditResultList", specProps, nil, false)
}

func buildCRD(plural, kind, listKind string, specProps, statusProps map[string]apiextensionsv1.JSONSchemaProps, withStatus bool) *apiextensionsv1.CustomResourceDefinition {
	props := map[string]apiextensionsv1.JSONSchemaProps{
		"spec": {Type: "object", Properties: specProps},
	}
	if withStatus {
		props["status"] = apiextensionsv1.JSONSchemaProps{Type: "object", Properties: statusProps}
	}

	validation := &apiextensionsv1.CustomResourceValidation{
		OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
			Type:       "object",
			Properties: props,
		},
	}

	subresources := &apiextensionsv1.CustomResourceSubresources{}
	if withStatus {
		subresources.Status = &apiextensionsv1.CustomResourceSubresourceStatus{}
	}

	return &apiextensionsv1.CustomResourceDefinition{
		TypeMeta: metav1.TypeMeta{APIVersion: "apiextensions.k8s.io/v1", Kind: "CustomResourceDefinition"},
		ObjectMeta: metav1.ObjectMeta{
			Name: plural + ".devops.stochastic.io",
		},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: "devops.stochastic.io",
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:   plural,
				Kind:     kind,
				ListKind: listKind,
			},
			Scope: apiextensionsv1.NamespaceScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{
					Name:         "v1",
					Served:       true,
					Storage:      true,
					Schema:       validation,
					Subresources: subresources,
				},
			},
		},
	}
}

func runCRDGenerate(cmd *cobra.Command, args []string) error {
	for _, crd := range []*apiextensionsv1.CustomResourceDefinition{devOpsPolicyCRD(), policyAuditResultCRD()} {
		out, err := yaml.Marshal(crd)
		if err != nil {
			return fmt.Errorf("failed to marshal CRD %s: %w", crd.Name, err)
		}
		fmt.Println("---")
		os.Stdout.Write(out)
	}
	return nil
}

var crdGVR = schema.GroupVersionResource{Group: "apiextensions.k8s.io", Version: "v1", Resource: "customresourcedefinitions"}

func runCRDInstall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clients, err := k8sclient.New()
	if err != nil {
		return err
	}

	for _, crd := range []*apiextensionsv1.CustomResourceDefinition{devOpsPolicyCRD(), policyAuditResultCRD()} {
		obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(crd)
		if err != nil {
			return fmt.Errorf("failed to convert CRD %s: %w", crd.Name, err)
		}
		u := &unstructured.Unstructured{Object: obj}

		_, err = clients.Dynamic.Resource(crdGVR).Create(ctx, u, metav1.CreateOptions{})
		if err != nil {
			if !apierrors.IsAlreadyExists(err) {
				return fmt.Errorf("failed to create CRD %s: %w", crd.Name, err)
			}
			fmt.Printf("%s already exists\n", crd.Name)
			continue
		}
		fmt.Printf("%s created\n", crd.Name)
	}
	return nil
}

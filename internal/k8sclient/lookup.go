package k8sclient

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// LookupNamespacePolicy looks up at most one DevOpsPolicy in namespace
// (§4.D: admission resolves "at most one policy per namespace"), returning
// its decoded spec and name. A namespace with no policy returns (nil, "",
// nil) rather than an error — callers fail open.
func LookupNamespacePolicy(ctx context.Context, dyn dynamic.Interface, namespace string) (*policy.Spec, string, error) {
	list, err := dyn.Resource(DevOpsPolicyGVR).Namespace(namespace).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list DevOpsPolicy in namespace %s: %w", namespace, err)
	}
	if len(list.Items) == 0 {
		return nil, "", nil
	}

	obj := list.Items[0]
	spec, err := DecodeSpec(&obj)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode DevOpsPolicy %s/%s: %w", namespace, obj.GetName(), err)
	}
	return spec, obj.GetName(), nil
}

// DecodeSpec decodes a DevOpsPolicy's unstructured spec field into the
// typed policy.Spec.
func DecodeSpec(obj *unstructured.Unstructured) (*policy.Spec, error) {
	specMap, found, err := unstructured.NestedMap(obj.Object, "spec")
	if err != nil {
		return nil, fmt.Errorf("failed to read spec field: %w", err)
	}
	if !found {
		return &policy.Spec{}, nil
	}

	var spec policy.Spec
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(specMap, &spec); err != nil {
		return nil, fmt.Errorf("failed to convert spec: %w", err)
	}
	return &spec, nil
}

// ListPolicies returns every DevOpsPolicy across all namespaces.
func ListPolicies(ctx context.Context, dyn dynamic.Interface) (*unstructured.UnstructuredList, error) {
	list, err := dyn.Resource(DevOpsPolicyGVR).Namespace("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list DevOpsPolicy objects: %w", err)
	}
	return list, nil
}

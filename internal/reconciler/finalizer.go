package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
)

// Finalizer is the cleanup finalizer placed on every DevOpsPolicy so its
// per-policy Prometheus gauge series are cleared before the object is
// removed from etcd (§4.E, §9). Its PolicyAuditResult objects are not
// deleted on finalization.
const Finalizer = "devops.stochastic.io/cleanup"

// HasFinalizer reports whether obj already carries the cleanup finalizer.
func HasFinalizer(obj *unstructured.Unstructured) bool {
	for _, f := range obj.GetFinalizers() {
		if f == Finalizer {
			return true
		}
	}
	return false
}

// EnsureFinalizer adds the cleanup finalizer to a DevOpsPolicy, if absent.
func EnsureFinalizer(ctx context.Context, client dynamic.Interface, obj *unstructured.Unstructured) error {
	if HasFinalizer(obj) {
		return nil
	}
	finalizers := append(obj.GetFinalizers(), Finalizer)
	patch := map[string]any{"metadata": map[string]any{"finalizers": finalizers}}
	return patchMetadata(ctx, client, obj, patch)
}

// RemoveFinalizer strips the cleanup finalizer from a DevOpsPolicy,
// allowing the API server to complete its deletion.
func RemoveFinalizer(ctx context.Context, client dynamic.Interface, obj *unstructured.Unstructured) error {
	var remaining []string
	for _, f := range obj.GetFinalizers() {
		if f != Finalizer {
			remaining = append(remaining, f)
		}
	}
	patch := map[string]any{"metadata": map[string]any{"finalizers": remaining}}
	return patchMetadata(ctx, client, obj, patch)
}

func patchMetadata(ctx context.Context, client dynamic.Interface, obj *unstructured.Unstructured, patch map[string]any) error {
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal finalizer patch: %w", err)
	}
	_, err = client.Resource(k8sclient.DevOpsPolicyGVR).Namespace(obj.GetNamespace()).Patch(
		ctx, obj.GetName(), types.MergePatchType, patchBytes, metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("failed to patch DevOpsPolicy %s/%s finalizers: %w", obj.GetNamespace(), obj.GetName(), err)
	}
	return nil
}

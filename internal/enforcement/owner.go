// Package enforcement implements the enforcement planner and patcher
// (spec §4.C): pod→owner resolution, protected-namespace gating, patchable
// violation planning, and strategic-merge patch construction.
package enforcement

import (
	"context"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// protectedNamespaces is the hard-coded denylist that is never patched,
// regardless of policy (§4.C): all system namespaces plus these.
var protectedNamespaces = map[string]bool{
	"kube-public":     true,
	"kube-node-lease": true,
	"kube-flannel":    true,
	"argocd":          true,
}

// IsProtectedNamespace reports whether ns may never be targeted by an
// enforcement patch.
func IsProtectedNamespace(ns string) bool {
	if strings.HasPrefix(ns, "kube-") || strings.HasSuffix(ns, "-system") {
		return true
	}
	switch ns {
	case "cert-manager", "istio-system", "monitoring", "observability", "argocd",
		"kube-public", "kube-node-lease", "kube-flannel":
		return true
	}
	return protectedNamespaces[ns]
}

// stripReplicaSetHash derives a Deployment name from a ReplicaSet name by
// stripping the final "-hash" suffix, e.g. "web-app-5d4f8b9c7f" -> "web-app".
// A name with no dash is returned unchanged.
func stripReplicaSetHash(rsName string) string {
	pos := strings.LastIndex(rsName, "-")
	if pos <= 0 {
		return rsName
	}
	return rsName[:pos]
}

// ResolveOwner walks the pod's owner references to find its parent
// workload (§4.C). If the pod is owned by a ReplicaSet, prefers a live
// lookup of the ReplicaSet's own Deployment owner; falls back to the
// name-stripping heuristic when the client is nil or the lookup fails.
func ResolveOwner(ctx context.Context, client kubernetes.Interface, pod *corev1.Pod) (*policy.WorkloadRef, bool) {
	for _, owner := range pod.OwnerReferences {
		switch owner.Kind {
		case "Deployment", "StatefulSet", "DaemonSet":
			return &policy.WorkloadRef{Kind: owner.Kind, Name: owner.Name, Namespace: pod.Namespace}, true
		case "ReplicaSet":
			if client != nil {
				if rs, err := client.AppsV1().ReplicaSets(pod.Namespace).Get(ctx, owner.Name, metav1.GetOptions{}); err == nil {
					if dep, ok := deploymentOwnerOf(rs); ok {
						return &policy.WorkloadRef{Kind: "Deployment", Name: dep, Namespace: pod.Namespace}, true
					}
				}
			}
			return &policy.WorkloadRef{Kind: "Deployment", Name: stripReplicaSetHash(owner.Name), Namespace: pod.Namespace}, true
		}
	}
	return nil, false
}

func deploymentOwnerOf(rs *appsv1.ReplicaSet) (string, bool) {
	for _, o := range rs.OwnerReferences {
		if o.Kind == "Deployment" {
			return o.Name, true
		}
	}
	return "", false
}

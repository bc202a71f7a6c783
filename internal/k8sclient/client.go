// Package k8sclient builds the Kubernetes clients every other component is
// handed: the typed clientset for pods/replicasets/leases, and the dynamic
// client for the DevOpsPolicy and PolicyAuditResult custom resources, which
// ship with no generated clientset.
package k8sclient

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// DevOpsPolicyGVR is the GroupVersionResource for the DevOpsPolicy CRD.
var DevOpsPolicyGVR = schema.GroupVersionResource{
	Group:    "devops.stochastic.io",
	Version:  "v1",
	Resource: "devopspolicies",
}

// PolicyAuditResultGVR is the GroupVersionResource for the
// PolicyAuditResult CRD.
var PolicyAuditResultGVR = schema.GroupVersionResource{
	Group:    "devops.stochastic.io",
	Version:  "v1",
	Resource: "policyauditresults",
}

// Clients bundles the typed and dynamic clients every component needs.
type Clients struct {
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
}

// New builds a Clients from in-cluster config, falling back to a
// kubeconfig file when not running inside a pod.
func New() (*Clients, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			kubeconfig = os.Getenv("HOME") + "/.kube/config"
		}
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
	}

	typed, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Clients{Typed: typed, Dynamic: dyn}, nil
}

// Package multicluster implements the multi-cluster analyze command
// (§4.G): enumerating kubeconfig contexts, evaluating each cluster's
// namespaces independently, and aggregating the results into a single
// pod-count-weighted report.
package multicluster

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ListContexts returns every context name defined in the kubeconfig at
// path (empty path uses the client-go default loading rules).
func ListContexts(path string) ([]string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	raw, err := rules.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	contexts := make([]string, 0, len(raw.Contexts))
	for name := range raw.Contexts {
		contexts = append(contexts, name)
	}
	return contexts, nil
}

// ClientForContext builds a typed clientset for a single kubeconfig context.
func ClientForContext(path, contextName string) (kubernetes.Interface, error) {
	restConfig, err := restConfigForContext(path, contextName)
	if err != nil {
		return nil, err
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for context %s: %w", contextName, err)
	}
	return client, nil
}

// DynamicClientForContext builds a dynamic clientset for a single
// kubeconfig context, used to resolve each cluster's DevOpsPolicy objects.
func DynamicClientForContext(path, contextName string) (dynamic.Interface, error) {
	restConfig, err := restConfigForContext(path, contextName)
	if err != nil {
		return nil, err
	}
	client, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client for context %s: %w", contextName, err)
	}
	return client, nil
}

func restConfigForContext(path, contextName string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build client config for context %s: %w", contextName, err)
	}
	return restConfig, nil
}

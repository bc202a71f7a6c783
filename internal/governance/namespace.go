// Package governance implements the evaluation engine (spec §4.B): a pure,
// re-entrant mapping from a pod and a policy to metrics, violations, a
// health score, and a classification.
package governance

import "strings"

var systemNamespaces = map[string]bool{
	"cert-manager":   true,
	"istio-system":   true,
	"monitoring":     true,
	"observability":  true,
	"argocd":         true,
}

// IsSystemNamespace reports whether ns must be excluded from evaluation and
// enforcement (§4.B).
func IsSystemNamespace(ns string) bool {
	if strings.HasPrefix(ns, "kube-") || strings.HasSuffix(ns, "-system") {
		return true
	}
	return systemNamespaces[ns]
}

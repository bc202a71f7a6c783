package cmd

import (
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"
)

var observabilityNamespace string

var observabilityCmd = &cobra.Command{
	Use:     "observability",
	Aliases: []string{"deploy"},
	Short:   "Generate deployment manifests for running the operator in-cluster",
}

var observabilityGenerateRBACCmd = &cobra.Command{
	Use:   "generate-rbac",
	Short: "Print the ServiceAccount/ClusterRole/ClusterRoleBinding manifest",
	RunE:  runGenerate(rbacTemplate),
}

var observabilityGenerateDeploymentCmd = &cobra.Command{
	Use:   "generate-deployment",
	Short: "Print the operator Deployment manifest",
	RunE:  runGenerate(deploymentTemplate),
}

var observabilityGenerateServiceMonitorCmd = &cobra.Command{
	Use:   "generate-servicemonitor",
	Short: "Print the Prometheus Operator ServiceMonitor manifest for /metrics",
	RunE:  runGenerate(serviceMonitorTemplate),
}

var observabilityGenerateDashboardCmd = &cobra.Command{
	Use:   "generate-dashboard",
	Short: "Print a Grafana dashboard JSON model for the health-score metrics",
	RunE:  runGenerate(dashboardTemplate),
}

func init() {
	for _, c := range []*cobra.Command{
		observabilityGenerateRBACCmd,
		observabilityGenerateDeploymentCmd,
		observabilityGenerateServiceMonitorCmd,
		observabilityGenerateDashboardCmd,
	} {
		c.Flags().StringVar(&observabilityNamespace, "namespace", "devops-system", "namespace the manifest targets")
	}

	observabilityCmd.AddCommand(
		observabilityGenerateRBACCmd,
		observabilityGenerateDeploymentCmd,
		observabilityGenerateServiceMonitorCmd,
		observabilityGenerateDashboardCmd,
	)
	rootCmd.AddCommand(observabilityCmd)
}

// manifestData is the template context shared by every generate-* manifest.
type manifestData struct {
	Namespace string
}

func runGenerate(tmplText string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		tmpl, err := template.New("manifest").Parse(tmplText)
		if err != nil {
			return fmt.Errorf("failed to parse manifest template: %w", err)
		}
		return tmpl.Execute(os.Stdout, manifestData{Namespace: observabilityNamespace})
	}
}

const rbacTemplate = `apiVersion: v1
kind: ServiceAccount
metadata:
  name: kube-devops-operator
  namespace: {{.Namespace}}
---
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: kube-devops-operator
rules:
  - apiGroups: [""]
    resources: ["pods", "replicasets"]
    verbs: ["get", "list", "watch", "patch"]
  - apiGroups: ["coordination.k8s.io"]
    resources: ["leases"]
    verbs: ["get", "list", "create", "update"]
  - apiGroups: ["devops.stochastic.io"]
    resources: ["devopspolicies", "devopspolicies/status", "policyauditresults"]
    verbs: ["get", "list", "watch", "create", "update", "patch", "delete"]
  - apiGroups: ["apiextensions.k8s.io"]
    resources: ["customresourcedefinitions"]
    verbs: ["get", "create"]
---
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRoleBinding
metadata:
  name: kube-devops-operator
subjects:
  - kind: ServiceAccount
    name: kube-devops-operator
    namespace: {{.Namespace}}
roleRef:
  kind: ClusterRole
  name: kube-devops-operator
  apiGroup: rbac.authorization.k8s.io
`

const deploymentTemplate = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: kube-devops-operator
  namespace: {{.Namespace}}
  labels:
    app.kubernetes.io/name: kube-devops-operator
spec:
  replicas: 2
  selector:
    matchLabels:
      app.kubernetes.io/name: kube-devops-operator
  template:
    metadata:
      labels:
        app.kubernetes.io/name: kube-devops-operator
    spec:
      serviceAccountName: kube-devops-operator
      containers:
        - name: operator
          image: kube-devops-operator:latest
          args: ["watch"]
          ports:
            - name: metrics
              containerPort: 8081
          env:
            - name: RUST_LOG
              value: info
---
apiVersion: v1
kind: Service
metadata:
  name: kube-devops-operator-metrics
  namespace: {{.Namespace}}
  labels:
    app.kubernetes.io/name: kube-devops-operator
spec:
  selector:
    app.kubernetes.io/name: kube-devops-operator
  ports:
    - name: metrics
      port: 9090
      targetPort: metrics
`

const serviceMonitorTemplate = `apiVersion: monitoring.coreos.com/v1
kind: ServiceMonitor
metadata:
  name: kube-devops-operator
  namespace: {{.Namespace}}
  labels:
    app.kubernetes.io/name: kube-devops-operator
spec:
  selector:
    matchLabels:
      app.kubernetes.io/name: kube-devops-operator
  endpoints:
    - port: metrics
      interval: 30s
      path: /metrics
`

const dashboardTemplate = `{
  "title": "kube-devops-operator",
  "uid": "kube-devops-operator",
  "panels": [
    {
      "title": "Cluster health score",
      "type": "gauge",
      "targets": [{ "expr": "devopspolicy_watch_cluster_health_score" }]
    },
    {
      "title": "Namespace health score",
      "type": "timeseries",
      "targets": [{ "expr": "devopspolicy_watch_namespace_health_score" }]
    },
    {
      "title": "Pod events processed",
      "type": "timeseries",
      "targets": [{ "expr": "rate(devopspolicy_watch_pod_events_total[5m])" }]
    },
    {
      "title": "Pods tracked",
      "type": "stat",
      "targets": [{ "expr": "devopspolicy_watch_pods_tracked_total" }]
    },
    {
      "title": "Leader",
      "type": "stat",
      "targets": [{ "expr": "devopspolicy_watch_is_leader" }]
    }
  ],
  "schemaVersion": 39
}
`

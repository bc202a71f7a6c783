package enforcement

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// ActionKind is the closed set of patchable remediation actions.
type ActionKind string

const (
	ActionInjectLivenessProbe  ActionKind = "InjectLivenessProbe"
	ActionInjectReadinessProbe ActionKind = "InjectReadinessProbe"
	ActionInjectResources      ActionKind = "InjectResources"
)

// Action is one planned patch against a single container, addressed by
// index within the pod template's container list.
type Action struct {
	Kind           ActionKind
	ContainerIndex int
}

// Plan is the set of actions to apply to one workload.
type Plan struct {
	Workload policy.WorkloadRef
	Actions  []Action
}

// Result is the outcome of applying a Plan.
type Result struct {
	Workload policy.WorkloadRef
	Success  bool
	Message  string
}

// PlanRemediation returns a Plan for pod, or false when no plan applies
// (§4.C): protected namespace, enforcement mode != enforce, no parent
// workload, or no patchable violation all return no plan. The non-patchable
// violations (latest_tag, high_restarts, pending) never generate actions.
func PlanRemediation(ctx context.Context, client kubernetes.Interface, pod *corev1.Pod, spec *policy.Spec) (*Plan, bool) {
	if IsProtectedNamespace(pod.Namespace) {
		return nil, false
	}
	if !spec.IsEnforceMode() {
		return nil, false
	}
	workload, ok := ResolveOwner(ctx, client, pod)
	if !ok {
		return nil, false
	}

	var actions []Action
	for i, c := range pod.Spec.Containers {
		if boolEnabled(spec.RequireLivenessProbe) && c.LivenessProbe == nil {
			actions = append(actions, Action{Kind: ActionInjectLivenessProbe, ContainerIndex: i})
		}
		if boolEnabled(spec.RequireReadinessProbe) && c.ReadinessProbe == nil {
			actions = append(actions, Action{Kind: ActionInjectReadinessProbe, ContainerIndex: i})
		}
		if spec.DefaultResources != nil && resourcesAbsent(c.Resources) {
			actions = append(actions, Action{Kind: ActionInjectResources, ContainerIndex: i})
		}
	}

	if len(actions) == 0 {
		return nil, false
	}

	return &Plan{Workload: *workload, Actions: actions}, true
}

func resourcesAbsent(r corev1.ResourceRequirements) bool {
	return len(r.Requests) == 0 && len(r.Limits) == 0
}

func boolEnabled(b *bool) bool {
	return b != nil && *b
}

// BuildDefaultProbe constructs the TCP socket probe injected for a missing
// liveness/readiness check (§4.C): port resolved as explicit tcpPort ->
// first declared container port -> 8080; delays default to 5s/10s.
func BuildDefaultProbe(container corev1.Container, cfg *policy.DefaultProbeConfig) corev1.Probe {
	port := int32(8080)
	if len(container.Ports) > 0 {
		port = container.Ports[0].ContainerPort
	}
	initialDelay := int32(5)
	period := int32(10)
	if cfg != nil {
		if cfg.TCPPort != nil {
			port = *cfg.TCPPort
		}
		if cfg.InitialDelaySeconds != nil {
			initialDelay = *cfg.InitialDelaySeconds
		}
		if cfg.PeriodSeconds != nil {
			period = *cfg.PeriodSeconds
		}
	}
	return corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			TCPSocket: &corev1.TCPSocketAction{Port: intOrStringFromInt32(port)},
		},
		InitialDelaySeconds: initialDelay,
		PeriodSeconds:       period,
	}
}

// BuildDefaultResources constructs the resource requirements injected when
// a container has neither requests nor limits, applying the policy's
// defaults with fallbacks cpu=100m/500m, memory=128Mi/256Mi (§4.C). A
// policy value that is empty or does not parse as a quantity is replaced
// by its fallback.
func BuildDefaultResources(cfg *policy.DefaultResourceConfig) corev1.ResourceRequirements {
	cpuRequest, cpuLimit := "100m", "500m"
	memRequest, memLimit := "128Mi", "256Mi"
	valid := func(s string) bool {
		_, err := resourceapi.ParseQuantity(s)
		return err == nil
	}
	if cfg != nil {
		if valid(cfg.CPURequest) {
			cpuRequest = cfg.CPURequest
		}
		if valid(cfg.CPULimit) {
			cpuLimit = cfg.CPULimit
		}
		if valid(cfg.MemoryRequest) {
			memRequest = cfg.MemoryRequest
		}
		if valid(cfg.MemoryLimit) {
			memLimit = cfg.MemoryLimit
		}
	}
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    mustQuantity(cpuRequest),
			corev1.ResourceMemory: mustQuantity(memRequest),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    mustQuantity(cpuLimit),
			corev1.ResourceMemory: mustQuantity(memLimit),
		},
	}
}

package enforcement

import (
	"encoding/json"

	corev1 "k8s.io/api/core/v1"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// PatchedByAnnotation marks a pod template as having been mutated by the
// enforcement planner (§6).
const PatchedByAnnotation = "devops.stochastic.io/patched-by"

// FieldManager is the apply field manager used for every enforcement and
// status patch.
const FieldManager = "kube-devops-operator"

func intOrStringFromInt32(v int32) intstr.IntOrString {
	return intstr.FromInt32(v)
}

func mustQuantity(s string) resourceapi.Quantity {
	q, err := resourceapi.ParseQuantity(s)
	if err != nil {
		// Defaults are compile-time constants; a parse failure here is a
		// programmer error, not an operational one.
		panic("enforcement: invalid built-in quantity " + s + ": " + err.Error())
	}
	return q
}

// containerPatch is the per-container fragment of the strategic-merge
// patch body.
type containerPatch struct {
	Name           string                       `json:"name"`
	LivenessProbe  *corev1.Probe                `json:"livenessProbe,omitempty"`
	ReadinessProbe *corev1.Probe                `json:"readinessProbe,omitempty"`
	Resources      *corev1.ResourceRequirements `json:"resources,omitempty"`
}

// patchBody is the full strategic-merge document shape from §6.
type patchBody struct {
	Spec struct {
		Template struct {
			Metadata struct {
				Annotations map[string]string `json:"annotations"`
			} `json:"metadata"`
			Spec struct {
				Containers []containerPatch `json:"containers"`
			} `json:"spec"`
		} `json:"template"`
	} `json:"spec"`
}

// BuildPatch constructs the full strategic-merge patch document for plan,
// given the current containers of the workload's pod template and the
// policy supplying probe/resource defaults (§4.C, §6). Every container in
// the template is seeded with `{"name": ...}`; planned fields are layered
// in only for the containers an action targets.
func BuildPatch(plan *Plan, containers []corev1.Container, defaultProbe *policy.DefaultProbeConfig, defaultResources *policy.DefaultResourceConfig) ([]byte, error) {
	var body patchBody
	body.Spec.Template.Metadata.Annotations = map[string]string{PatchedByAnnotation: FieldManager}

	patches := make([]containerPatch, len(containers))
	for i, c := range containers {
		patches[i] = containerPatch{Name: c.Name}
	}

	for _, action := range plan.Actions {
		if action.ContainerIndex < 0 || action.ContainerIndex >= len(containers) {
			continue
		}
		c := containers[action.ContainerIndex]
		switch action.Kind {
		case ActionInjectLivenessProbe:
			probe := BuildDefaultProbe(c, defaultProbe)
			patches[action.ContainerIndex].LivenessProbe = &probe
		case ActionInjectReadinessProbe:
			probe := BuildDefaultProbe(c, defaultProbe)
			patches[action.ContainerIndex].ReadinessProbe = &probe
		case ActionInjectResources:
			res := BuildDefaultResources(defaultResources)
			patches[action.ContainerIndex].Resources = &res
		}
	}

	body.Spec.Template.Spec.Containers = patches
	return json.Marshal(body)
}

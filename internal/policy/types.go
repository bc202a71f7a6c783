// Package policy holds the DevOpsPolicy/PolicyAuditResult schema: the
// settable checks, severities, enforcement mode, and defaults every other
// component evaluates against.
package policy

// Severity is the closed severity enum a violation is ranked by.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank gives Severity a total order: critical(4) > high(3) > medium(2) > low(1).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Multiplier is the severity-weighted scoring multiplier.
func (s Severity) Multiplier() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	default:
		return 1
	}
}

// EnforcementMode gates whether the reconciler mutates parent workloads.
type EnforcementMode string

const (
	EnforcementAudit   EnforcementMode = "audit"
	EnforcementEnforce EnforcementMode = "enforce"
)

// CheckType is the closed set of violation kinds. Kept as a string enum
// rather than dynamic dispatch so weights/severities/overrides resolve via
// a static table keyed by the enum, not by ad-hoc string matching.
type CheckType string

const (
	CheckLatestTag          CheckType = "latest_tag"
	CheckMissingLiveness    CheckType = "missing_liveness"
	CheckMissingReadiness   CheckType = "missing_readiness"
	CheckHighRestarts       CheckType = "high_restarts"
	CheckPending            CheckType = "pending"
)

// DefaultProbeConfig configures the TCP probe injected for patchable
// missing-probe violations.
type DefaultProbeConfig struct {
	TCPPort            *int32 `json:"tcpPort,omitempty" yaml:"tcpPort,omitempty"`
	InitialDelaySeconds *int32 `json:"initialDelaySeconds,omitempty" yaml:"initialDelaySeconds,omitempty"`
	PeriodSeconds       *int32 `json:"periodSeconds,omitempty" yaml:"periodSeconds,omitempty"`
}

// DefaultResourceConfig configures the resource requirements injected for a
// container missing both requests and limits.
type DefaultResourceConfig struct {
	CPURequest    string `json:"cpuRequest,omitempty" yaml:"cpuRequest,omitempty"`
	CPULimit      string `json:"cpuLimit,omitempty" yaml:"cpuLimit,omitempty"`
	MemoryRequest string `json:"memoryRequest,omitempty" yaml:"memoryRequest,omitempty"`
	MemoryLimit   string `json:"memoryLimit,omitempty" yaml:"memoryLimit,omitempty"`
}

// SeverityOverrides lets a policy raise or lower the default severity for
// each check type.
type SeverityOverrides struct {
	LatestTag        *Severity `json:"latestTag,omitempty" yaml:"latestTag,omitempty"`
	MissingLiveness  *Severity `json:"missingLiveness,omitempty" yaml:"missingLiveness,omitempty"`
	MissingReadiness *Severity `json:"missingReadiness,omitempty" yaml:"missingReadiness,omitempty"`
	HighRestarts     *Severity `json:"highRestarts,omitempty" yaml:"highRestarts,omitempty"`
	Pending          *Severity `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Get returns the override for a check type, if any.
func (o *SeverityOverrides) Get(check CheckType) *Severity {
	if o == nil {
		return nil
	}
	switch check {
	case CheckLatestTag:
		return o.LatestTag
	case CheckMissingLiveness:
		return o.MissingLiveness
	case CheckMissingReadiness:
		return o.MissingReadiness
	case CheckHighRestarts:
		return o.HighRestarts
	case CheckPending:
		return o.Pending
	default:
		return nil
	}
}

// Spec is the DevOpsPolicy spec: every field is optional, and an absent
// field means the corresponding check is disabled. A policy with every
// field unset is a valid no-op that allows everything and scores every
// namespace at 100.
type Spec struct {
	ForbidLatestTag        *bool                  `json:"forbidLatestTag,omitempty" yaml:"forbidLatestTag,omitempty"`
	RequireLivenessProbe   *bool                  `json:"requireLivenessProbe,omitempty" yaml:"requireLivenessProbe,omitempty"`
	RequireReadinessProbe  *bool                  `json:"requireReadinessProbe,omitempty" yaml:"requireReadinessProbe,omitempty"`
	MaxRestartCount        *int32                 `json:"maxRestartCount,omitempty" yaml:"maxRestartCount,omitempty"`
	ForbidPendingDuration  *uint64                `json:"forbidPendingDuration,omitempty" yaml:"forbidPendingDuration,omitempty"`
	EnforcementMode        *EnforcementMode       `json:"enforcementMode,omitempty" yaml:"enforcementMode,omitempty"`
	DefaultProbe           *DefaultProbeConfig    `json:"defaultProbe,omitempty" yaml:"defaultProbe,omitempty"`
	DefaultResources       *DefaultResourceConfig `json:"defaultResources,omitempty" yaml:"defaultResources,omitempty"`
	SeverityOverrides      *SeverityOverrides     `json:"severityOverrides,omitempty" yaml:"severityOverrides,omitempty"`
}

// IsEnforceMode reports whether the policy requests mutation of parent
// workloads. Absent or audit both mean "never mutate".
func (s *Spec) IsEnforceMode() bool {
	return s != nil && s.EnforcementMode != nil && *s.EnforcementMode == EnforcementEnforce
}

// Clone returns a deep-enough copy suitable for building the
// admission-restricted policy (§4.D): callers mutate the clone's pointer
// fields without affecting the original.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// ViolationDetail describes a single failing check on a single container.
type ViolationDetail struct {
	ViolationType CheckType `json:"violationType"`
	Severity      Severity  `json:"severity"`
	PodName       string    `json:"podName"`
	Namespace     string    `json:"namespace"`
	ContainerName string    `json:"containerName"`
	Message       string    `json:"message"`
}

// Metrics are additive, non-negative per-namespace/per-cluster counters.
type Metrics struct {
	TotalPods        uint32
	LatestTag        uint32
	MissingLiveness  uint32
	MissingReadiness uint32
	HighRestarts     uint32
	Pending          uint32
}

// Add accumulates the contribution of delta into m.
func (m *Metrics) Add(delta Metrics) {
	m.TotalPods += delta.TotalPods
	m.LatestTag += delta.LatestTag
	m.MissingLiveness += delta.MissingLiveness
	m.MissingReadiness += delta.MissingReadiness
	m.HighRestarts += delta.HighRestarts
	m.Pending += delta.Pending
}

// Subtract is the saturating inverse of Add; no counter may go negative.
func (m *Metrics) Subtract(delta Metrics) {
	m.TotalPods = satSub(m.TotalPods, delta.TotalPods)
	m.LatestTag = satSub(m.LatestTag, delta.LatestTag)
	m.MissingLiveness = satSub(m.MissingLiveness, delta.MissingLiveness)
	m.MissingReadiness = satSub(m.MissingReadiness, delta.MissingReadiness)
	m.HighRestarts = satSub(m.HighRestarts, delta.HighRestarts)
	m.Pending = satSub(m.Pending, delta.Pending)
}

func satSub(a, b uint32) uint32 {
	if b >= a {
		return 0
	}
	return a - b
}

// Status is written back to policy.status by the reconciler, guarded by
// observedGeneration.
type Status struct {
	ObservedGeneration   *int64   `json:"observedGeneration,omitempty"`
	Healthy              *bool    `json:"healthy,omitempty"`
	HealthScore          *uint32  `json:"healthScore,omitempty"`
	Violations           *uint32  `json:"violations,omitempty"`
	LastEvaluated        *string  `json:"lastEvaluated,omitempty"`
	Message              *string  `json:"message,omitempty"`
	RemediationsApplied  *uint32  `json:"remediationsApplied,omitempty"`
	RemediationsFailed   *uint32  `json:"remediationsFailed,omitempty"`
	RemediatedWorkloads  []string `json:"remediatedWorkloads,omitempty"`
}

// AuditResult is the PolicyAuditResult resource: one snapshot of a
// reconcile cycle's evaluation, retained per §3/§9 up to a fixed count.
type AuditResult struct {
	PolicyName      string            `json:"policyName"`
	ClusterName     string            `json:"clusterName,omitempty"`
	Timestamp       string            `json:"timestamp"`
	HealthScore     uint32            `json:"healthScore"`
	TotalViolations uint32            `json:"totalViolations"`
	TotalPods       uint32            `json:"totalPods"`
	Classification  string            `json:"classification"`
	Violations      []ViolationDetail `json:"violations"`
}

// AuditRetention is the normative maximum number of AuditResult objects
// kept per policyName (spec.md §9 open question 3: adopted as normative).
const AuditRetention = 10

// WorkloadRef identifies a parent workload an enforcement plan targets.
type WorkloadRef struct {
	Kind      string
	Name      string
	Namespace string
}

// Key is the canonical dedup key used to collapse multiple pods of the same
// owner into a single enforcement plan.
func (w WorkloadRef) Key() string {
	return lower(w.Kind) + "/" + w.Namespace + "/" + w.Name
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

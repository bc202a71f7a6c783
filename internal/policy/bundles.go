package policy

import "strings"

// Bundle is a named, pre-built policy template.
type Bundle struct {
	Name        string
	Description string
	Spec        Spec
}

func ptr[T any](v T) *T { return &v }

// AllBundles returns the three built-in policy bundles, grounded on the
// original implementation's bundle catalog: baseline (audit), restricted
// (enforce, strict), permissive (audit, lenient).
func AllBundles() []Bundle {
	return []Bundle{baselineBundle(), restrictedBundle(), permissiveBundle()}
}

// GetBundle looks up a built-in bundle by case-insensitive name.
func GetBundle(name string) (Bundle, bool) {
	lower := strings.ToLower(name)
	for _, b := range AllBundles() {
		if b.Name == lower {
			return b, true
		}
	}
	return Bundle{}, false
}

func baselineBundle() Bundle {
	mode := EnforcementAudit
	return Bundle{
		Name:        "baseline",
		Description: "Forbid :latest tags and require readiness probes. Audit mode.",
		Spec: Spec{
			ForbidLatestTag:       ptr(true),
			RequireReadinessProbe: ptr(true),
			EnforcementMode:       &mode,
		},
	}
}

func restrictedBundle() Bundle {
	mode := EnforcementEnforce
	critical, high := SeverityCritical, SeverityHigh
	return Bundle{
		Name:        "restricted",
		Description: "All checks enabled with strict thresholds. Enforce mode.",
		Spec: Spec{
			ForbidLatestTag:       ptr(true),
			RequireLivenessProbe:  ptr(true),
			RequireReadinessProbe: ptr(true),
			MaxRestartCount:       ptr(int32(3)),
			ForbidPendingDuration: ptr(uint64(300)),
			EnforcementMode:       &mode,
			DefaultProbe: &DefaultProbeConfig{
				InitialDelaySeconds: ptr(int32(5)),
				PeriodSeconds:       ptr(int32(10)),
			},
			DefaultResources: &DefaultResourceConfig{
				CPURequest:    "100m",
				CPULimit:      "500m",
				MemoryRequest: "128Mi",
				MemoryLimit:   "256Mi",
			},
			SeverityOverrides: &SeverityOverrides{
				LatestTag:        &critical,
				MissingLiveness:  &high,
				MissingReadiness: &high,
				HighRestarts:     &critical,
				Pending:          &high,
			},
		},
	}
}

func permissiveBundle() Bundle {
	mode := EnforcementAudit
	low, medium := SeverityLow, SeverityMedium
	return Bundle{
		Name:        "permissive",
		Description: "All checks enabled with lenient thresholds. Audit mode.",
		Spec: Spec{
			ForbidLatestTag:       ptr(true),
			RequireLivenessProbe:  ptr(true),
			RequireReadinessProbe: ptr(true),
			MaxRestartCount:       ptr(int32(10)),
			ForbidPendingDuration: ptr(uint64(600)),
			EnforcementMode:       &mode,
			SeverityOverrides: &SeverityOverrides{
				LatestTag:        &low,
				MissingLiveness:  &low,
				MissingReadiness: &low,
				HighRestarts:     &medium,
				Pending:          &low,
			},
		},
	}
}

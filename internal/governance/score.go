package governance

import "github.com/stochasticquant/kube-devops-operator/internal/policy"

// CalculateHealthScore computes the plain (unweighted) score (§4.B):
//
//	if totalPods == 0: 100
//	raw     = Σ (counter[k] * weight[k])
//	perPod  = raw / totalPods             (integer division)
//	capped  = min(perPod, 100)
//	score   = 100 - capped
func CalculateHealthScore(m policy.Metrics) uint32 {
	if m.TotalPods == 0 {
		return 100
	}

	raw := uint64(m.LatestTag)*uint64(policy.BaseWeight[policy.CheckLatestTag]) +
		uint64(m.MissingLiveness)*uint64(policy.BaseWeight[policy.CheckMissingLiveness]) +
		uint64(m.MissingReadiness)*uint64(policy.BaseWeight[policy.CheckMissingReadiness]) +
		uint64(m.HighRestarts)*uint64(policy.BaseWeight[policy.CheckHighRestarts]) +
		uint64(m.Pending)*uint64(policy.BaseWeight[policy.CheckPending])

	perPod := raw / uint64(m.TotalPods)
	capped := perPod
	if capped > 100 {
		capped = 100
	}
	return uint32(100 - capped)
}

// CalculateHealthScoreWithSeverity is the severity-weighted variant: each
// base weight is multiplied by the effective severity's multiplier before
// summing.
func CalculateHealthScoreWithSeverity(m policy.Metrics, overrides *policy.SeverityOverrides) uint32 {
	if m.TotalPods == 0 {
		return 100
	}

	weighted := func(check policy.CheckType, count uint32) uint64 {
		mult := uint64(policy.EffectiveSeverity(check, overrides).Multiplier())
		return uint64(count) * uint64(policy.BaseWeight[check]) * mult
	}

	raw := weighted(policy.CheckLatestTag, m.LatestTag) +
		weighted(policy.CheckMissingLiveness, m.MissingLiveness) +
		weighted(policy.CheckMissingReadiness, m.MissingReadiness) +
		weighted(policy.CheckHighRestarts, m.HighRestarts) +
		weighted(policy.CheckPending, m.Pending)

	perPod := raw / uint64(m.TotalPods)
	capped := perPod
	if capped > 100 {
		capped = 100
	}
	return uint32(100 - capped)
}

// Classify buckets a health score per §4.B: score ≥ 80 → Healthy;
// 60..79 → Stable; 40..59 → Degraded; else → Critical.
func Classify(score uint32) string {
	switch {
	case score >= 80:
		return "Healthy"
	case score >= 60:
		return "Stable"
	case score >= 40:
		return "Degraded"
	default:
		return "Critical"
	}
}

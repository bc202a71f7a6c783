package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

func TestCalculateHealthScore_NoPods(t *testing.T) {
	assert.EqualValues(t, 100, CalculateHealthScore(policy.Metrics{}))
}

func TestCalculateHealthScore_AllCompliant(t *testing.T) {
	assert.EqualValues(t, 100, CalculateHealthScore(policy.Metrics{TotalPods: 10}))
}

func TestCalculateHealthScore_FloorsAtZero(t *testing.T) {
	m := policy.Metrics{
		TotalPods:        1,
		LatestTag:        10,
		MissingLiveness:  10,
		MissingReadiness: 10,
		HighRestarts:     10,
		Pending:          10,
	}
	assert.EqualValues(t, 0, CalculateHealthScore(m))
}

func TestClassify_Boundaries(t *testing.T) {
	assert.Equal(t, "Healthy", Classify(80))
	assert.Equal(t, "Stable", Classify(79))
	assert.Equal(t, "Stable", Classify(60))
	assert.Equal(t, "Degraded", Classify(59))
	assert.Equal(t, "Degraded", Classify(40))
	assert.Equal(t, "Critical", Classify(39))
	assert.Equal(t, "Critical", Classify(0))
	assert.Equal(t, "Healthy", Classify(100))
}

func TestCalculateHealthScoreWithSeverity_AllLowMatchesUnweighted(t *testing.T) {
	low := policy.SeverityLow
	overrides := &policy.SeverityOverrides{
		LatestTag:        &low,
		MissingLiveness:  &low,
		MissingReadiness: &low,
		HighRestarts:     &low,
		Pending:          &low,
	}
	m := policy.Metrics{TotalPods: 5, LatestTag: 2, MissingLiveness: 1, Pending: 1}
	assert.Equal(t, CalculateHealthScore(m), CalculateHealthScoreWithSeverity(m, overrides))
}

func TestMetricsAddSubtractIsIdentity(t *testing.T) {
	base := policy.Metrics{TotalPods: 3, LatestTag: 1, HighRestarts: 2}
	delta := policy.Metrics{TotalPods: 1, LatestTag: 1, MissingReadiness: 1}

	got := base
	got.Add(delta)
	got.Subtract(delta)
	assert.Equal(t, base, got)
}

func TestMetricsSubtractSaturates(t *testing.T) {
	m := policy.Metrics{TotalPods: 1}
	m.Subtract(policy.Metrics{TotalPods: 5})
	assert.EqualValues(t, 0, m.TotalPods)
}

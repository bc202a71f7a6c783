package multicluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func evalFor(score, pods uint32) ClusterEvaluation {
	return ClusterEvaluation{HealthScore: score, TotalPods: pods}
}

// TestS6_WeightedAggregateAcrossThreeClusters matches the spec's three-
// cluster scenario: (95,50)/(60,20)/(40,10) pods -> aggregate 79/Stable.
func TestS6_WeightedAggregateAcrossThreeClusters(t *testing.T) {
	report := AggregateReport([]ClusterEvaluation{
		evalFor(95, 50),
		evalFor(60, 20),
		evalFor(40, 10),
	})
	assert.EqualValues(t, 79, report.AggregateScore)
	assert.Equal(t, "Stable", report.AggregateClassification)
}

func TestAggregateReport_NoClustersIsHealthy(t *testing.T) {
	report := AggregateReport(nil)
	assert.EqualValues(t, 100, report.AggregateScore)
	assert.Equal(t, "Healthy", report.AggregateClassification)
}

func TestAggregateReport_AllZeroPodClustersIsHealthy(t *testing.T) {
	report := AggregateReport([]ClusterEvaluation{
		evalFor(0, 0),
		evalFor(0, 0),
	})
	assert.EqualValues(t, 100, report.AggregateScore)
	assert.Equal(t, "Healthy", report.AggregateClassification)
}

func TestAggregateReport_SingleClusterPassesThroughItsOwnScore(t *testing.T) {
	report := AggregateReport([]ClusterEvaluation{evalFor(73, 100)})
	assert.EqualValues(t, 73, report.AggregateScore)
}

func TestAggregateReport_FailedClusterExcludedFromWeighting(t *testing.T) {
	report := AggregateReport([]ClusterEvaluation{
		evalFor(100, 100),
		{ContextName: "broken", Error: "failed to list pods: connection refused"},
	})
	assert.EqualValues(t, 100, report.AggregateScore)
}

func TestAggregateReport_TwoClusterWeightedAverage(t *testing.T) {
	// (100 score * 10 pods + 0 score * 10 pods) / 20 pods = 50
	report := AggregateReport([]ClusterEvaluation{
		evalFor(100, 10),
		evalFor(0, 10),
	})
	assert.EqualValues(t, 50, report.AggregateScore)
}

package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/types"
)

func TestVectorConfidence_EmptyScoresIsZero(t *testing.T) {
	assert.Equal(t, 0.0, VectorConfidence(nil))
}

func TestVectorConfidence_HigherScoresYieldHigherConfidence(t *testing.T) {
	low := VectorConfidence([]float64{0.1, 0.15, 0.2})
	high := VectorConfidence([]float64{0.8, 0.85, 0.9})
	assert.Greater(t, high, low)
}

func TestFusionConfidence_DegradedQualityIsPenalizedWhenVectorWasConfident(t *testing.T) {
	vectorScores := []float64{0.9, 0.88, 0.85}
	goodFusion := FusionConfidence([]float64{0.85, 0.8, 0.75}, vectorScores, 0.9)
	badFusion := FusionConfidence([]float64{0.3, 0.25, 0.2}, vectorScores, 0.9)
	assert.Greater(t, goodFusion, badFusion)
}

func TestFusionConfidence_NoQualityPenaltyWhenVectorWasNotConfident(t *testing.T) {
	// vectorConfidence below 0.7 should skip the qualityPreservation multiplier.
	conf := FusionConfidence([]float64{0.3, 0.3, 0.3}, []float64{0.9}, 0.5)
	assert.Greater(t, conf, 0.0)
}

func TestRerankerConfidence_NilWhenNoScores(t *testing.T) {
	assert.Nil(t, RerankerConfidence(nil))
}

func TestRerankerConfidence_ComputedWhenScoresPresent(t *testing.T) {
	got := RerankerConfidence([]float64{0.9, 0.8})
	assert.NotNil(t, got)
	assert.Greater(t, *got, 0.0)
}

func TestCheckDegradation_FiresOnlyAboveThreshold(t *testing.T) {
	alert := CheckDegradation("vector->fusion", 0.9, 0.3, DegradationThreshold)
	if assert.NotNil(t, alert) {
		assert.InDelta(t, (0.9-0.3)/0.9, alert.Severity, 1e-9)
	}

	noAlert := CheckDegradation("vector->fusion", 0.9, 0.8, DegradationThreshold)
	assert.Nil(t, noAlert)
}

func TestCheckDegradation_ZeroOrNegativePriorNeverFires(t *testing.T) {
	assert.Nil(t, CheckDegradation("x", 0, 0.5, DegradationThreshold))
}

func TestCheckDegradation_VectorFusionRequiresPriorAboveHalf(t *testing.T) {
	// vector.conf=0.4, fusion.conf=0.2: a 50% relative drop, but the vector
	// stage was never confident to begin with, so §8 forbids the alert.
	assert.Nil(t, CheckDegradation("vector->fusion", 0.4, 0.2, DegradationThreshold))

	// exactly at the boundary (prior == 0.5) still does not fire: the
	// invariant is a strict ">".
	assert.Nil(t, CheckDegradation("vector->fusion", 0.5, 0.2, DegradationThreshold))

	// same drop, just above the boundary: now it fires.
	alert := CheckDegradation("vector->fusion", 0.51, 0.2, DegradationThreshold)
	require.NotNil(t, alert)
	assert.InDelta(t, (0.51-0.2)/0.51, alert.Severity, 1e-9)
}

func TestCheckDegradation_FusionRerankerTransitionHasNoPriorGate(t *testing.T) {
	// §8's extra gate names only the vector->fusion transition; a
	// low-confidence fusion stage can still raise a fusion->reranker alert.
	alert := CheckDegradation("fusion->reranker", 0.4, 0.1, DegradationThreshold)
	assert.NotNil(t, alert)
}

func TestSelectStrategy_MaxConfidenceWhenUpstreamHighAndDegraded(t *testing.T) {
	alerts := []types.DegradationAlert{{Transition: "vector->fusion", Severity: 0.5}}
	strategy := SelectStrategy(map[string]float64{"vector": 0.9, "fusion": 0.3}, alerts)
	assert.Equal(t, types.StrategyMaxConfidence, strategy)
}

func TestSelectStrategy_ConservativeWhenAverageLow(t *testing.T) {
	strategy := SelectStrategy(map[string]float64{"vector": 0.1, "fusion": 0.1}, nil)
	assert.Equal(t, types.StrategyConservative, strategy)
}

func TestSelectStrategy_AdaptiveWeightedOtherwise(t *testing.T) {
	strategy := SelectStrategy(map[string]float64{"vector": 0.6, "fusion": 0.5}, nil)
	assert.Equal(t, types.StrategyAdaptiveWeighted, strategy)
}

func TestBlend_DegradedVectorToFusionUpgradesToMaxConfidence(t *testing.T) {
	v, f := 0.9, 0.3
	sc := StageConfidences{Vector: &v, Fusion: &f}
	result := Blend(sc, map[string]float64{"vector": 1, "fusion": 1})

	assert.Equal(t, types.StrategyMaxConfidence, result.Strategy)
	assert.GreaterOrEqual(t, result.Confidence, v)
	assert.NotEmpty(t, result.Alerts)
}

func TestBlend_MissingRerankerIsDroppedNotZeroFilled(t *testing.T) {
	v, f := 0.6, 0.55
	sc := StageConfidences{Vector: &v, Fusion: &f}
	result := Blend(sc, map[string]float64{"vector": 1, "fusion": 1, "reranker": 1})

	// average of 0.6 and 0.55 weighted 1:1, not diluted by an absent zero reranker term.
	assert.InDelta(t, (0.6+0.55)/2, result.Confidence, 1e-9)
}

func TestComputeAnswerability_MonotonicInMinConfidence(t *testing.T) {
	scores := []float64{0.9, 0.8, 0.85}
	sourceAware := types.SourceAwareResult{Confidence: 0.5}
	loose := types.Thresholds{MinConfidence: 0.3, MinTopScore: 0.1, MinMeanScore: 0.1, MaxStdDev: 10, MinResultCount: 1}
	strict := loose
	strict.MinConfidence = 0.9

	looseResult := ComputeAnswerability(scores, types.AlgorithmScores{}, sourceAware, loose)
	strictResult := ComputeAnswerability(scores, types.AlgorithmScores{}, sourceAware, strict)

	assert.True(t, looseResult.IsAnswerable)
	assert.False(t, strictResult.IsAnswerable)
}

func TestComputeAnswerability_ReasonCodesMatchFailureMode(t *testing.T) {
	sourceAware := types.SourceAwareResult{Confidence: 0.9}

	empty := ComputeAnswerability(nil, types.AlgorithmScores{}, sourceAware, types.Thresholds{MinResultCount: 1})
	assert.False(t, empty.IsAnswerable)
	assert.Equal(t, "NO_RELEVANT_DOCS", empty.Reasoning)

	highVariance := ComputeAnswerability([]float64{0.95, 0.05, 0.5}, types.AlgorithmScores{}, sourceAware,
		types.Thresholds{MaxStdDev: 0.01, MinResultCount: 1})
	assert.False(t, highVariance.IsAnswerable)
	assert.Equal(t, "AMBIGUOUS_QUERY", highVariance.Reasoning)
}

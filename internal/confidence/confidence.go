// Package confidence implements the source-aware confidence computation
// and answerability thresholds described in §4.7: a formula per pipeline
// stage, a degradation-alert check between stages, and one of three
// strategies for blending stage confidences into a single number. The
// statistics primitives are supplied by mathutil, grounded on the
// teacher's apoc/scoring/scoring.go consistency idea generalized into
// mathutil.Consistency.
package confidence

import (
	"github.com/orneryd/retrievalcore/internal/mathutil"
	"github.com/orneryd/retrievalcore/internal/types"
)

// DegradationThreshold is the default relative-drop trigger for an alert
// between adjacent stages, per §4.7.
const DegradationThreshold = 0.3

// MaxConfidenceThreshold gates the max_confidence strategy-selection rule.
const MaxConfidenceThreshold = 0.8

// AverageFloorForConservative gates the conservative strategy-selection rule.
const AverageFloorForConservative = 0.3

// QualityFloor bounds the fusion stage's qualityPreservation factor.
const QualityFloor = 0.1

// VectorConfidence implements 0.6*max + 0.3*mean + 0.1*consistency(stddev).
func VectorConfidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	stats := mathutil.Stats(scores)
	v := 0.6*stats.Max + 0.3*stats.Mean + 0.1*mathutil.Consistency(stats.StdDev)
	return mathutil.Clamp(v, 0, 1)
}

// KeywordConfidence implements 0.5*(max/2) + 0.3*mean + 0.2*consistency,
// acknowledging keyword-points scores run on a roughly [0,10] scale.
func KeywordConfidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	stats := mathutil.Stats(scores)
	v := 0.5*(stats.Max/2) + 0.3*stats.Mean + 0.2*mathutil.Consistency(stats.StdDev)
	return mathutil.Clamp(v, 0, 1)
}

// FusionConfidence implements the vector-shaped base confidence over fused
// scores, multiplied by a qualityPreservation factor (fusionMax/vectorMax,
// floored at QualityFloor) whenever the vector stage was already confident.
func FusionConfidence(fusedScores, vectorScores []float64, vectorConfidence float64) float64 {
	if len(fusedScores) == 0 {
		return 0
	}
	stats := mathutil.Stats(fusedScores)
	base := 0.6*stats.Max + 0.3*stats.Mean + 0.1*mathutil.Consistency(stats.StdDev)

	if vectorConfidence >= 0.7 && len(vectorScores) > 0 {
		vectorMax := mathutil.Stats(vectorScores).Max
		if vectorMax > 0 {
			quality := stats.Max / vectorMax
			if quality < QualityFloor {
				quality = QualityFloor
			}
			base *= quality
		}
	}
	return mathutil.Clamp(base, 0, 1)
}

// RerankerConfidence implements 0.5*max + 0.3*mean + 0.2*consistency; nil
// when the reranker did not run, so callers drop the term from the
// ensemble instead of zero-filling it (§9).
func RerankerConfidence(scores []float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	stats := mathutil.Stats(scores)
	v := mathutil.Clamp(0.5*stats.Max+0.3*stats.Mean+0.2*mathutil.Consistency(stats.StdDev), 0, 1)
	return &v
}

// vectorFusionMinPrior is §8's "Degradation alert correctness" gate: the
// vector->fusion alert fires iff vector.conf > 0.5 as well as the relative
// drop exceeding tau, so a vector stage that was never confident to begin
// with does not trip a degradation alert (and in turn the max_confidence
// strategy-selection rule in SelectStrategy).
const vectorFusionMinPrior = 0.5

// CheckDegradation compares adjacent stage confidences and reports an
// alert when the relative drop exceeds threshold. The vector->fusion
// transition additionally requires prior > vectorFusionMinPrior per §8.
func CheckDegradation(transition string, prior, current, threshold float64) *types.DegradationAlert {
	if prior <= 0 {
		return nil
	}
	if transition == "vector->fusion" && prior <= vectorFusionMinPrior {
		return nil
	}
	drop := (prior - current) / prior
	if drop <= threshold {
		return nil
	}
	return &types.DegradationAlert{
		Transition: transition,
		Prior:      prior,
		Current:    current,
		Severity:   drop,
	}
}

// StageConfidences bundles the per-stage confidences computed for one
// request, some of which may be absent (e.g. reranker did not run).
type StageConfidences struct {
	Vector   *float64
	Keyword  *float64
	Fusion   *float64
	Reranker *float64
}

// SelectStrategy implements §4.7's three-rule strategy selection: any
// upstream stage above MaxConfidenceThreshold with an active degradation
// alert wins max_confidence; an average below AverageFloorForConservative
// falls to conservative; otherwise adaptive_weighted.
func SelectStrategy(stageConf map[string]float64, alerts []types.DegradationAlert) types.ConfidenceStrategy {
	if len(alerts) > 0 {
		for _, v := range stageConf {
			if v >= MaxConfidenceThreshold {
				return types.StrategyMaxConfidence
			}
		}
	}
	if mathutil.Mean(valuesOf(stageConf)) < AverageFloorForConservative {
		return types.StrategyConservative
	}
	return types.StrategyAdaptiveWeighted
}

// Blend combines StageConfidences into one SourceAwareResult (strategy,
// per-stage confidences, degradation alerts, blended confidence),
// selecting the strategy via SelectStrategy.
func Blend(sc StageConfidences, weights map[string]float64) types.SourceAwareResult {
	named := map[string]*float64{
		"vector":   sc.Vector,
		"keyword":  sc.Keyword,
		"fusion":   sc.Fusion,
		"reranker": sc.Reranker,
	}

	stageConf := make(map[string]float64, len(named))
	for k, v := range named {
		if v != nil {
			stageConf[k] = *v
		}
	}

	var alerts []types.DegradationAlert
	if v, ok := stageConf["vector"]; ok {
		if f, ok := stageConf["fusion"]; ok {
			if alert := CheckDegradation("vector->fusion", v, f, DegradationThreshold); alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}
	if f, ok := stageConf["fusion"]; ok {
		if r, ok := stageConf["reranker"]; ok {
			if alert := CheckDegradation("fusion->reranker", f, r, DegradationThreshold); alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}

	strategy := SelectStrategy(stageConf, alerts)

	var confidence float64
	switch strategy {
	case types.StrategyMaxConfidence:
		confidence = mathutil.Max(valuesOf(stageConf))
	case types.StrategyConservative:
		confidence = minOf(valuesOf(stageConf))
	default: // adaptive_weighted
		confidence = weightedBlend(stageConf, adjustedWeights(weights, alerts))
	}

	return types.SourceAwareResult{
		Strategy:        strategy,
		StageConfidence: stageConf,
		Alerts:          alerts,
		Confidence:      mathutil.Clamp(confidence, 0, 1),
	}
}

// adjustedWeights up-weights the vector stage when fusion degraded it, per
// §4.7's adaptive_weighted description.
func adjustedWeights(weights map[string]float64, alerts []types.DegradationAlert) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	for _, a := range alerts {
		if a.Transition == "vector->fusion" {
			out["vector"] = weightOrDefault(weights, "vector") + 0.2
		}
	}
	return out
}

func weightOrDefault(weights map[string]float64, key string) float64 {
	if w, ok := weights[key]; ok {
		return w
	}
	return 1.0
}

func valuesOf(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func minOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// weightedBlend renormalizes weights across present stages only, per the
// §9 decision on an absent reranker: the term is dropped, not zero-filled.
func weightedBlend(stageConf map[string]float64, weights map[string]float64) float64 {
	var num, den float64
	for k, v := range stageConf {
		w := weightOrDefault(weights, k)
		num += v * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// ComputeAnswerability derives the final AnswerabilityScore from a score
// distribution and blended confidence, applying the tenant's Thresholds.
func ComputeAnswerability(scores []float64, algo types.AlgorithmScores, sourceAware types.SourceAwareResult, thresholds types.Thresholds) types.AnswerabilityScore {
	stats := mathutil.Stats(scores)

	answerable := sourceAware.Confidence >= thresholds.MinConfidence &&
		stats.Max >= thresholds.MinTopScore &&
		stats.Mean >= thresholds.MinMeanScore &&
		stats.StdDev <= thresholds.MaxStdDev &&
		stats.Count >= thresholds.MinResultCount

	reasoning := "meets thresholds"
	if !answerable {
		reasoning = explainFailure(stats, sourceAware.Confidence, thresholds)
	}

	return types.AnswerabilityScore{
		Confidence:      sourceAware.Confidence,
		ScoreStats:      stats,
		AlgorithmScores: algo,
		SourceAware:     sourceAware,
		IsAnswerable:    answerable,
		Reasoning:       reasoning,
	}
}

func explainFailure(stats types.ScoreStats, confidence float64, t types.Thresholds) string {
	switch {
	case stats.Count < t.MinResultCount:
		return "NO_RELEVANT_DOCS"
	case stats.StdDev > t.MaxStdDev:
		return "AMBIGUOUS_QUERY"
	case confidence < t.MinConfidence, stats.Max < t.MinTopScore, stats.Mean < t.MinMeanScore:
		return "LOW_CONFIDENCE"
	default:
		return "LOW_CONFIDENCE"
	}
}

// Package guardrail implements the L3 answerability guardrail (§4.7):
// per-stage confidence with degradation alerts, the three-way strategy
// selection and threshold decision already built in internal/confidence,
// an algorithm-score ensemble for the diagnostic record, the admin-bypass
// rule, and the IDK-response generator. Grounded on the teacher's
// truncate helper in pkg/search/search.go for excerpting IDK suggestions.
package guardrail

import (
	"context"
	"fmt"

	"github.com/orneryd/retrievalcore/internal/auditlog"
	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/confidence"
	"github.com/orneryd/retrievalcore/internal/mathutil"
	"github.com/orneryd/retrievalcore/internal/types"
)

// Retriever is the narrow interface the guardrail invokes; satisfied by
// *orchestrator.Hybrid and *orchestrator.SectionAware alike, so the
// guardrail never imports the orchestrator package directly.
type Retriever interface {
	Retrieve(ctx context.Context, collection string, req types.RetrieveRequest, principal types.Principal, tenantCfg types.TenantConfig) (types.RetrieveResult, error)
}

// DefaultMaxSuggestions and DefaultSuggestionThreshold are the §4.7 IDK
// excerpt bounds; a tenant without an explicit override uses these.
const (
	DefaultMaxSuggestions      = 3
	DefaultSuggestionThreshold = 0.3
	excerptLen                 = 160
)

// Service is the L3 guardrail service (§2's "Guardrail service" row): it
// invokes retrieval, computes answerability, and produces either the
// ranked results or a structured IDK refusal.
type Service struct {
	Retriever           Retriever
	Audit               capability.AuditSink
	MaxSuggestions      int
	SuggestionThreshold float64
}

func (s *Service) maxSuggestions() int {
	if s.MaxSuggestions > 0 {
		return s.MaxSuggestions
	}
	return DefaultMaxSuggestions
}

func (s *Service) suggestionThreshold() float64 {
	if s.SuggestionThreshold > 0 {
		return s.SuggestionThreshold
	}
	return DefaultSuggestionThreshold
}

// RetrieveGuarded implements the §6 capability of the same name: it runs
// retrieval, then gates the result behind the tenant's GuardrailConfig,
// returning either {answerable:true, results} or {answerable:false, idk}.
func (s *Service) RetrieveGuarded(ctx context.Context, collection string, req types.RetrieveRequest, principal types.Principal, tenantCfg types.TenantConfig) (types.RetrieveGuardedResult, error) {
	result, err := s.Retriever.Retrieve(ctx, collection, req, principal, tenantCfg)
	if err != nil {
		return types.RetrieveGuardedResult{}, err
	}

	cfg := tenantCfg.Guardrail

	if cfg.BypassEnabled && principal.IsAdmin() {
		decision := types.GuardrailDecision{
			Answerable: true,
			Bypassed:   true,
			Score:      types.AnswerabilityScore{Confidence: 1.0, IsAnswerable: true, Reasoning: "bypassed: admin principal"},
		}
		s.audit(principal.Tenant, decision)
		return types.RetrieveGuardedResult{Answerable: true, Results: result.FinalResults, Decision: decision, Metrics: result.Metrics}, nil
	}

	score := s.computeAnswerability(result, cfg.Threshold)

	if !cfg.Enabled {
		decision := types.GuardrailDecision{Answerable: true, Score: score}
		s.audit(principal.Tenant, decision)
		return types.RetrieveGuardedResult{Answerable: true, Results: result.FinalResults, Decision: decision, Metrics: result.Metrics}, nil
	}

	decision := types.GuardrailDecision{Answerable: score.IsAnswerable, Score: score}
	s.audit(principal.Tenant, decision)

	if score.IsAnswerable {
		return types.RetrieveGuardedResult{Answerable: true, Results: result.FinalResults, Decision: decision, Metrics: result.Metrics}, nil
	}

	idk := s.buildIDK(score.Reasoning, result.FinalResults, cfg)
	return types.RetrieveGuardedResult{Answerable: false, IDK: &idk, Decision: decision, Metrics: result.Metrics}, nil
}

func (s *Service) audit(tenantID string, decision types.GuardrailDecision) {
	if s.Audit == nil {
		return
	}
	s.Audit.Info("guardrail_decision", auditlog.Fields(auditlog.EventGuardrailDecision, tenantID, "", map[string]any{
		"answerable": decision.Answerable, "bypassed": decision.Bypassed,
		"confidence": decision.Score.Confidence, "reasoning": decision.Score.Reasoning,
	}))
	for _, alert := range decision.Score.SourceAware.Alerts {
		s.Audit.Info("degradation_alert", auditlog.Fields(auditlog.EventDegradationAlert, tenantID, "", map[string]any{
			"transition": alert.Transition, "severity": alert.Severity,
		}))
	}
}

// computeAnswerability builds the per-stage StageConfidences from the raw
// retrieval result, blends them (§4.7's strategy selection/degradation
// alerts), derives the diagnostic AlgorithmScores ensemble, and runs the
// threshold decision over the final presented score distribution.
func (s *Service) computeAnswerability(result types.RetrieveResult, thresholds types.Thresholds) types.AnswerabilityScore {
	vectorScores := rawScores(result.VectorResults)
	keywordScores := rawScores(result.KeywordResults)
	fusionScores := fusionScoresOf(result.FusionResults)
	rerankerScores := rerankerScoresOf(result.RerankerResults)

	var vc, kc *float64
	if v := confidence.VectorConfidence(vectorScores); len(vectorScores) > 0 {
		vc = &v
	}
	if v := confidence.KeywordConfidence(keywordScores); len(keywordScores) > 0 {
		kc = &v
	}
	var fc *float64
	if len(fusionScores) > 0 {
		vConf := 0.0
		if vc != nil {
			vConf = *vc
		}
		v := confidence.FusionConfidence(fusionScores, vectorScores, vConf)
		fc = &v
	}
	rc := confidence.RerankerConfidence(rerankerScores)

	sourceAware := confidence.Blend(confidence.StageConfidences{Vector: vc, Keyword: kc, Fusion: fc, Reranker: rc}, stageWeights())

	finalScores := presentedScores(result.FinalResults)
	algo := buildAlgorithmScores(finalScores, thresholds, rc)

	return confidence.ComputeAnswerability(finalScores, algo, sourceAware, thresholds)
}

// stageWeights are the equal per-stage default weights feeding
// confidence.Blend's adaptive_weighted case; §9 leaves the exact ensemble
// weighting for a missing reranker unspecified, so this module gives every
// present stage equal standing and lets adjustedWeights up-weight vector on
// a detected vector->fusion degradation, per §4.7's "adaptive_weighted"
// description.
func stageWeights() map[string]float64 {
	return map[string]float64{"vector": 1, "keyword": 1, "fusion": 1, "reranker": 1}
}

// buildAlgorithmScores derives the four AlgorithmScores.{statistical,
// threshold, mlFeatures, rerankerConfidence} diagnostic sub-scores. These
// do not feed the threshold decision (sourceAware.Confidence alone does,
// per internal/confidence.ComputeAnswerability); they are carried for
// operator-facing diagnostics, matching the "algorithmScores" field's role
// alongside sourceAware in §3's AnswerabilityScore data model.
func buildAlgorithmScores(finalScores []float64, thresholds types.Thresholds, rc *float64) types.AlgorithmScores {
	stats := mathutil.Stats(finalScores)

	statistical := confidence.VectorConfidence(finalScores)

	thresholdScore := 0.0
	if stats.Max >= thresholds.MinTopScore && stats.Mean >= thresholds.MinMeanScore {
		thresholdScore = 1.0
	}

	richness := float64(stats.Count) / float64(3*maxInt(thresholds.MinResultCount, 1))
	mlFeatures := mathutil.Clamp(richness, 0, 1)

	return types.AlgorithmScores{Statistical: statistical, Threshold: thresholdScore, MLFeatures: mlFeatures, RerankerConfidence: rc}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func rawScores(candidates []types.Candidate) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = float64(c.Score)
	}
	return out
}

func fusionScoresOf(candidates []types.Candidate) []float64 {
	out := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if c.FusionScore != nil {
			out = append(out, *c.FusionScore)
		}
	}
	return out
}

func rerankerScoresOf(candidates []types.Candidate) []float64 {
	out := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		if c.RerankerScore != nil {
			out = append(out, *c.RerankerScore)
		}
	}
	return out
}

func presentedScores(candidates []types.Candidate) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		if c.RerankerScore != nil {
			out[i] = *c.RerankerScore
		} else if c.FusionScore != nil {
			out[i] = *c.FusionScore
		} else {
			out[i] = float64(c.Score)
		}
	}
	return out
}

// buildIDK selects a template by reasonCode (§4.7's IDK response rule) and
// attaches up to maxSuggestions short excerpts from candidates clearing
// the suggestion threshold.
func (s *Service) buildIDK(reasonCode string, candidates []types.Candidate, cfg types.GuardrailConfig) types.IDKResponse {
	message, ok := cfg.IDKTemplates[reasonCode]
	if !ok {
		message = fmt.Sprintf("I don't have enough information to answer that (%s).", reasonCode)
	}

	threshold := s.suggestionThreshold()
	max := s.maxSuggestions()

	suggestions := make([]string, 0, max)
	for _, c := range presentedCandidates(candidates) {
		if len(suggestions) >= max {
			break
		}
		if c.score < threshold {
			continue
		}
		suggestions = append(suggestions, truncate(c.content, excerptLen))
	}

	return types.IDKResponse{ReasonCode: reasonCode, Message: message, Suggestions: suggestions}
}

type scoredExcerpt struct {
	content string
	score   float64
}

func presentedCandidates(candidates []types.Candidate) []scoredExcerpt {
	out := make([]scoredExcerpt, len(candidates))
	for i, c := range candidates {
		var score float64
		switch {
		case c.RerankerScore != nil:
			score = *c.RerankerScore
		case c.FusionScore != nil:
			score = *c.FusionScore
		default:
			score = float64(c.Score)
		}
		out[i] = scoredExcerpt{content: c.Content, score: score}
	}
	return out
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		if maxLen <= 0 {
			return ""
		}
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

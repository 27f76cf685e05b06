// Package orchestrator implements the L2 orchestration layer (§2): the
// hybrid retrieval orchestrator (§4.1) and its section-aware wrapper
// (§4.6's completion step, §2's "Section-aware orchestrator" row).
// Grounded on the teacher's Service.Search/rrfHybridSearch in
// pkg/search/search.go, generalized from an in-process dual index to the
// capability.VectorSearch/LexicalStore boundary, and from the teacher's
// sequential "parallel" steps to a real golang.org/x/sync/errgroup fan-out
// (§4.9 domain stack).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/retrievalcore/internal/auditlog"
	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/fusion"
	"github.com/orneryd/retrievalcore/internal/intent"
	"github.com/orneryd/retrievalcore/internal/keywordpoints"
	"github.com/orneryd/retrievalcore/internal/lexical"
	"github.com/orneryd/retrievalcore/internal/logging"
	"github.com/orneryd/retrievalcore/internal/mmr"
	"github.com/orneryd/retrievalcore/internal/normalize"
	"github.com/orneryd/retrievalcore/internal/rbac"
	"github.com/orneryd/retrievalcore/internal/telemetry"
	"github.com/orneryd/retrievalcore/internal/types"
)

// ErrUnauthorized is returned when the principal fails the narrow
// structural validation in §4.1's Preconditions (tenant != "" && id != "").
var ErrUnauthorized = errors.New("orchestrator: unauthorized principal")

// Timeouts bundles the per-stage timeouts from §6's Tunables table.
type Timeouts struct {
	Embedding time.Duration
	Vector    time.Duration
	Lexical   time.Duration
	Reranker  time.Duration
	Overall   time.Duration
}

// DefaultTimeouts returns the §6 documented defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Embedding: 5 * time.Second,
		Vector:    5 * time.Second,
		Lexical:   3 * time.Second,
		Reranker:  10 * time.Second,
		Overall:   45 * time.Second,
	}
}

// RerankerBand bounds the final-band reranker call, §6.
type RerankerBand struct {
	TopNIn  int
	TopNOut int
}

// DefaultRerankerBand returns the §6 documented defaults.
func DefaultRerankerBand() RerankerBand { return RerankerBand{TopNIn: 20, TopNOut: 8} }

// domainlessParams overrides CoverageAlpha, ProximityBeta and
// ExclusivityGamma with the §6 "Domainless multipliers" values for the
// keyword-points rescorer when domainless ranking is enabled (step 10).
// keywordpoints.Params has no field-boost parameter, so fieldBoostDelta is
// not applied; every other parameter keeps the keyword-points default.
func domainlessParams(base keywordpoints.Params) keywordpoints.Params {
	p := base
	p.CoverageAlpha = 0.50
	p.ProximityBeta = 0.30
	p.ExclusivityGamma = 0.10
	return p
}

// Options parameterizes one Hybrid instance with the deployment-level
// feature flags §4.1 describes as enabled/disabled rather than per-tenant
// (retrieval-k adaptivity, domainless ranking, MMR).
type Options struct {
	RetrievalKBase       int
	AdaptiveRetrievalK   bool
	DomainlessRanking    bool
	KeywordPointsEnabled bool
	MMREnabled           bool
	MMRLambda            float64
	Normalization        normalize.Method
	KeywordParams        keywordpoints.Params
	RerankerBand         RerankerBand
}

// DefaultOptions returns the §6 documented defaults.
func DefaultOptions() Options {
	return Options{
		RetrievalKBase:       12,
		AdaptiveRetrievalK:   true,
		DomainlessRanking:    false,
		KeywordPointsEnabled: true,
		MMREnabled:           false,
		MMRLambda:            0.5,
		Normalization:        normalize.MinMax,
		KeywordParams:        keywordpoints.DefaultParams(),
		RerankerBand:         DefaultRerankerBand(),
	}
}

// CorpusStatsProvider resolves the tenant-scoped corpus statistics the
// keyword-points rescorer needs (§4.5's Inputs paragraph). Implementations
// cache with a TTL per §3's Lifecycle; the core treats the result as
// read-only within a request.
type CorpusStatsProvider interface {
	Stats(tenantID string) keywordpoints.CorpusStats
}

// Hybrid is the L2 hybrid retrieval orchestrator (§4.1).
type Hybrid struct {
	Vector   capability.VectorSearch
	Lexical  capability.LexicalStore
	Embedder capability.Embedder
	Reranker capability.Reranker
	Audit    capability.AuditSink
	Corpus   CorpusStatsProvider

	Log      *logging.Logger
	Metrics  *telemetry.Instruments
	Timeouts Timeouts
	Opts     Options
}

func validatePrincipal(p types.Principal) error {
	if p.Tenant == "" || p.ID == "" {
		return ErrUnauthorized
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (h *Hybrid) logFallback(stage string, err error) {
	if h.Log != nil {
		h.Log.Errorf("%s stage fell back to empty result: %v", stage, err)
	}
	if h.Audit != nil {
		h.Audit.Error("stage_fallback", map[string]any{"stage": stage, "error": err.Error()})
	}
}

func (h *Hybrid) logError(stage string, err error) {
	if h.Log != nil {
		h.Log.Errorf("%s failed: %v", stage, err)
	}
}

func (h *Hybrid) recordStage(ctx context.Context, stage string, start time.Time, timedOut, fellBack bool) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RecordStage(ctx, stage, time.Since(start).Seconds(), timedOut, fellBack)
}

// Retrieve implements §4.1's Operation/Algorithm end to end: resolve
// config, detect intent, build the RBAC predicate, embed, fan out to
// vector+lexical search, dedup, fuse, rescore, rerank-or-diversify, then
// slice/filter/rank.
func (h *Hybrid) Retrieve(ctx context.Context, collection string, req types.RetrieveRequest, principal types.Principal, tenantCfg types.TenantConfig) (types.RetrieveResult, error) {
	if err := validatePrincipal(principal); err != nil {
		return types.RetrieveResult{}, err
	}

	overallCtx := ctx
	if h.Timeouts.Overall > 0 {
		var cancel context.CancelFunc
		overallCtx, cancel = context.WithTimeout(ctx, h.Timeouts.Overall)
		defer cancel()
	}

	sc := tenantCfg.Search
	vectorWeight, keywordWeight := sc.VectorWeight, sc.KeywordWeight
	if req.VectorWeight != nil {
		vectorWeight = *req.VectorWeight
	}
	if req.KeywordWeight != nil {
		keywordWeight = *req.KeywordWeight
	}
	rrfK := float64(sc.RRFK)
	if req.RRFK != nil {
		rrfK = float64(*req.RRFK)
	}
	keywordEnabled := sc.KeywordEnabled
	if req.EnableKeywordSearch != nil {
		keywordEnabled = *req.EnableKeywordSearch
	}

	limit := req.Limit
	if limit < 1 {
		limit = 1
	}

	ir := intent.Detect(req.Query, nil, intent.Defaults{
		Strategy: fusion.WeightedAverage, VectorWeight: vectorWeight,
		KeywordWeight: keywordWeight, RetrievalK: h.Opts.RetrievalKBase,
	})

	metrics := types.Metrics{TemporalBoost: ir.Temporal}

	rbacMust := rbac.MustClauses(principal)
	vectorFilter := rbac.VectorFilter(principal)
	userFilter := make([]capability.MustClause, 0, len(req.Filter))
	for k, v := range req.Filter {
		vectorFilter[k] = v
		userFilter = append(userFilter, capability.MustClause{Field: k, Value: v})
	}

	// Step 4: embed. Embedding failure is fatal (§4.1/§7 UpstreamFailure).
	embedCtx, embedCancel := withTimeout(overallCtx, h.Timeouts.Embedding)
	queryText := req.Query
	if ir.Expansion != "" {
		queryText = ir.Expansion
	}
	embedStart := time.Now()
	qVector, err := h.Embedder.Embed(embedCtx, queryText)
	embedCancel()
	h.recordStage(ctx, "embedding", embedStart, false, false)
	if err != nil {
		h.logError("embedding", err)
		return types.RetrieveResult{}, fmt.Errorf("orchestrator: embedding: %w", err)
	}

	k := limit
	if h.Opts.AdaptiveRetrievalK || h.Opts.DomainlessRanking {
		if h.Opts.RetrievalKBase > k {
			k = h.Opts.RetrievalKBase
		}
		if ir.RetrievalK > k {
			k = ir.RetrievalK
		}
	}

	var vectorResults, keywordResults []types.Candidate

	g, gctx := errgroup.WithContext(overallCtx)
	g.Go(func() error {
		start := time.Now()
		vctx, cancel := withTimeout(gctx, h.Timeouts.Vector)
		defer cancel()
		points, err := h.Vector.Search(vctx, collection, qVector, k, vectorFilter)
		timedOut := errors.Is(vctx.Err(), context.DeadlineExceeded)
		if err != nil {
			metrics.VectorTimedOut = timedOut
			h.logFallback("vector", err)
			h.recordStage(ctx, "vector", start, timedOut, true)
			return nil
		}
		vectorResults = candidatesFromPoints(points, types.SearchTypeVectorOnly)
		h.recordStage(ctx, "vector", start, false, false)
		return nil
	})
	if keywordEnabled {
		g.Go(func() error {
			start := time.Now()
			lctx, cancel := withTimeout(gctx, h.Timeouts.Lexical)
			defer cancel()
			opts := lexical.Options{HighValueTokens: sc.HighValueTokens, DomainlessRanking: h.Opts.DomainlessRanking}
			cands, err := lexical.Search(lctx, h.Lexical, collection, req.Query, k, rbacMust, userFilter, opts)
			timedOut := errors.Is(lctx.Err(), context.DeadlineExceeded)
			if err != nil {
				metrics.LexicalTimedOut = timedOut
				h.logFallback("lexical", err)
				h.recordStage(ctx, "lexical", start, timedOut, true)
				return nil
			}
			keywordResults = cands
			h.recordStage(ctx, "lexical", start, false, false)
			return nil
		})
	}
	_ = g.Wait() // every sub-task absorbs its own error into a stage fallback (§7)

	metrics.VectorCount = len(vectorResults)
	metrics.KeywordCount = len(keywordResults)

	vectorResults = dedupByDoc(vectorResults, ir.DedupPerDoc)
	keywordResults = dedupByDoc(keywordResults, ir.DedupPerDoc)

	// Re-evaluate intent now the top vector score is known (§4.1 step 2).
	if len(vectorResults) > 0 {
		tv := float64(vectorResults[0].Score)
		ir = intent.Detect(req.Query, &tv, intent.Defaults{
			Strategy: ir.Strategy, VectorWeight: vectorWeight,
			KeywordWeight: keywordWeight, RetrievalK: h.Opts.RetrievalKBase,
		})
	}

	fusionResult := fusion.Fuse(toFusionInputs(vectorResults), toFusionInputs(keywordResults), fusion.Options{
		Strategy: ir.Strategy, Normalization: h.Opts.Normalization,
		VectorWeight: vectorWeight, KeywordWeight: keywordWeight, K: rrfK,
	})
	metrics.FusionCount = len(fusionResult.Fused)
	metrics.StrategyOverridden = fusionResult.StrategyOverridden
	metrics.EffectiveStrategy = string(fusionResult.EffectiveStrategy)

	byID := indexCandidates(vectorResults, keywordResults)
	fused := make([]types.Candidate, 0, len(fusionResult.Fused))
	trace := make([]types.FusionTraceEntry, 0, len(fusionResult.Fused))
	for _, comp := range fusionResult.Fused {
		c, ok := byID[comp.ID]
		if !ok {
			continue
		}
		c = c.WithFusionScore(comp.FusedScore)
		c.SearchType = types.SearchTypeHybrid
		fused = append(fused, c)
		trace = append(trace, types.FusionTraceEntry{
			ID: comp.ID, VectorScore: comp.VectorScore, KeywordScore: comp.KeywordScore,
			FusedScore: comp.FusedScore, StrategyUsed: string(fusionResult.EffectiveStrategy),
			Overridden: fusionResult.StrategyOverridden,
		})
	}
	fusionSnapshot := append([]types.Candidate(nil), fused...)

	// Step 9: keyword-points rescoring.
	if h.Opts.KeywordPointsEnabled && h.Corpus != nil && len(fused) > 0 {
		stats := h.Corpus.Stats(principal.Tenant)
		weights := keywordpoints.BuildTermWeights(lexical.Tokenize(req.Query), stats, h.Opts.KeywordParams, false)
		fused = keywordpoints.Rescore(fused, weights, stats, h.Opts.KeywordParams)
	}

	// Step 10: domainless proximity/coverage/exclusivity multipliers reuse
	// the keyword-points machinery at the domainless parameter overrides
	// (no separate field-boost multiplier is applied).
	if h.Opts.DomainlessRanking && h.Corpus != nil && len(fused) > 0 {
		stats := h.Corpus.Stats(principal.Tenant)
		params := domainlessParams(h.Opts.KeywordParams)
		weights := keywordpoints.BuildTermWeights(lexical.Tokenize(req.Query), stats, params, false)
		fused = keywordpoints.Rescore(fused, weights, stats, params)
	}

	sortByFusionScore(fused)

	// Step 11: reranker, else MMR diversity, else passthrough.
	var rerankerResults []types.Candidate
	if sc.RerankerEnabled && h.Reranker != nil {
		fused, rerankerResults = h.rerankBand(overallCtx, req.Query, fused, sc.RerankerTopK, &metrics)
	} else if h.Opts.MMREnabled {
		expanded := fused
		if want := 2 * limit; want < len(expanded) {
			expanded = expanded[:want]
		}
		fused = mmr.Select(expanded, limit, h.Opts.MMRLambda)
	}

	// Step 12: slice, RBAC filter, language relevance, contiguous ranks.
	if limit < len(fused) {
		fused = fused[:limit]
	}
	fused = rbac.Filter(principal, fused)
	fused = applyLanguageRelevance(fused, principal)
	for i := range fused {
		fused[i] = fused[i].WithRank(i + 1)
		if ir.Temporal && intent.MatchesTemporal(fused[i].Content) {
			fused[i].TemporalBoost = true
		}
	}

	result := types.RetrieveResult{
		FinalResults:    fused,
		VectorResults:   vectorResults,
		KeywordResults:  keywordResults,
		FusionResults:   fusionSnapshot,
		RerankerResults: rerankerResults,
		Metrics:         metrics,
		FusionTrace:     trace,
	}

	if h.Audit != nil {
		h.Audit.Info("retrieve", auditlog.Fields(auditlog.EventRetrieve, principal.Tenant, "", map[string]any{
			"query": req.Query, "resultCount": len(fused), "strategy": metrics.EffectiveStrategy,
		}))
	}

	return result, nil
}

// rerankBand sends the top band.TopNIn candidates to the reranker and
// splices its authoritative-order output back in front of the untouched
// remainder (§4.1 step 11). On timeout/failure it falls back silently to
// the pre-rerank list and marks rerankingEnabled=false (§4.1 Failure
// semantics).
func (h *Hybrid) rerankBand(ctx context.Context, query string, fused []types.Candidate, topK int, metrics *types.Metrics) ([]types.Candidate, []types.Candidate) {
	band := h.Opts.RerankerBand
	topN := band.TopNIn
	if topN > len(fused) {
		topN = len(fused)
	}
	if topN == 0 {
		return fused, nil
	}
	head := fused[:topN]
	tail := fused[topN:]

	rerankCandidates := make([]capability.RerankCandidate, len(head))
	for i, c := range head {
		rerankCandidates[i] = capability.RerankCandidate{ID: c.ID, Content: c.Content, Payload: payloadMap(c.Payload), OriginalScore: scoreOf(c)}
	}

	want := topK
	if want <= 0 || want > band.TopNOut {
		want = band.TopNOut
	}

	start := time.Now()
	rctx, cancel := withTimeout(ctx, h.Timeouts.Reranker)
	reranked, err := h.Reranker.Rerank(rctx, query, rerankCandidates, want)
	timedOut := errors.Is(rctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		metrics.RerankerFallback = true
		metrics.RerankerTimedOut = timedOut
		h.logFallback("reranker", err)
		h.recordStage(ctx, "reranker", start, timedOut, true)
		return fused, nil
	}
	h.recordStage(ctx, "reranker", start, false, false)

	byID := make(map[string]types.Candidate, len(head))
	for _, c := range head {
		byID[c.ID] = c
	}
	used := make(map[string]bool, len(reranked))
	rerankerResults := make([]types.Candidate, 0, len(reranked))
	for _, r := range reranked {
		c, ok := byID[r.ID]
		if !ok {
			continue
		}
		c = c.WithRerankerScore(r.RerankerScore).WithFusionScore(r.RerankerScore)
		rerankerResults = append(rerankerResults, c)
		used[r.ID] = true
	}

	remainder := make([]types.Candidate, 0, len(head)-len(used)+len(tail))
	for _, c := range head {
		if !used[c.ID] {
			remainder = append(remainder, c)
		}
	}
	remainder = append(remainder, tail...)

	metrics.RerankingEnabled = true
	return append(append([]types.Candidate{}, rerankerResults...), remainder...), rerankerResults
}

func payloadMap(m types.DocumentMetadata) map[string]any {
	return map[string]any{
		"tenant": m.Tenant, "docId": m.DocID, "acl": m.ACL, "lang": m.Lang,
		"sectionPath": m.SectionPath, "title": m.Title, "header": m.Header, "path": m.Path,
	}
}

func scoreOf(c types.Candidate) float64 {
	if c.FusionScore != nil {
		return *c.FusionScore
	}
	return float64(c.Score)
}

func toFusionInputs(candidates []types.Candidate) []types.FusionInput {
	out := make([]types.FusionInput, len(candidates))
	for i, c := range candidates {
		out[i] = types.FusionInput{ID: c.ID, Score: scoreOf(c), Rank: i + 1, DocID: c.Payload.DocID}
	}
	return out
}

func indexCandidates(lists ...[]types.Candidate) map[string]types.Candidate {
	out := make(map[string]types.Candidate)
	for _, list := range lists {
		for _, c := range list {
			if _, ok := out[c.ID]; !ok {
				out[c.ID] = c
			}
		}
	}
	return out
}

func sortByFusionScore(candidates []types.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool { return scoreOf(candidates[i]) > scoreOf(candidates[j]) })
}

// languageMatchBoost/languageMismatchPenalty implement §4.1 step 12's
// "language relevance multiplier": a principal whose declared language
// matches the candidate's gets a small boost, a declared mismatch a small
// penalty; spec leaves the exact factors unspecified (§9), so this module
// picks the teacher's scale of subtle re-weighting (its domainless
// multipliers run ±0.1-0.3) rather than a hard filter, recorded in
// DESIGN.md.
const (
	languageMatchBoost     = 1.1
	languageMismatchPenalty = 0.9
)

func applyLanguageRelevance(candidates []types.Candidate, principal types.Principal) []types.Candidate {
	if principal.Language == "" {
		return candidates
	}
	out := make([]types.Candidate, len(candidates))
	for i, c := range candidates {
		if c.Payload.Lang == "" {
			out[i] = c
			continue
		}
		mult := languageMismatchPenalty
		if c.Payload.Lang == principal.Language {
			mult = languageMatchBoost
		}
		out[i] = c.WithFusionScore(scoreOf(c) * mult)
	}
	return out
}

package guardrail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/types"
)

type fakeRetriever struct {
	result types.RetrieveResult
	err    error
}

func (f fakeRetriever) Retrieve(_ context.Context, _ string, _ types.RetrieveRequest, _ types.Principal, _ types.TenantConfig) (types.RetrieveResult, error) {
	return f.result, f.err
}

func scored(id string, score float64) types.Candidate {
	c := types.Candidate{ID: id, Score: float32(score), Content: "excerpt for " + id}
	return c.WithFusionScore(score)
}

func tenantConfig(overrides func(*types.GuardrailConfig)) types.TenantConfig {
	cfg := types.DefaultGuardrailConfig()
	if overrides != nil {
		overrides(&cfg)
	}
	return types.TenantConfig{TenantID: "t1", Search: types.DefaultSearchConfig(), Guardrail: cfg}
}

func TestGuardrail_EmptyCorpusProducesNoRelevantDocsIDK(t *testing.T) {
	cfg := tenantConfig(func(g *types.GuardrailConfig) { g.Threshold.MinResultCount = 1 })
	svc := &Service{Retriever: fakeRetriever{result: types.RetrieveResult{}}}

	out, err := svc.RetrieveGuarded(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{ID: "u1", Tenant: "t1"}, cfg)
	require.NoError(t, err)
	require.False(t, out.Answerable)
	require.NotNil(t, out.IDK)
	assert.Equal(t, "NO_RELEVANT_DOCS", out.IDK.ReasonCode)
}

func TestGuardrail_AnswerableWhenThresholdsClear(t *testing.T) {
	cfg := tenantConfig(func(g *types.GuardrailConfig) {
		g.Threshold = types.Thresholds{MinConfidence: 0.1, MinTopScore: 0.1, MinMeanScore: 0.05, MaxStdDev: 10, MinResultCount: 1}
	})
	result := types.RetrieveResult{
		FinalResults:  []types.Candidate{scored("a", 0.9), scored("b", 0.85)},
		VectorResults: []types.Candidate{scored("a", 0.9), scored("b", 0.85)},
		FusionResults: []types.Candidate{scored("a", 0.9), scored("b", 0.85)},
	}
	svc := &Service{Retriever: fakeRetriever{result: result}}

	out, err := svc.RetrieveGuarded(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{ID: "u1", Tenant: "t1"}, cfg)
	require.NoError(t, err)
	assert.True(t, out.Answerable)
	assert.Len(t, out.Results, 2)
}

func TestGuardrail_AdminBypassAlwaysAnswerable(t *testing.T) {
	cfg := tenantConfig(func(g *types.GuardrailConfig) {
		g.BypassEnabled = true
		g.Threshold = types.Thresholds{MinConfidence: 0.99, MinTopScore: 0.99, MinMeanScore: 0.99, MaxStdDev: 0.0001, MinResultCount: 100}
	})
	svc := &Service{Retriever: fakeRetriever{result: types.RetrieveResult{FinalResults: []types.Candidate{scored("a", 0.1)}}}}

	out, err := svc.RetrieveGuarded(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{ID: "admin-1", Tenant: "t1", Groups: []string{"admin"}}, cfg)
	require.NoError(t, err)
	assert.True(t, out.Answerable)
	assert.True(t, out.Decision.Bypassed)
	assert.Equal(t, 1.0, out.Decision.Score.Confidence)
}

func TestGuardrail_HighVarianceProducesAmbiguousQueryIDK(t *testing.T) {
	cfg := tenantConfig(func(g *types.GuardrailConfig) {
		g.Threshold = types.Thresholds{MinConfidence: 0.01, MinTopScore: 0.01, MinMeanScore: 0.01, MaxStdDev: 0.05, MinResultCount: 1}
	})
	result := types.RetrieveResult{
		FinalResults: []types.Candidate{scored("a", 0.95), scored("b", 0.05), scored("c", 0.5)},
	}
	svc := &Service{Retriever: fakeRetriever{result: result}}

	out, err := svc.RetrieveGuarded(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{ID: "u1", Tenant: "t1"}, cfg)
	require.NoError(t, err)
	require.False(t, out.Answerable)
	assert.Equal(t, "AMBIGUOUS_QUERY", out.IDK.ReasonCode)
}

func TestGuardrail_IDKSuggestionsRespectMaxAndThreshold(t *testing.T) {
	cfg := tenantConfig(func(g *types.GuardrailConfig) { g.Threshold.MinResultCount = 100 })
	result := types.RetrieveResult{
		FinalResults: []types.Candidate{scored("a", 0.9), scored("b", 0.05), scored("c", 0.8)},
	}
	svc := &Service{Retriever: fakeRetriever{result: result}, MaxSuggestions: 1, SuggestionThreshold: 0.5}

	out, err := svc.RetrieveGuarded(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{ID: "u1", Tenant: "t1"}, cfg)
	require.NoError(t, err)
	require.False(t, out.Answerable)
	require.Len(t, out.IDK.Suggestions, 1)
}

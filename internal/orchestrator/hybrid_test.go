package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/types"
)

type fakeVector struct {
	points []capability.ScoredPoint
	err    error
}

func (f fakeVector) Search(_ context.Context, _ string, _ []float32, limit int, _ map[string]string) ([]capability.ScoredPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.points
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeLexical struct {
	rows []capability.ScrolledPoint
	err  error
}

func (f fakeLexical) Scroll(_ context.Context, _ string, _ capability.ScrollFilter, _ int) ([]capability.ScrolledPoint, error) {
	return f.rows, f.err
}

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return f.vec, nil }

type failingEmbedder struct{}

func (failingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embedder unavailable")
}

func newHybrid(vec capability.VectorSearch, lex capability.LexicalStore, emb capability.Embedder) *Hybrid {
	return &Hybrid{
		Vector:   vec,
		Lexical:  lex,
		Embedder: emb,
		Timeouts: DefaultTimeouts(),
		Opts:     DefaultOptions(),
	}
}

func tenantConfig() types.TenantConfig {
	return types.TenantConfig{TenantID: "t1", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
}

func doc(tenant, id, docID, acl string) map[string]any {
	return map[string]any{"tenant": tenant, "docId": docID, "acl": []string{acl}, "content": "doc " + id}
}

func TestHybrid_UnauthorizedPrincipal(t *testing.T) {
	h := newHybrid(fakeVector{}, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	_, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, types.Principal{}, tenantConfig())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHybrid_EmptyCorpus(t *testing.T) {
	h := newHybrid(fakeVector{}, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "hello", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	assert.Empty(t, result.FinalResults)
	assert.Equal(t, 0, result.Metrics.VectorCount)
	assert.Equal(t, 0, result.Metrics.KeywordCount)
}

func TestHybrid_EmbeddingFailureIsFatal(t *testing.T) {
	h := newHybrid(fakeVector{}, fakeLexical{}, failingEmbedder{})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	_, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "hello", Limit: 5}, principal, tenantConfig())
	require.Error(t, err)
}

func TestHybrid_HighConfidenceVectorShortcut(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.92, Payload: doc("t1", "a", "docA", "public")},
		{ID: "b", Score: 0.88, Payload: doc("t1", "b", "docB", "public")},
		{ID: "c", Score: 0.10, Payload: doc("t1", "c", "docC", "public")},
	}}
	lex := fakeLexical{rows: []capability.ScrolledPoint{
		{ID: "d", Payload: doc("t1", "d", "docD", "public")},
	}}
	h := newHybrid(vec, lex, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	req := types.RetrieveRequest{Query: "what is it", Limit: 5}
	result, err := h.Retrieve(context.Background(), "docs", req, principal, tenantConfig())
	require.NoError(t, err)
	require.NotEmpty(t, result.FinalResults)
	assert.Equal(t, "a", result.FinalResults[0].ID)
	assert.Equal(t, "max_confidence", result.Metrics.EffectiveStrategy)
}

func TestHybrid_RBACFiltersDeniedCandidates(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.5, Payload: doc("t1", "a", "docA", "groupX")},
		{ID: "b", Score: 0.4, Payload: doc("t1", "b", "docB", "public")},
	}}
	h := newHybrid(vec, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1", Groups: []string{"groupY"}}
	result, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	for _, c := range result.FinalResults {
		assert.NotEqual(t, "a", c.ID, "candidate denied by ACL must not be returned")
	}
}

func TestHybrid_RankContiguity(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.5, Payload: doc("t1", "a", "docA", "public")},
		{ID: "b", Score: 0.4, Payload: doc("t1", "b", "docB", "public")},
		{ID: "c", Score: 0.3, Payload: doc("t1", "c", "docC", "public")},
	}}
	h := newHybrid(vec, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	for i, c := range result.FinalResults {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestHybrid_TemporalBoostFlagsMatchingCandidatesOnly(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.5, Payload: map[string]any{"tenant": "t1", "docId": "docA", "acl": []string{"public"}, "content": "onboarding takes one hour to complete"}},
		{ID: "b", Score: 0.4, Payload: map[string]any{"tenant": "t1", "docId": "docB", "acl": []string{"public"}, "content": "unrelated pricing details"}},
	}}
	h := newHybrid(vec, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	req := types.RetrieveRequest{Query: "how long does onboarding take", Limit: 5}
	result, err := h.Retrieve(context.Background(), "docs", req, principal, tenantConfig())
	require.NoError(t, err)
	assert.True(t, result.Metrics.TemporalBoost)

	var flagged, unflagged int
	for _, c := range result.FinalResults {
		if c.ID == "a" {
			assert.True(t, c.TemporalBoost, "candidate matching the temporal keyword set must be flagged")
			flagged++
		} else {
			assert.False(t, c.TemporalBoost, "candidate not matching the temporal keyword set must not be flagged")
			unflagged++
		}
	}
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 1, unflagged)
}

func TestHybrid_DedupBoundPerDoc(t *testing.T) {
	var points []capability.ScoredPoint
	for i := 0; i < 6; i++ {
		points = append(points, capability.ScoredPoint{ID: string(rune('a' + i)), Score: float64(6-i) / 10, Payload: doc("t1", string(rune('a'+i)), "docA", "public")})
	}
	h := newHybrid(fakeVector{points: points}, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := h.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "plain query", Limit: 20}, principal, tenantConfig())
	require.NoError(t, err)
	count := 0
	for _, c := range result.FinalResults {
		if c.Payload.DocID == "docA" {
			count++
		}
	}
	assert.LessOrEqual(t, count, 3)
}

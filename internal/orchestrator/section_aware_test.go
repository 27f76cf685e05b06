package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/types"
)

func sectionedDoc(tenant, id, docID, sectionPath string) map[string]any {
	return map[string]any{"tenant": tenant, "docId": docID, "acl": []string{"public"}, "content": "chunk " + id, "sectionPath": sectionPath}
}

func TestSectionAware_NoDetectionPassesThroughUnchanged(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.5, Payload: doc("t1", "a", "docA", "public")},
	}}
	h := newHybrid(vec, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	sa := &SectionAware{Hybrid: h, Lexical: fakeLexical{}, Opts: DefaultSectionOptions()}

	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := sa.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	assert.Empty(t, result.ReconstructedSections)
	assert.Len(t, result.FinalResults, 1)
}

func TestSectionAware_CompletesSequentialParts(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.9, Payload: sectionedDoc("t1", "a", "docA", "block_1/part_0")},
		{ID: "b", Score: 0.8, Payload: sectionedDoc("t1", "b", "docA", "block_1/part_2")},
	}}
	lex := fakeLexical{rows: []capability.ScrolledPoint{
		{ID: "c", Payload: sectionedDoc("t1", "c", "docA", "block_1/part_1")},
	}}
	h := newHybrid(vec, lex, fakeEmbedder{vec: []float32{0.1}})
	opts := DefaultSectionOptions()
	opts.MinTriggerConfidence = 0.1
	sa := &SectionAware{Hybrid: h, Lexical: lex, Opts: opts}

	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := sa.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	require.Len(t, result.ReconstructedSections, 1)
	rs := result.ReconstructedSections[0]
	assert.Equal(t, "docA", rs.DocID)
	assert.Contains(t, rs.Content, "chunk a")
	assert.Contains(t, rs.Content, "chunk c")
	assert.Contains(t, rs.Content, "chunk b")
}

func TestSectionAware_FetchTimeoutFallsBackToPreCompletionResult(t *testing.T) {
	vec := fakeVector{points: []capability.ScoredPoint{
		{ID: "a", Score: 0.9, Payload: sectionedDoc("t1", "a", "docA", "block_1/part_0")},
		{ID: "b", Score: 0.8, Payload: sectionedDoc("t1", "b", "docA", "block_1/part_2")},
	}}
	lex := slowLexical{delay: 50 * time.Millisecond}
	h := newHybrid(vec, fakeLexical{}, fakeEmbedder{vec: []float32{0.1}})
	opts := DefaultSectionOptions()
	opts.MinTriggerConfidence = 0.1
	opts.SectionCompletionTimeout = time.Millisecond
	sa := &SectionAware{Hybrid: h, Lexical: lex, Opts: opts}

	principal := types.Principal{ID: "u1", Tenant: "t1"}
	result, err := sa.Retrieve(context.Background(), "docs", types.RetrieveRequest{Query: "q", Limit: 5}, principal, tenantConfig())
	require.NoError(t, err)
	assert.Empty(t, result.ReconstructedSections)
	assert.Len(t, result.FinalResults, 2)
}

type slowLexical struct {
	delay time.Duration
}

func (s slowLexical) Scroll(ctx context.Context, _ string, _ capability.ScrollFilter, _ int) ([]capability.ScrolledPoint, error) {
	select {
	case <-time.After(s.delay):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

package crossencoder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/pkg/search"
)

func TestAdapter_PassthroughWhenDisabledPreservesOrderAndPayload(t *testing.T) {
	cfg := search.DefaultCrossEncoderConfig()
	cfg.Enabled = false
	a := New(search.NewCrossEncoder(cfg))

	candidates := []capability.RerankCandidate{
		{ID: "a", Content: "alpha", Payload: map[string]any{"docId": "docA"}, OriginalScore: 0.9},
		{ID: "b", Content: "beta", Payload: map[string]any{"docId": "docB"}, OriginalScore: 0.5},
	}

	out, err := a.Rerank(context.Background(), "query", candidates, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, 0.9, out[0].RerankerScore)
	assert.Equal(t, "docA", out[0].Payload["docId"])
}

func TestAdapter_TopKTruncates(t *testing.T) {
	cfg := search.DefaultCrossEncoderConfig()
	cfg.Enabled = false
	a := New(search.NewCrossEncoder(cfg))

	candidates := []capability.RerankCandidate{
		{ID: "a", Content: "alpha", OriginalScore: 0.9},
		{ID: "b", Content: "beta", OriginalScore: 0.5},
		{ID: "c", Content: "gamma", OriginalScore: 0.3},
	}

	out, err := a.Rerank(context.Background(), "query", candidates, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestAdapter_EmptyCandidates(t *testing.T) {
	a := New(search.NewCrossEncoder(nil))
	out, err := a.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// Package crossencoder adapts pkg/search.CrossEncoder to the narrow
// capability.Reranker interface the retrieval core consumes. Grounded on
// pkg/search/rerank.go's CrossEncoder.Rerank.
package crossencoder

import (
	"context"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/pkg/search"
)

// Adapter wraps a *search.CrossEncoder so it satisfies capability.Reranker.
// The teacher's Rerank has no topK parameter (it reads config.TopK
// internally) and returns its own RerankResult shape; this adapter performs
// the field translation and the topK truncation capability.Reranker's
// signature requires.
type Adapter struct {
	CrossEncoder *search.CrossEncoder
}

// New returns a capability.Reranker backed by the given cross-encoder.
func New(ce *search.CrossEncoder) *Adapter {
	return &Adapter{CrossEncoder: ce}
}

// Rerank translates candidates into the teacher's RerankCandidate shape,
// invokes the cross-encoder, and truncates to topK by the returned order
// (the teacher already sorts by CrossScore descending).
func (a *Adapter) Rerank(ctx context.Context, query string, candidates []capability.RerankCandidate, topK int) ([]capability.RerankedCandidate, error) {
	if a.CrossEncoder == nil || len(candidates) == 0 {
		return nil, nil
	}

	in := make([]search.RerankCandidate, len(candidates))
	payloads := make(map[string]map[string]any, len(candidates))
	for i, c := range candidates {
		in[i] = search.RerankCandidate{ID: c.ID, Content: c.Content, Score: c.OriginalScore}
		payloads[c.ID] = c.Payload
	}

	results, err := a.CrossEncoder.Rerank(ctx, query, in)
	if err != nil {
		return nil, err
	}

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	out := make([]capability.RerankedCandidate, len(results))
	for i, r := range results {
		out[i] = capability.RerankedCandidate{
			ID:            r.ID,
			RerankerScore: r.FinalScore,
			Content:       r.Content,
			Payload:       payloads[r.ID],
		}
	}
	return out, nil
}

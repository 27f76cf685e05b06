// Package mmr implements the maximal-marginal-relevance diversity selector
// used as the final-band alternative to the cross-encoder reranker (§4.1
// step 11). The teacher's pkg/search/search.go applyMMR diversifies over
// the query embedding via cosine distance against each candidate's stored
// vector; this module's Candidate has no carried embedding (§3's Candidate
// shape is relevance-score-only, not vector-bearing), so relevance here is
// the incoming fused score and "distance" is lexical dissimilarity between
// candidate contents (Jaccard over tokenized text, via mathutil.Jaccard) —
// a practical substitute for cosine distance on an embedding the core does
// not retain, noted as an implementer decision in DESIGN.md.
package mmr

import (
	"strings"

	"github.com/orneryd/retrievalcore/internal/mathutil"
	"github.com/orneryd/retrievalcore/internal/types"
)

// Select runs marginal-relevance selection over candidates (already sorted
// by relevance) and returns the top limit, balancing relevance against
// redundancy with the candidates already chosen. lambda weights relevance
// (1.0) against diversity (0.0); the teacher's default is 0.5.
func Select(candidates []types.Candidate, limit int, lambda float64) []types.Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	if limit >= len(candidates) {
		limit = len(candidates)
	}

	pool := make([]types.Candidate, len(candidates))
	copy(pool, candidates)
	tokens := make([][]string, len(pool))
	for i, c := range pool {
		tokens[i] = strings.Fields(strings.ToLower(c.Content))
	}
	relevance := make([]float64, len(pool))
	for i, c := range pool {
		relevance[i] = scoreOf(c)
	}

	selected := make([]types.Candidate, 0, limit)
	selectedIdx := make([]int, 0, limit)
	chosen := make(map[int]bool, limit)

	for len(selected) < limit {
		best := -1
		bestScore := 0.0
		for i := range pool {
			if chosen[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selectedIdx {
				sim := mathutil.Jaccard(tokens[i], tokens[j])
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*relevance[i] - (1-lambda)*maxSim
			if best == -1 || mmrScore > bestScore {
				best = i
				bestScore = mmrScore
			}
		}
		if best == -1 {
			break
		}
		chosen[best] = true
		selectedIdx = append(selectedIdx, best)
		selected = append(selected, pool[best])
	}
	return selected
}

func scoreOf(c types.Candidate) float64 {
	if c.FusionScore != nil {
		return *c.FusionScore
	}
	return float64(c.Score)
}

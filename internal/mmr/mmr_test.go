package mmr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orneryd/retrievalcore/internal/types"
)

func cand(id string, score float64, content string) types.Candidate {
	c := types.Candidate{ID: id, Score: float32(score), Content: content}
	return c.WithFusionScore(score)
}

func TestSelect_PrefersDiverseOverRedundantDuplicate(t *testing.T) {
	candidates := []types.Candidate{
		cand("a", 0.9, "the quick brown fox jumps"),
		cand("b", 0.89, "the quick brown fox leaps"),
		cand("c", 0.5, "completely unrelated topic about gardening"),
	}

	out := Select(candidates, 2, 0.5)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID, "near-duplicate of a should be passed over for the diverse candidate")
}

func TestSelect_LambdaOneIsPureRelevanceOrder(t *testing.T) {
	candidates := []types.Candidate{
		cand("a", 0.9, "alpha"),
		cand("b", 0.8, "alpha"),
		cand("c", 0.7, "alpha"),
	}
	out := Select(candidates, 3, 1.0)
	assert.Equal(t, []string{"a", "b", "c"}, ids(out))
}

func TestSelect_LimitExceedingPoolReturnsAll(t *testing.T) {
	candidates := []types.Candidate{cand("a", 0.5, "x")}
	out := Select(candidates, 10, 0.5)
	assert.Len(t, out, 1)
}

func TestSelect_EmptyInput(t *testing.T) {
	assert.Empty(t, Select(nil, 5, 0.5))
	assert.Empty(t, Select([]types.Candidate{cand("a", 0.5, "x")}, 0, 0.5))
}

func ids(cs []types.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

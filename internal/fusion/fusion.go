// Package fusion implements the stateless combination of two scored ranked
// lists into one, per the fusion strategy table. It is grounded on the
// teacher's fuseRRF in pkg/search/search.go, generalized from a single RRF
// path into a closed set of named strategies.
package fusion

import (
	"errors"
	"fmt"
	"sort"

	"github.com/orneryd/retrievalcore/internal/normalize"
	"github.com/orneryd/retrievalcore/internal/types"
)

// Strategy is a closed enum of fusion strategies. An unrecognized name is a
// construction-time error (see NewStrategy), never a per-request failure.
type Strategy string

const (
	WeightedAverage Strategy = "weighted_average"
	ScoreWeightedRRF Strategy = "score_weighted_rrf"
	MaxConfidence   Strategy = "max_confidence"
	BordaRank       Strategy = "borda_rank"
)

// overrideThreshold is the hardcoded top-vector-score trigger for upgrading
// weighted_average to max_confidence. Decided not tenant-tunable (see
// SPEC_FULL.md §9 Open Question resolution): a tenant wanting different
// behavior picks a different strategy.
const overrideThreshold = 0.75

// ErrUnknownStrategy is returned by NewStrategy for an unrecognized name.
var ErrUnknownStrategy = errors.New("fusion: unknown strategy")

// NewStrategy validates name against the closed set and returns it typed,
// or ErrUnknownStrategy.
func NewStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case WeightedAverage, ScoreWeightedRRF, MaxConfidence, BordaRank:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Component is the per-candidate breakdown carried for tracing.
type Component struct {
	ID           string
	VectorScore  float64
	KeywordScore float64
	VectorRank   int
	KeywordRank  int
	FusedScore   float64
}

// Options parameterizes one fusion call.
type Options struct {
	Strategy      Strategy
	Normalization normalize.Method
	VectorWeight  float64
	KeywordWeight float64
	K             float64 // RRF k parameter
}

// Result is one fusion call's output: descending by fused score, with the
// effective strategy actually used (after the override rule) recorded.
type Result struct {
	Fused              []Component
	EffectiveStrategy  Strategy
	StrategyOverridden bool
}

// Fuse combines vector and keyword ranked lists under opts. vector and
// keyword may each be nil/empty; ids absent from one side are treated as
// score 0 for that side (and excluded from its rank lookup).
func Fuse(vector, keyword []types.FusionInput, opts Options) Result {
	effective := opts.Strategy
	overridden := false
	if effective == WeightedAverage && topScore(vector) >= overrideThreshold {
		effective = MaxConfidence
		overridden = true
	}

	vecByID := indexByID(vector)
	kwByID := indexByID(keyword)

	ids := unionIDs(vector, keyword)

	normVec := normalizedScores(vector, opts.Normalization)
	normKw := normalizedScores(keyword, opts.Normalization)

	components := make([]Component, 0, len(ids))
	for _, id := range ids {
		v, hasV := vecByID[id]
		k, hasK := kwByID[id]

		var vScore, kScore float64
		var vRank, kRank int
		if hasV {
			vScore = normVec[v]
			vRank = vector[v].Rank
		}
		if hasK {
			kScore = normKw[k]
			kRank = keyword[k].Rank
		}

		rawVScore := 0.0
		rawKScore := 0.0
		if hasV {
			rawVScore = vector[v].Score
		}
		if hasK {
			rawKScore = keyword[k].Score
		}

		fused := fuseOne(effective, opts, vScore, kScore, vRank, kRank, hasV, hasK)

		components = append(components, Component{
			ID:           id,
			VectorScore:  rawVScore,
			KeywordScore: rawKScore,
			VectorRank:   vRank,
			KeywordRank:  kRank,
			FusedScore:   fused,
		})
	}

	sort.SliceStable(components, func(i, j int) bool {
		if components[i].FusedScore != components[j].FusedScore {
			return components[i].FusedScore > components[j].FusedScore
		}
		return componentTieBreak(components[i]) > componentTieBreak(components[j])
	})

	return Result{Fused: components, EffectiveStrategy: effective, StrategyOverridden: overridden}
}

func componentTieBreak(c Component) float64 {
	if c.VectorScore > c.KeywordScore {
		return c.VectorScore
	}
	return c.KeywordScore
}

func fuseOne(strategy Strategy, opts Options, vScore, kScore float64, vRank, kRank int, hasV, hasK bool) float64 {
	switch strategy {
	case ScoreWeightedRRF:
		var sum float64
		if hasV {
			sum += opts.VectorWeight * vScore / (float64(vRank) + opts.K)
		}
		if hasK {
			sum += opts.KeywordWeight * kScore / (float64(kRank) + opts.K)
		}
		return sum
	case MaxConfidence:
		if vScore >= kScore {
			return vScore
		}
		return kScore
	case BordaRank:
		var sum float64
		if hasV {
			sum += opts.VectorWeight / (float64(vRank) + opts.K)
		}
		if hasK {
			sum += opts.KeywordWeight / (float64(kRank) + opts.K)
		}
		return sum
	default: // WeightedAverage
		if hasV && !hasK {
			return opts.VectorWeight * vScore
		}
		if hasK && !hasV {
			return opts.KeywordWeight * kScore
		}
		return opts.VectorWeight*vScore + opts.KeywordWeight*kScore
	}
}

func topScore(list []types.FusionInput) float64 {
	top := 0.0
	for _, f := range list {
		if f.Score > top {
			top = f.Score
		}
	}
	return top
}

func indexByID(list []types.FusionInput) map[string]int {
	m := make(map[string]int, len(list))
	for i, f := range list {
		m[f.ID] = i
	}
	return m
}

func unionIDs(a, b []types.FusionInput) []string {
	seen := make(map[string]bool, len(a)+len(b))
	ids := make([]string, 0, len(a)+len(b))
	for _, f := range a {
		if !seen[f.ID] {
			seen[f.ID] = true
			ids = append(ids, f.ID)
		}
	}
	for _, f := range b {
		if !seen[f.ID] {
			seen[f.ID] = true
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func normalizedScores(list []types.FusionInput, method normalize.Method) map[int]float64 {
	raw := make([]float64, len(list))
	for i, f := range list {
		raw[i] = f.Score
	}
	normed := normalize.Apply(raw, method)
	out := make(map[int]float64, len(normed))
	for i, v := range normed {
		out[i] = v
	}
	return out
}

// Package keywordpoints implements the keyword-points rescorer (§4.5): it
// refines a fused score using per-candidate termHits/tokenPositions,
// penalizing bag-of-words false positives and rewarding proximity and
// field placement. Tokenization and IDF shape are grounded on the
// teacher's pkg/search/fulltext_index.go calculateIDF/tokenize.
package keywordpoints

import (
	"math"
	"sort"

	"github.com/orneryd/retrievalcore/internal/types"
)

// FieldWeights are the default per-field weights from §6.
var FieldWeights = map[string]float64{
	"body":    3.0,
	"title":   2.2,
	"header":  1.8,
	"section": 1.3,
	"docId":   1.1,
}

// Params bundles the tunables enumerated in §6 for this stage.
type Params struct {
	IDFGamma            float64
	RankDecay           float64
	BodySatC            float64
	EarlyPosTokens      int
	EarlyPosNudge       float64
	ProxWin             int
	ProximityBeta       float64
	CoverageAlpha       float64
	ExclusivityGamma    float64
	LambdaKw            float64
	ClampKwNorm         float64
	TopKCoverage        int
	SoftAndStrict       bool
	SoftAndOverridePctl float64
}

// DefaultParams returns the §6 documented defaults.
func DefaultParams() Params {
	return Params{
		IDFGamma:            0.35,
		RankDecay:           0.85,
		BodySatC:            0.6,
		EarlyPosTokens:      250,
		EarlyPosNudge:       1.08,
		ProxWin:             30,
		ProximityBeta:       0.25,
		CoverageAlpha:       0.25,
		ExclusivityGamma:    0.25,
		LambdaKw:            0.25,
		ClampKwNorm:         2.0,
		TopKCoverage:        2,
		SoftAndStrict:       false,
		SoftAndOverridePctl: 95,
	}
}

// TermWeight is one query term's computed importance.
type TermWeight struct {
	Term        string
	Weight      float64
	Rank        int
}

// CorpusStats supplies the tenant-scoped statistics the rescorer needs:
// document frequency per term (for IDF) and term breadth (for the
// exclusivity penalty).
type CorpusStats struct {
	TotalDocs      int
	DocFrequency   map[string]int // term -> number of docs containing it
}

// IDF computes the Lucene/ES-style smoothed inverse document frequency for
// term, grounded on the teacher's calculateIDF.
func (s CorpusStats) IDF(term string) float64 {
	df := s.DocFrequency[term]
	n := s.TotalDocs
	if n == 0 {
		return 1.0
	}
	return math.Log(1.0 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// BuildTermWeights computes the TermWeight list for a tokenized query, per
// §4.5's "Inputs" paragraph. phrase is true when the extraction produced a
// multi-token phrase, applying phraseBonus to every term.
func BuildTermWeights(terms []string, stats CorpusStats, params Params, phrase bool) []TermWeight {
	const baseWeight = 1.0
	const phraseBonus = 1.2

	out := make([]TermWeight, 0, len(terms))
	for i, term := range terms {
		w := baseWeight * math.Pow(stats.IDF(term), params.IDFGamma)
		if phrase {
			w *= phraseBonus
		}
		out = append(out, TermWeight{Term: term, Weight: w, Rank: i + 1})
	}
	return out
}

func fieldWeight(field string) float64 {
	if w, ok := FieldWeights[field]; ok {
		return w
	}
	return 1.0
}

func positionNudge(pos int, params Params) float64 {
	if pos < params.EarlyPosTokens {
		return params.EarlyPosNudge
	}
	return 1.0
}

func bodySat(count int, c float64) float64 {
	return float64(count) / (float64(count) + c)
}

// Score computes the raw keyword-points score for one candidate given its
// termHits/tokenPositions and the query's TermWeight list. It does not
// apply the soft-AND suppression or the final blend — those operate across
// the whole candidate batch and are handled by Rescore.
func Score(c types.Candidate, weights []TermWeight, stats CorpusStats, params Params) float64 {
	weightByTerm := make(map[string]TermWeight, len(weights))
	for _, w := range weights {
		weightByTerm[w.Term] = w
	}

	var raw float64
	var matchCount int
	for term, hits := range c.TermHits {
		tw, ok := weightByTerm[term]
		if !ok {
			continue
		}
		for _, hit := range hits {
			pos := 0
			if len(hit.Positions) > 0 {
				pos = hit.Positions[0]
			}
			raw += tw.Weight * fieldWeight(hit.Field) * positionNudge(pos, params)
		}
		matchCount++
	}

	raw = bodySat(matchCount, params.BodySatC) * raw

	coverage := coverageOf(weights, c, params.TopKCoverage)
	raw *= 1 + params.CoverageAlpha*coverage

	proximity := proximityOf(c, weights, params.ProxWin)
	raw *= 1 + params.ProximityBeta*proximity

	exclusivity := exclusivityPenalty(weights, stats)
	raw *= 1 - params.ExclusivityGamma*exclusivity

	return raw
}

func coverageOf(weights []TermWeight, c types.Candidate, topK int) float64 {
	if len(weights) == 0 {
		return 0
	}
	limit := topK
	if limit > len(weights) || limit <= 0 {
		limit = len(weights)
	}
	matched := 0
	for i := 0; i < limit; i++ {
		if _, ok := c.TermHits[weights[i].Term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(limit)
}

func proximityOf(c types.Candidate, weights []TermWeight, window int) float64 {
	var positions []int
	for _, w := range weights {
		if ps, ok := c.TokenPositions[w.Term]; ok && len(ps) > 0 {
			positions = append(positions, ps[0])
		}
	}
	if len(positions) < 2 {
		return 0
	}
	sort.Ints(positions)
	span := positions[len(positions)-1] - positions[0]
	if span >= window {
		return 0
	}
	return 1.0 - float64(span)/float64(window)
}

func exclusivityPenalty(weights []TermWeight, stats CorpusStats) float64 {
	if stats.TotalDocs == 0 || len(weights) == 0 {
		return 0
	}
	var sum float64
	for _, w := range weights {
		df := stats.DocFrequency[w.Term]
		sum += float64(df) / float64(stats.TotalDocs)
	}
	return sum / float64(len(weights))
}

// Rescore applies the keyword-points rescorer across a fused candidate
// batch: soft-AND suppression, then the final blend formula
// finalScore = fusedScore + lambda*clamp(rawKw/medianRawKw, 0, clampKwNorm).
func Rescore(candidates []types.Candidate, weights []TermWeight, stats CorpusStats, params Params) []types.Candidate {
	raws := make([]float64, len(candidates))
	for i, c := range candidates {
		raws[i] = Score(c, weights, stats, params)
	}

	median := medianOf(raws)

	var cutoff float64
	if params.SoftAndStrict {
		cutoff = percentile(raws, params.SoftAndOverridePctl)
	}

	out := make([]types.Candidate, 0, len(candidates))
	for i, c := range candidates {
		if params.SoftAndStrict && raws[i] < cutoff {
			continue
		}
		fused := 0.0
		if c.FusionScore != nil {
			fused = *c.FusionScore
		}
		ratio := 0.0
		if median > 0 {
			ratio = raws[i] / median
		}
		ratio = clamp(ratio, 0, params.ClampKwNorm)
		final := fused + params.LambdaKw*ratio
		out = append(out, c.WithFusionScore(final))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// AssignMatchKind classifies how term matched word: exact on equality,
// fuzzy within Levenshtein distance 1, lemma otherwise (the default per
// §4.2).
func AssignMatchKind(term, word string) types.MatchKind {
	if term == word {
		return types.MatchExact
	}
	if isFuzzyMatch(term, word) {
		return types.MatchFuzzy
	}
	return types.MatchLemma
}

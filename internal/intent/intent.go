// Package intent maps a query (and optionally the top vector score) to an
// effective fusion strategy, weight pair, retrieval-K, and optional query
// expansion. It is a pure, rules-based function, grounded on the teacher's
// GetAdaptiveRRFConfig in pkg/search/search.go, which already adapted RRF
// weighting to query length; generalized here into an ordered rule table.
package intent

import (
	"regexp"

	"github.com/orneryd/retrievalcore/internal/fusion"
)

// temporalPattern matches the temporal-query class from §6.
var temporalPattern = regexp.MustCompile(`(?i)\b(how long|how many|how much|how tall|how wide|how deep|day|hour|minute|second|time|duration|length)\b`)

const highConfidenceVectorThreshold = 0.75

// dedup window sizes, per §4.1 step 7.
const (
	DefaultDedupPerDoc  = 3
	TemporalDedupPerDoc = 5
)

// Result is the detector's decision for one query.
type Result struct {
	Strategy     fusion.Strategy
	VectorWeight float64
	KeywordWeight float64
	RetrievalK   int
	Expansion    string
	Temporal     bool
	DedupPerDoc  int
}

// Defaults carries the tenant's configured fallback, used when no rule
// fires.
type Defaults struct {
	Strategy      fusion.Strategy
	VectorWeight  float64
	KeywordWeight float64
	RetrievalK    int
}

// MatchesTemporal reports whether content contains one of the temporal
// keywords §4.1's temporal-query class matches on. Used to flag which
// candidates a temporal query's dedup widening actually favored.
func MatchesTemporal(content string) bool {
	return temporalPattern.MatchString(content)
}

// Detect evaluates the query against the rule table in a fixed order:
// temporal, then high-confidence-vector, then the tenant default.
// topVectorScore is nil when vector search has not yet run (step 2 of
// §4.1 may be evaluated before vector search returns, in which case only
// the temporal rule can fire).
func Detect(query string, topVectorScore *float64, defaults Defaults) Result {
	r := Result{
		Strategy:      defaults.Strategy,
		VectorWeight:  defaults.VectorWeight,
		KeywordWeight: defaults.KeywordWeight,
		RetrievalK:    defaults.RetrievalK,
		DedupPerDoc:   DefaultDedupPerDoc,
	}

	if temporalPattern.MatchString(query) {
		r.Temporal = true
		r.DedupPerDoc = TemporalDedupPerDoc
	}

	if topVectorScore != nil && *topVectorScore >= highConfidenceVectorThreshold {
		r.Strategy = fusion.MaxConfidence
	}

	return r
}

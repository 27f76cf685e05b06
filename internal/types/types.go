// Package types holds the value objects shared across the retrieval
// pipeline: principals, document metadata, candidates, and the tenant
// configuration documents that parameterize every stage.
package types

import (
	"strings"
	"time"
)

// Principal is the authenticated requester and its tenancy/group membership.
// Immutable per request.
type Principal struct {
	ID       string
	Tenant   string
	Groups   []string
	Language string
}

// IsAdmin reports whether the principal is a member of the bypass set used
// by the guardrail: groups containing "admin" or "system", or an id that
// contains "admin".
func (p Principal) IsAdmin() bool {
	for _, g := range p.Groups {
		if g == "admin" || g == "system" {
			return true
		}
	}
	return strings.Contains(p.ID, "admin")
}

// DocumentMetadata is the authoritative source for access decisions. Never
// mutated by the core.
type DocumentMetadata struct {
	Tenant      string
	DocID       string
	ACL         []string
	Lang        string
	SectionPath string
	Title       string
	Header      string
	Path        string
	Timestamp   time.Time
}

// SearchType tags a Candidate with the stage that produced it.
type SearchType string

const (
	SearchTypeVectorOnly         SearchType = "vector_only"
	SearchTypeKeywordOnly        SearchType = "keyword_only"
	SearchTypeHybrid             SearchType = "hybrid"
	SearchTypeSectionReconstructed SearchType = "section_reconstructed"
	SearchTypeSectionRelated     SearchType = "section_related"
)

// MatchKind classifies how a query term matched a document token.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchLemma MatchKind = "lemma"
	MatchFuzzy MatchKind = "fuzzy"
)

// TermHit records where and how a query term matched within a candidate.
type TermHit struct {
	Field     string
	MatchKind MatchKind
	Positions []int
}

// Candidate is a scored reference to a document chunk, carrying enough
// metadata for RBAC, ranking, and presentation. Candidates are value
// objects produced by one stage and handed to the next; no stage mutates a
// prior stage's candidate — each stage that wants to change a Candidate
// copies it first (see WithFusionScore and friends).
type Candidate struct {
	ID      string
	Score   float32
	Payload DocumentMetadata
	Content string

	VectorScore   *float64
	KeywordScore  *float64
	FusionScore   *float64
	RerankerScore *float64
	Rank          int

	SearchType SearchType

	TermHits       map[string][]TermHit
	TokenPositions map[string][]int

	// TemporalBoost marks a candidate whose content matched the temporal
	// keyword set that widened dedup for this query (§4.1 step 7).
	TemporalBoost bool
}

func ptr(f float64) *float64 { return &f }

// WithVectorScore returns a copy of c with VectorScore set.
func (c Candidate) WithVectorScore(v float64) Candidate { c.VectorScore = ptr(v); return c }

// WithKeywordScore returns a copy of c with KeywordScore set.
func (c Candidate) WithKeywordScore(v float64) Candidate { c.KeywordScore = ptr(v); return c }

// WithFusionScore returns a copy of c with FusionScore set.
func (c Candidate) WithFusionScore(v float64) Candidate { c.FusionScore = ptr(v); return c }

// WithRerankerScore returns a copy of c with RerankerScore set.
func (c Candidate) WithRerankerScore(v float64) Candidate { c.RerankerScore = ptr(v); return c }

// WithRank returns a copy of c with Rank set.
func (c Candidate) WithRank(r int) Candidate { c.Rank = r; return c }

// FusionInput is the minimal shape the fusion core operates on. The
// invariant rank == 1+index holds within a list, and ids are unique within
// a list.
type FusionInput struct {
	ID    string
	Score float64
	Rank  int
	DocID string
}

// SectionPattern names the rule that matched during section detection.
type SectionPattern string

const (
	PatternSequentialParts  SectionPattern = "sequential_parts"
	PatternSinglePartTable  SectionPattern = "single_part_table"
	PatternPartialStructure SectionPattern = "partial_structure"
)

// DetectedSection describes a group of candidates that appear to be a
// fragmented structural section.
type DetectedSection struct {
	BaseSectionPath  string
	DocID            string
	OriginalChunks   []Candidate
	Confidence       float64
	Pattern          SectionPattern
	DetectionReasons []string
}

// ReconstructedSection is the merged, presentable result of completing a
// DetectedSection.
type ReconstructedSection struct {
	ID               string
	SectionPath      string
	DocID            string
	Content          string
	OriginalChunkRefs []string
	Payload          DocumentMetadata
	CombinedScore    float64
	ComponentScores  []float64
}

// ScoreStats summarizes a score distribution.
type ScoreStats struct {
	Mean        float64
	Max         float64
	Min         float64
	StdDev      float64
	Count       int
	Percentiles map[int]float64
}

// AlgorithmScores holds the per-algorithm confidence contributions that feed
// the blended answerability confidence.
type AlgorithmScores struct {
	Statistical        float64
	Threshold          float64
	MLFeatures         float64
	RerankerConfidence *float64
}

// DegradationAlert fires when a later stage's confidence drops substantially
// below an earlier stage's.
type DegradationAlert struct {
	Transition string // e.g. "vector->fusion"
	Prior      float64
	Current    float64
	Severity   float64
}

// ConfidenceStrategy names the strategy used to blend per-stage confidences.
type ConfidenceStrategy string

const (
	StrategyMaxConfidence    ConfidenceStrategy = "max_confidence"
	StrategyConservative     ConfidenceStrategy = "conservative"
	StrategyAdaptiveWeighted ConfidenceStrategy = "adaptive_weighted"
)

// SourceAwareResult is the output of the per-stage confidence computation.
type SourceAwareResult struct {
	Strategy       ConfidenceStrategy
	StageConfidence map[string]float64
	Alerts         []DegradationAlert
	Confidence     float64
}

// AnswerabilityScore is the final guardrail judgment.
type AnswerabilityScore struct {
	Confidence     float64
	ScoreStats     ScoreStats
	AlgorithmScores AlgorithmScores
	SourceAware    SourceAwareResult
	IsAnswerable   bool
	Reasoning      string
	ComputationTime time.Duration
}

// Thresholds are the guardrail's answerability gates.
type Thresholds struct {
	MinConfidence  float64
	MinTopScore    float64
	MinMeanScore   float64
	MaxStdDev      float64
	MinResultCount int
}

// MergeStrategy names how reconstructed sections are merged back into the
// candidate list.
type MergeStrategy string

const (
	MergeReplace    MergeStrategy = "replace"
	MergeAppend     MergeStrategy = "append"
	MergeInterleave MergeStrategy = "interleave"
)

// SectionScorePolicy names how a reconstructed section's combined score is
// derived from its component chunk scores.
type SectionScorePolicy string

const (
	SectionScoreAverage        SectionScorePolicy = "average"
	SectionScoreMax            SectionScorePolicy = "max"
	SectionScoreMin            SectionScorePolicy = "min"
	SectionScoreWeightedAverage SectionScorePolicy = "weighted_average"
)

// SearchConfig is the tenant-scoped fusion/retrieval configuration.
type SearchConfig struct {
	KeywordEnabled    bool
	VectorWeight      float64
	KeywordWeight     float64
	RRFK              int
	RerankerEnabled   bool
	RerankerTopK      int
	HighValueTokens   []string
}

// GuardrailConfig is the tenant-scoped answerability configuration.
type GuardrailConfig struct {
	Enabled        bool
	BypassEnabled  bool
	Threshold      Thresholds
	IDKTemplates   map[string]string
	FallbackConfig Thresholds
	AlgorithmWeights map[string]float64
}

// TenantConfig bundles the two disjoint per-tenant documents.
type TenantConfig struct {
	TenantID  string
	Search    SearchConfig
	Guardrail GuardrailConfig
}

// DefaultSearchConfig returns the documented defaults from the tunables
// table.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		KeywordEnabled:  true,
		VectorWeight:    0.7,
		KeywordWeight:   0.3,
		RRFK:            60,
		RerankerEnabled: false,
		RerankerTopK:    8,
		HighValueTokens: []string{"artistry", "skill", "table", "abilities"},
	}
}

// DefaultGuardrailConfig returns the permissive preset.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		Enabled:       true,
		BypassEnabled: true,
		Threshold: Thresholds{
			MinConfidence:  0.3,
			MinTopScore:    0.2,
			MinMeanScore:   0.1,
			MaxStdDev:      1.0,
			MinResultCount: 1,
		},
		IDKTemplates: map[string]string{
			"NO_RELEVANT_DOCS": "I couldn't find anything relevant to answer that.",
			"LOW_CONFIDENCE":   "I found some results but I'm not confident they answer your question.",
			"AMBIGUOUS_QUERY":  "The results I found vary too much in relevance to give a confident answer.",
		},
		AlgorithmWeights: map[string]float64{
			"statistical": 0.4,
			"threshold":   0.3,
			"mlFeatures":  0.2,
			"reranker":    0.1,
		},
	}
}

// Metrics records per-stage outcomes for one retrieval call.
type Metrics struct {
	VectorTimedOut     bool
	LexicalTimedOut    bool
	RerankerTimedOut   bool
	RerankerFallback   bool
	RerankingEnabled   bool
	VectorCount        int
	KeywordCount       int
	FusionCount        int
	TemporalBoost      bool
	StrategyOverridden bool
	EffectiveStrategy  string
}

// IDKResponse is the structured refusal produced by the guardrail.
type IDKResponse struct {
	ReasonCode  string
	Message     string
	Suggestions []string
}

// RetrieveRequest is the hybrid orchestrator's input.
type RetrieveRequest struct {
	Query               string
	Limit               int
	VectorWeight        *float64
	KeywordWeight       *float64
	RRFK                *int
	EnableKeywordSearch *bool
	Filter              map[string]string
	TenantID            string
}

// RetrieveResult is the hybrid orchestrator's output.
type RetrieveResult struct {
	FinalResults      []Candidate
	VectorResults     []Candidate
	KeywordResults    []Candidate
	FusionResults     []Candidate
	RerankerResults   []Candidate
	ReconstructedSections []ReconstructedSection
	Metrics           Metrics
	FusionTrace       []FusionTraceEntry
}

// FusionTraceEntry records the component breakdown for one fused candidate,
// for tracing and the fusion-monotonicity property tests.
type FusionTraceEntry struct {
	ID            string
	VectorScore   float64
	KeywordScore  float64
	FusedScore    float64
	StrategyUsed  string
	Overridden    bool
}

// GuardrailDecision is the per-request guardrail judgment alongside the
// answerability score it was derived from.
type GuardrailDecision struct {
	Answerable bool
	Score      AnswerabilityScore
	Bypassed   bool
}

// RetrieveGuardedResult is RetrieveGuarded's output: either Results is
// populated (Answerable true) or IDK is (Answerable false).
type RetrieveGuardedResult struct {
	Answerable bool
	Results    []Candidate
	IDK        *IDKResponse
	Decision   GuardrailDecision
	Metrics    Metrics
}

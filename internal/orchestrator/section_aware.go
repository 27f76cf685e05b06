package orchestrator

import (
	"context"
	"time"

	"github.com/orneryd/retrievalcore/internal/auditlog"
	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/rbac"
	"github.com/orneryd/retrievalcore/internal/section"
	"github.com/orneryd/retrievalcore/internal/types"
)

// SectionOptions bundles §6's "Section completion" tunables.
type SectionOptions struct {
	MaxSectionsToComplete    int
	SectionCompletionTimeout time.Duration
	MergeStrategy            types.MergeStrategy
	MinTriggerConfidence     float64
	MaxChunksPerSection      int
	QueryTimeout             time.Duration
	ScorePolicy              types.SectionScorePolicy
}

// DefaultSectionOptions returns the §6 documented defaults.
func DefaultSectionOptions() SectionOptions {
	return SectionOptions{
		MaxSectionsToComplete:    3,
		SectionCompletionTimeout: 3 * time.Second,
		MergeStrategy:            types.MergeAppend,
		MinTriggerConfidence:     0.7,
		MaxChunksPerSection:      10,
		QueryTimeout:             2 * time.Second,
		ScorePolicy:              types.SectionScoreWeightedAverage,
	}
}

// SectionAware is the L2 wrapper described in §2's "Section-aware
// orchestrator" row: it runs the Hybrid orchestrator, detects fragmented
// structural sections in the result (§4.6 Detection), fetches their
// missing siblings under a hard completion timeout, reconstructs them, and
// merges the reconstructions back per the tenant's configured strategy.
type SectionAware struct {
	Hybrid  *Hybrid
	Lexical capability.LexicalStore
	Audit   capability.AuditSink
	Opts    SectionOptions
}

// Retrieve runs the hybrid pipeline, then completes any detected sections
// whose confidence clears MinTriggerConfidence, merging the reconstructions
// into FinalResults per Opts.MergeStrategy. Completion runs under its own
// hard timeout (§6 sectionCompletionTimeoutMs); on timeout the pre-
// completion hybrid result is returned unchanged.
func (s *SectionAware) Retrieve(ctx context.Context, collection string, req types.RetrieveRequest, principal types.Principal, tenantCfg types.TenantConfig) (types.RetrieveResult, error) {
	result, err := s.Hybrid.Retrieve(ctx, collection, req, principal, tenantCfg)
	if err != nil {
		return result, err
	}

	detected := section.Detect(result.FinalResults)
	triggered := make([]types.DetectedSection, 0, len(detected))
	for _, ds := range detected {
		if ds.Confidence >= s.Opts.MinTriggerConfidence {
			triggered = append(triggered, ds)
		}
	}
	if len(triggered) == 0 {
		return result, nil
	}
	if len(triggered) > s.Opts.MaxSectionsToComplete {
		triggered = triggered[:s.Opts.MaxSectionsToComplete]
	}

	completionCtx, cancel := context.WithTimeout(ctx, s.Opts.SectionCompletionTimeout)
	defer cancel()

	rbacMust := rbac.MustClauses(principal)
	fetched, err := section.Fetch(completionCtx, s.Lexical, collection, triggered, rbacMust, section.FetchOptions{
		MaxChunksPerSection: s.Opts.MaxChunksPerSection,
	})
	if err != nil {
		// Hard timeout or fetch failure: return the pre-completion result
		// unchanged, matching the hybrid orchestrator's own fallback
		// discipline (§4.1 Failure semantics applied to §4.6 completion).
		if s.Audit != nil {
			s.Audit.Error("section_completion_fallback", map[string]any{"tenant": principal.Tenant, "error": err.Error()})
		}
		return result, nil
	}

	reconstructed := make([]types.ReconstructedSection, 0, len(triggered))
	for _, ds := range triggered {
		key := ds.DocID + "|" + ds.BaseSectionPath
		rs := section.Reconstruct(ds, fetched[key], s.Opts.ScorePolicy)
		reconstructed = append(reconstructed, rs)
		if s.Audit != nil {
			s.Audit.Info("section_reconstructed", auditlog.Fields(auditlog.EventSectionReconstructed, principal.Tenant, "", map[string]any{
				"docId": ds.DocID, "sectionPath": ds.BaseSectionPath, "pattern": string(ds.Pattern),
			}))
		}
	}

	result.ReconstructedSections = reconstructed
	result.FinalResults = section.Merge(result.FinalResults, reconstructed, s.Opts.MergeStrategy)
	result.FinalResults = rbac.Filter(principal, result.FinalResults)
	for i := range result.FinalResults {
		result.FinalResults[i] = result.FinalResults[i].WithRank(i + 1)
	}

	return result, nil
}

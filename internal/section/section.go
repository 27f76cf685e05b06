// Package section implements detection of fragmented structural blocks,
// fetching their missing siblings under RBAC, and merging them into a
// coherent section (§4.6). The section-path parser is a closed regex
// matcher that returns a null token on non-matching paths rather than
// attempting looser heuristics, per §9.
package section

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/types"
)

var sectionPathPattern = regexp.MustCompile(`^(block_(\d+))(?:/part_(\d+))?$`)

// ParsedPath is the null-or-match result of parsing a sectionPath.
type ParsedPath struct {
	Matched     bool
	BaseSection string
	BlockIndex  int
	PartIndex   int // -1 when the path has no /part_<M> suffix (i.e. is the base section)
}

// ParseSectionPath matches the block_<N>(/part_<M>)? shape. Non-matching
// paths return a zero-value ParsedPath with Matched=false; callers must
// treat that candidate as ordinary (non-sectioned) rather than guessing.
func ParseSectionPath(path string) ParsedPath {
	m := sectionPathPattern.FindStringSubmatch(path)
	if m == nil {
		return ParsedPath{}
	}
	blockIdx, _ := strconv.Atoi(m[2])
	partIdx := -1
	if m[3] != "" {
		partIdx, _ = strconv.Atoi(m[3])
	}
	return ParsedPath{Matched: true, BaseSection: m[1], BlockIndex: blockIdx, PartIndex: partIdx}
}

// Detect groups candidates by baseSectionPath and classifies each group,
// first matching rule wins: sequential_parts, single_part_table,
// partial_structure.
func Detect(candidates []types.Candidate) []types.DetectedSection {
	groups := make(map[string][]types.Candidate)
	order := make([]string, 0)
	for _, c := range candidates {
		parsed := ParseSectionPath(c.Payload.SectionPath)
		if !parsed.Matched {
			continue
		}
		key := c.Payload.DocID + "|" + parsed.BaseSection
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	detected := make([]types.DetectedSection, 0, len(order))
	for _, key := range order {
		group := groups[key]
		ds := classify(group)
		if ds != nil {
			detected = append(detected, *ds)
		}
	}
	return detected
}

func classify(group []types.Candidate) *types.DetectedSection {
	if len(group) == 0 {
		return nil
	}
	docID := group[0].Payload.DocID
	base := ParseSectionPath(group[0].Payload.SectionPath).BaseSection

	parts := make(map[int]bool)
	hasBase := false
	for _, c := range group {
		p := ParseSectionPath(c.Payload.SectionPath)
		if p.PartIndex == -1 {
			hasBase = true
		} else {
			parts[p.PartIndex] = true
		}
	}

	if gapInSequence(parts) || (hasBase && len(parts) > 0) {
		return &types.DetectedSection{
			BaseSectionPath:  base,
			DocID:            docID,
			OriginalChunks:   group,
			Confidence:       0.85,
			Pattern:          types.PatternSequentialParts,
			DetectionReasons: []string{"gap in observed part indices or base section present alongside parts"},
		}
	}

	if len(group) == 1 && looksLikeTableFragment(group[0].Content) {
		return &types.DetectedSection{
			BaseSectionPath:  base,
			DocID:            docID,
			OriginalChunks:   group,
			Confidence:       0.85,
			Pattern:          types.PatternSinglePartTable,
			DetectionReasons: []string{"single chunk contains a markdown table fragment"},
		}
	}

	return &types.DetectedSection{
		BaseSectionPath:  base,
		DocID:            docID,
		OriginalChunks:   group,
		Confidence:       0.5,
		Pattern:          types.PatternPartialStructure,
		DetectionReasons: []string{"residual partial structure"},
	}
}

func gapInSequence(parts map[int]bool) bool {
	if len(parts) < 2 {
		return false
	}
	min, max := -1, -1
	for p := range parts {
		if min == -1 || p < min {
			min = p
		}
		if max == -1 || p > max {
			max = p
		}
	}
	return max-min+1 > len(parts)
}

func looksLikeTableFragment(content string) bool {
	return strings.Contains(content, "|") && strings.Contains(content, "---")
}

// FetchOptions bounds the per-section fetch.
type FetchOptions struct {
	MaxChunksPerSection int
}

// Fetch scrolls the store for each detected section's missing siblings, in
// parallel across groups under a shared context deadline (callers attach
// the timeout via ctx). Already-retrieved ids (from OriginalChunks) are
// excluded.
func Fetch(ctx context.Context, store capability.LexicalStore, collection string, sections []types.DetectedSection, rbac []capability.MustClause, opts FetchOptions) (map[string][]capability.ScrolledPoint, error) {
	results := make(map[string][]capability.ScrolledPoint, len(sections))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, len(sections))

	for i, ds := range sections {
		wg.Add(1)
		go func(i int, ds types.DetectedSection) {
			defer wg.Done()

			exclude := make(map[string]bool, len(ds.OriginalChunks))
			for _, c := range ds.OriginalChunks {
				exclude[c.ID] = true
			}

			must := append(append([]capability.MustClause{}, rbac...),
				capability.MustClause{Field: "docId", Value: ds.DocID},
			)
			filter := capability.ScrollFilter{
				Must:   must,
				Should: []capability.ShouldClause{{Field: "sectionPath", Term: ds.BaseSectionPath}},
			}

			rows, err := store.Scroll(ctx, collection, filter, opts.MaxChunksPerSection)
			if err != nil {
				errs[i] = err
				return
			}

			filtered := make([]capability.ScrolledPoint, 0, len(rows))
			for _, r := range rows {
				if !exclude[r.ID] {
					filtered = append(filtered, r)
				}
				if len(filtered) >= opts.MaxChunksPerSection {
					break
				}
			}

			mu.Lock()
			results[ds.DocID+"|"+ds.BaseSectionPath] = filtered
			mu.Unlock()
		}(i, ds)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Reconstruct merges a detected section's original chunks with its fetched
// siblings into one presentable candidate.
func Reconstruct(ds types.DetectedSection, fetched []capability.ScrolledPoint, policy types.SectionScorePolicy) types.ReconstructedSection {
	type part struct {
		index   int
		content string
		score   float64
		id      string
	}

	var parts []part
	for _, c := range ds.OriginalChunks {
		p := ParseSectionPath(c.Payload.SectionPath)
		idx := p.PartIndex
		if idx == -1 {
			idx = 0
		}
		parts = append(parts, part{index: idx, content: c.Content, score: float64(c.Score), id: c.ID})
	}
	for _, f := range fetched {
		sp, _ := f.Payload["sectionPath"].(string)
		p := ParseSectionPath(sp)
		idx := p.PartIndex
		if idx == -1 {
			idx = 0
		}
		content, _ := f.Payload["content"].(string)
		parts = append(parts, part{index: idx, content: content, score: 0, id: f.ID})
	}

	sort.SliceStable(parts, func(i, j int) bool { return parts[i].index < parts[j].index })

	seen := make(map[string]bool, len(parts))
	var contentBuilder strings.Builder
	var refs []string
	var scores []float64
	first := true
	for _, p := range parts {
		if seen[p.content] {
			continue
		}
		seen[p.content] = true
		if !first {
			contentBuilder.WriteString("\n\n")
		}
		contentBuilder.WriteString(p.content)
		first = false
		refs = append(refs, p.id)
		scores = append(scores, p.score)
	}

	payload := ds.OriginalChunks[0].Payload
	payload.SectionPath = ds.BaseSectionPath
	payload.ACL = unionACL(ds.OriginalChunks, fetched)

	return types.ReconstructedSection{
		ID:                fmt.Sprintf("section:%s:%s", ds.DocID, ds.BaseSectionPath),
		SectionPath:       ds.BaseSectionPath,
		DocID:             ds.DocID,
		Content:           contentBuilder.String(),
		OriginalChunkRefs: refs,
		Payload:           payload,
		CombinedScore:     combineScores(scores, policy),
		ComponentScores:   scores,
	}
}

// unionACL takes the per-key union of the ACL array across every sibling
// chunk a reconstructed section merges (§4.6), rather than copying only
// the first chunk's ACL entries and silently dropping grants that apply
// to other parts of the same section.
func unionACL(original []types.Candidate, fetched []capability.ScrolledPoint) []string {
	seen := make(map[string]bool)
	var union []string
	add := func(acl string) {
		if acl != "" && !seen[acl] {
			seen[acl] = true
			union = append(union, acl)
		}
	}

	for _, c := range original {
		for _, acl := range c.Payload.ACL {
			add(acl)
		}
	}
	for _, f := range fetched {
		switch v := f.Payload["acl"].(type) {
		case []string:
			for _, acl := range v {
				add(acl)
			}
		case []interface{}:
			for _, raw := range v {
				if acl, ok := raw.(string); ok {
					add(acl)
				}
			}
		}
	}
	return union
}

func combineScores(scores []float64, policy types.SectionScorePolicy) float64 {
	if len(scores) == 0 {
		return 0
	}
	switch policy {
	case types.SectionScoreMax:
		m := scores[0]
		for _, s := range scores[1:] {
			if s > m {
				m = s
			}
		}
		return m
	case types.SectionScoreMin:
		m := scores[0]
		for _, s := range scores[1:] {
			if s < m {
				m = s
			}
		}
		return m
	case types.SectionScoreWeightedAverage:
		var num, den float64
		for i, s := range scores {
			w := 1.0 / float64(i+1)
			num += s * w
			den += w
		}
		if den == 0 {
			return 0
		}
		return num / den
	default: // average
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}
}

// Merge combines reconstructed sections into the original candidate list
// per the configured merge strategy.
func Merge(original []types.Candidate, reconstructed []types.ReconstructedSection, strategy types.MergeStrategy) []types.Candidate {
	covered := make(map[string]bool)
	for _, rs := range reconstructed {
		for _, ref := range rs.OriginalChunkRefs {
			covered[ref] = true
		}
	}

	asCandidates := make([]types.Candidate, 0, len(reconstructed))
	for _, rs := range reconstructed {
		asCandidates = append(asCandidates, types.Candidate{
			ID:         rs.ID,
			Score:      float32(rs.CombinedScore),
			Payload:    rs.Payload,
			Content:    rs.Content,
			SearchType: types.SearchTypeSectionReconstructed,
		}.WithFusionScore(rs.CombinedScore))
	}

	switch strategy {
	case types.MergeReplace:
		out := make([]types.Candidate, 0, len(original)+len(asCandidates))
		out = append(out, asCandidates...)
		for _, c := range original {
			if !covered[c.ID] {
				out = append(out, c)
			}
		}
		return out
	case types.MergeInterleave:
		out := make([]types.Candidate, 0, len(original)+len(asCandidates))
		for _, c := range original {
			if !covered[c.ID] {
				out = append(out, c)
			}
		}
		out = append(out, asCandidates...)
		sort.SliceStable(out, func(i, j int) bool {
			return scoreOf(out[i]) > scoreOf(out[j])
		})
		return out
	default: // append
		out := make([]types.Candidate, 0, len(original)+len(asCandidates))
		out = append(out, original...)
		out = append(out, asCandidates...)
		return out
	}
}

func scoreOf(c types.Candidate) float64 {
	if c.FusionScore != nil {
		return *c.FusionScore
	}
	return float64(c.Score)
}

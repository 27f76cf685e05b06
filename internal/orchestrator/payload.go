package orchestrator

import (
	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/types"
)

// decodeMetadata decodes the loosely typed payload map a VectorSearch
// adapter returns into the DocumentMetadata shape the RBAC and section
// subsystems operate on.
func decodeMetadata(payload map[string]any) types.DocumentMetadata {
	m := types.DocumentMetadata{}
	if v, ok := payload["tenant"].(string); ok {
		m.Tenant = v
	}
	if v, ok := payload["docId"].(string); ok {
		m.DocID = v
	}
	if v, ok := payload["lang"].(string); ok {
		m.Lang = v
	}
	if v, ok := payload["sectionPath"].(string); ok {
		m.SectionPath = v
	}
	if v, ok := payload["title"].(string); ok {
		m.Title = v
	}
	if v, ok := payload["header"].(string); ok {
		m.Header = v
	}
	if v, ok := payload["path"].(string); ok {
		m.Path = v
	}
	switch acl := payload["acl"].(type) {
	case []string:
		m.ACL = acl
	case []any:
		out := make([]string, 0, len(acl))
		for _, v := range acl {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		m.ACL = out
	}
	return m
}

// candidatesFromPoints converts vector-search hits into Candidates tagged
// with searchType, carrying the raw score forward as VectorScore.
func candidatesFromPoints(points []capability.ScoredPoint, searchType types.SearchType) []types.Candidate {
	out := make([]types.Candidate, 0, len(points))
	for _, p := range points {
		content, _ := p.Payload["content"].(string)
		c := types.Candidate{
			ID:         p.ID,
			Score:      float32(p.Score),
			Payload:    decodeMetadata(p.Payload),
			Content:    content,
			SearchType: searchType,
		}
		c = c.WithVectorScore(p.Score)
		out = append(out, c)
	}
	return out
}

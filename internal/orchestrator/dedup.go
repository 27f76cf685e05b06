package orchestrator

import (
	"sort"

	"github.com/orneryd/retrievalcore/internal/types"
)

// dedupByDoc keeps up to perDoc highest-scored chunks per docId, §4.1 step
// 7 (3 by default, 5 when the intent detector flags a temporal query).
func dedupByDoc(candidates []types.Candidate, perDoc int) []types.Candidate {
	if perDoc <= 0 {
		return candidates
	}
	byDoc := make(map[string][]types.Candidate)
	order := make([]string, 0)
	for _, c := range candidates {
		doc := c.Payload.DocID
		if _, ok := byDoc[doc]; !ok {
			order = append(order, doc)
		}
		byDoc[doc] = append(byDoc[doc], c)
	}

	out := make([]types.Candidate, 0, len(candidates))
	for _, doc := range order {
		group := byDoc[doc]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
		if len(group) > perDoc {
			group = group[:perDoc]
		}
		out = append(out, group...)
	}
	return out
}

// Package rbac implements the tenant+ACL access predicate described in
// §3's Invariants: a candidate is visible to a principal only when its
// tenant matches the principal's tenant and its ACL intersects the
// principal's groups, id, or the "public" sentinel. The membership-check
// shape is grounded on the teacher's User.HasRole/HasPermission in
// pkg/auth/auth.go, generalized from a fixed role set to an open ACL list.
package rbac

import (
	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/types"
)

const publicGroup = "public"

// CanAccess reports whether principal may see a document with the given
// metadata.
func CanAccess(principal types.Principal, doc types.DocumentMetadata) bool {
	if doc.Tenant != principal.Tenant {
		return false
	}
	return aclIntersects(doc.ACL, principal)
}

func aclIntersects(acl []string, principal types.Principal) bool {
	if len(acl) == 0 {
		return false
	}
	allowed := make(map[string]bool, len(principal.Groups)+2)
	allowed[principal.ID] = true
	allowed[publicGroup] = true
	for _, g := range principal.Groups {
		allowed[g] = true
	}
	for _, entry := range acl {
		if allowed[entry] {
			return true
		}
	}
	return false
}

// Filter returns the subset of candidates principal may access.
func Filter(principal types.Principal, candidates []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if CanAccess(principal, c.Payload) {
			out = append(out, c)
		}
	}
	return out
}

// MustClauses builds the structural filter predicates a LexicalStore/
// VectorSearch adapter should apply server-side, as a defense-in-depth
// complement to the in-process Filter pass.
func MustClauses(principal types.Principal) []capability.MustClause {
	return []capability.MustClause{
		{Field: "tenant", Value: principal.Tenant},
	}
}

// VectorFilter builds the simple field-equality filter the VectorSearch
// capability accepts.
func VectorFilter(principal types.Principal) map[string]string {
	return map[string]string{"tenant": principal.Tenant}
}

// Package lexical turns a scroll-capable LexicalStore into a scored top-K
// keyword search (§4.2). Tokenization is grounded on the teacher's
// pkg/search/fulltext_index.go tokenize/stopWords, generalized to operate
// against the capability.LexicalStore.Scroll boundary instead of an
// in-process inverted index.
package lexical

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/orneryd/retrievalcore/internal/capability"
	"github.com/orneryd/retrievalcore/internal/keywordpoints"
	"github.com/orneryd/retrievalcore/internal/types"
)

// stopWords is the closed stoplist from §6: exactly the documented
// reference list, which a tenant does not extend.
var stopWords = map[string]bool{
	"what": true, "is": true, "the": true, "of": true, "a": true,
	"an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "with": true,
	"by": true, "can": true, "you": true, "please": true,
}

// Tokenize lowercases, strips punctuation, drops stopwords and tokens of
// length <= 2, exactly the query-tokenization rule in §4.2.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if stopWords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// defaultKOverFetch is the scroll limit (row count) per search;
// domainlessKOverFetch replaces it when domainless ranking is enabled.
const (
	defaultKOverFetch    = 50
	domainlessKOverFetch = 150
)

const highValueMultiplier = 5.0
const longTokenMultiplier = 2.0
const longTokenLen = 6
const fullCoverageBoost = 5.0
const maxScore = 10.0
const minDocLengthForNormalization = 50

// fieldConcatWeight holds the scored fields and their weight in the concatenation described in
// §4.2's Scoring paragraph (content + 3*title + 5*docId + 3*path).
var fieldConcatWeight = map[string]int{
	"content":     1,
	"title":       3,
	"docId":       5,
	"path":        3,
	"header":      1,
	"sectionPath": 1,
}

// Options parameterizes one lexical search call.
type Options struct {
	HighValueTokens   []string
	DomainlessRanking bool
}

// Search tokenizes query, issues a scroll against store with the RBAC/user
// filter conjoined and a should-clause per term across the fielded
// predicates in §4.2, then scores and ranks the returned documents.
func Search(ctx context.Context, store capability.LexicalStore, collection string, query string, limit int, rbac []capability.MustClause, userFilter []capability.MustClause, opts Options) ([]types.Candidate, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	overFetch := defaultKOverFetch
	if opts.DomainlessRanking {
		overFetch = domainlessKOverFetch
	}

	var should []capability.ShouldClause
	for _, term := range terms {
		for _, field := range []string{"content", "title", "docId", "header", "sectionPath"} {
			should = append(should, capability.ShouldClause{Field: field, Term: term})
		}
	}

	must := append(append([]capability.MustClause{}, rbac...), userFilter...)
	filter := capability.ScrollFilter{Must: must, Should: should}

	rows, err := store.Scroll(ctx, collection, filter, overFetch)
	if err != nil {
		return nil, err
	}

	highValue := make(map[string]bool, len(opts.HighValueTokens))
	for _, t := range opts.HighValueTokens {
		highValue[strings.ToLower(t)] = true
	}

	candidates := make([]types.Candidate, 0, len(rows))
	for _, row := range rows {
		c, ok := scoreDoc(row, terms, highValue)
		if ok {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i := range candidates {
		candidates[i].SearchType = types.SearchTypeKeywordOnly
	}

	return candidates, nil
}

func scoreDoc(row capability.ScrolledPoint, terms []string, highValue map[string]bool) (types.Candidate, bool) {
	fields := map[string]string{}
	for _, f := range []string{"content", "title", "docId", "path", "header", "sectionPath"} {
		if v, ok := row.Payload[f].(string); ok {
			fields[f] = v
		}
	}

	termHits := make(map[string][]types.TermHit)
	tokenPositions := make(map[string][]int)

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		var hits []types.TermHit
		for field, text := range fields {
			tokens := Tokenize(text)
			docLen := float64(len(tokens))
			if docLen < minDocLengthForNormalization {
				docLen = minDocLengthForNormalization
			}

			exact, sub := 0, 0
			var positions []int
			for i, tok := range tokens {
				kind := keywordpoints.AssignMatchKind(term, tok)
				switch {
				case tok == term:
					exact++
					positions = append(positions, i)
				case strings.Contains(tok, term):
					sub++
					positions = append(positions, i)
				case kind == types.MatchFuzzy:
					positions = append(positions, i)
				default:
					continue
				}
				hits = append(hits, types.TermHit{Field: field, MatchKind: kind, Positions: []int{i}})
			}
			if exact == 0 && sub == 0 {
				continue
			}

			weight := (float64(exact)*3.0 + float64(sub)) / docLen
			weight *= float64(fieldConcatWeight[field])
			if highValue[term] {
				weight *= highValueMultiplier
			}
			if len(term) >= longTokenLen {
				weight *= longTokenMultiplier
			}
			score += weight

			if len(positions) > 0 {
				tokenPositions[term] = append(tokenPositions[term], positions...)
			}
		}
		if len(hits) > 0 {
			termHits[term] = hits
			matchedTerms++
		}
	}

	if matchedTerms == 0 {
		return types.Candidate{}, false
	}

	if matchedTerms == len(terms) {
		score *= fullCoverageBoost
	}
	if score > maxScore {
		score = maxScore
	}

	docID, _ := row.Payload["docId"].(string)
	title, _ := row.Payload["title"].(string)
	header, _ := row.Payload["header"].(string)
	path, _ := row.Payload["path"].(string)
	sectionPath, _ := row.Payload["sectionPath"].(string)
	tenant, _ := row.Payload["tenant"].(string)
	content, _ := row.Payload["content"].(string)

	var acl []string
	if raw, ok := row.Payload["acl"].([]string); ok {
		acl = raw
	}

	c := types.Candidate{
		ID:      row.ID,
		Score:   float32(score),
		Content: content,
		Payload: types.DocumentMetadata{
			Tenant:      tenant,
			DocID:       docID,
			ACL:         acl,
			SectionPath: sectionPath,
			Title:       title,
			Header:      header,
			Path:        path,
		},
		TermHits:       termHits,
		TokenPositions: tokenPositions,
	}
	c = c.WithKeywordScore(score)
	return c, true
}

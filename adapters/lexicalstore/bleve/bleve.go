// Package bleve implements capability.LexicalStore over a
// github.com/blevesearch/bleve/v2 index. Grounded on
// _examples/Aman-CERP-amanmcp/internal/store/bm25.go's BleveBM25Index: the
// mem-only-vs-on-disk index construction, batch indexing, and
// SearchInContext usage are carried over. The must/should ScrollFilter this
// adapter serves (§4.2) has no teacher analogue, so it is built from bleve's
// own conjunction/disjunction query types (bleve.NewConjunctionQuery,
// bleve.NewDisjunctionQuery, bleve.NewMatchQuery) per bleve's documented
// composite-query API.
package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/orneryd/retrievalcore/internal/capability"
)

// Store is a capability.LexicalStore over one bleve index. A bleve
// document stores its full source payload as a flat field map so that
// ScrollFilter predicates and payload reconstruction both work directly off
// what bleve indexed, without a side-channel document store.
type Store struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// New opens (or creates) a bleve index at path. An empty path creates an
// in-memory index, matching the teacher's NewBleveBM25Index convention for
// tests and ephemeral deployments.
func New(path string) (*Store, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("bleve: create index dir: %w", mkErr)
			}
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bleve: open/create index: %w", err)
	}

	return &Store{index: idx}, nil
}

// Index adds or replaces documents. Each payload is flattened into the
// bleve document directly; "content" is the field lexical search matches
// against, per §4.2's should-clause semantics.
func (s *Store) Index(docs map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bleve: index is closed")
	}

	batch := s.index.NewBatch()
	for id, payload := range docs {
		if err := batch.Index(id, payload); err != nil {
			return fmt.Errorf("bleve: index document %s: %w", id, err)
		}
	}
	return s.index.Batch(batch)
}

// Delete removes documents by ID.
func (s *Store) Delete(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bleve: index is closed")
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// Scroll implements capability.LexicalStore. It builds a conjunction over
// filter.Must (structural equality) and, when filter.Should is non-empty,
// ANDs in a disjunction over filter.Should (textual term matches against
// each clause's field) — the must/should shape §4.2 describes for the
// lexical search adapter.
func (s *Store) Scroll(ctx context.Context, collection string, filter capability.ScrollFilter, limit int) ([]capability.ScrolledPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("bleve: index is closed")
	}
	if limit <= 0 {
		limit = 10
	}

	var conjuncts []bleve.Query
	for _, must := range filter.Must {
		mq := bleve.NewMatchQuery(must.Value)
		mq.SetField(must.Field)
		conjuncts = append(conjuncts, mq)
	}
	if len(filter.Should) > 0 {
		disjuncts := make([]bleve.Query, len(filter.Should))
		for i, should := range filter.Should {
			sq := bleve.NewMatchQuery(should.Term)
			sq.SetField(should.Field)
			disjuncts[i] = sq
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}

	var query bleve.Query
	switch {
	case len(conjuncts) == 0:
		query = bleve.NewMatchAllQuery()
	case len(conjuncts) == 1:
		query = conjuncts[0]
	default:
		query = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(query)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve: search: %w", err)
	}

	out := make([]capability.ScrolledPoint, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, capability.ScrolledPoint{ID: hit.ID, Payload: hit.Fields})
	}
	return out, nil
}

// Close releases the underlying index handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.index.Close()
}

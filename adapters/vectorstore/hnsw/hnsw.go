// Package hnsw implements capability.VectorSearch over an in-process
// github.com/coder/hnsw graph, the embeddable counterpart to the remote
// qdrant adapter. Grounded on
// _examples/Aman-CERP-amanmcp/internal/store/hnsw.go: the string<->uint64
// key-mapping pattern, lazy deletion on re-add (coder/hnsw has a known bug
// deleting the graph's last node), and the distance-to-score conversion are
// carried over from that file; vector normalization reuses the teacher's
// own pkg/math/vector.NormalizeInPlace rather than a second copy of it.
package hnsw

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/orneryd/retrievalcore/internal/capability"
	vectormath "github.com/orneryd/retrievalcore/pkg/math/vector"
)

// Config mirrors the teacher's VectorStoreConfig fields this adapter needs.
type Config struct {
	Dimensions int
	Metric     string // "cos" or "l2"; default "cos"
	M          int
	EfSearch   int
}

// DefaultConfig returns coder/hnsw's own recommended defaults, per the
// teacher's NewHNSWStore.
func DefaultConfig(dimensions int) Config {
	return Config{Dimensions: dimensions, Metric: "cos", M: 16, EfSearch: 20}
}

type point struct {
	key     uint64
	payload map[string]any
}

// Store is an in-process, per-collection HNSW vector index. One Store holds
// one logical collection; a multi-collection deployment keys a map of these
// by collection name at the call site.
type Store struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  Config
	idMap   map[string]uint64
	keyMap  map[uint64]string
	points  map[uint64]point
	nextKey uint64
	closed  bool
}

// New builds an empty Store per cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be > 0")
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		points: make(map[uint64]point),
	}, nil
}

// Upsert inserts or replaces the vector and payload for id.
func (s *Store) Upsert(id string, vector []float32, payload map[string]any) error {
	if len(vector) != s.config.Dimensions {
		return fmt.Errorf("hnsw: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(vector))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("hnsw: store is closed")
	}

	if existingKey, ok := s.idMap[id]; ok {
		// Lazy deletion: orphan the old key rather than calling graph.Delete,
		// which breaks when it removes the graph's last remaining node.
		delete(s.points, existingKey)
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	vec := append([]float32(nil), vector...)
	if s.config.Metric == "cos" {
		vectormath.NormalizeInPlace(vec)
	}

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	s.points[key] = point{key: key, payload: payload}
	return nil
}

// Delete removes ids from the store (lazy deletion, per the teacher's
// coder/hnsw workaround).
func (s *Store) Delete(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.points, key)
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
}

// Search implements capability.VectorSearch. collection is accepted for
// interface compatibility with a multi-collection deployment; a single
// Store instance already scopes one collection. filter is applied as an
// exact string-equality predicate against the stored payload after the
// graph search, since coder/hnsw has no native filtered-search support.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, limit int, filter map[string]string) ([]capability.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("hnsw: store is closed")
	}
	if len(queryVector) != s.config.Dimensions {
		return nil, fmt.Errorf("hnsw: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(queryVector))
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := append([]float32(nil), queryVector...)
	if s.config.Metric == "cos" {
		vectormath.NormalizeInPlace(query)
	}

	// Over-fetch so post-filtering still has enough candidates to satisfy
	// limit when a filter excludes some hits.
	fetch := limit
	if len(filter) > 0 {
		fetch = limit * 4
		if fetch > s.graph.Len() {
			fetch = s.graph.Len()
		}
	}

	nodes := s.graph.Search(query, fetch)
	out := make([]capability.ScoredPoint, 0, len(nodes))
	for _, node := range nodes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		id, idOK := s.keyMap[node.Key]
		p, ok := s.points[node.Key]
		if !ok || !idOK {
			continue
		}
		if !matches(p.payload, filter) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		out = append(out, capability.ScoredPoint{
			ID:      id,
			Score:   distanceToScore(distance, s.config.Metric),
			Payload: p.payload,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(payload map[string]any, filter map[string]string) bool {
	for field, want := range filter {
		got, ok := payload[field]
		if !ok {
			return false
		}
		s, ok := got.(string)
		if !ok || s != want {
			return false
		}
	}
	return true
}

// distanceToScore converts a coder/hnsw distance into a 0..1 similarity
// score, matching the teacher's conversion for each supported metric.
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return float64(1.0 / (1.0 + distance))
	default:
		return float64(1.0 - distance/2.0)
	}
}

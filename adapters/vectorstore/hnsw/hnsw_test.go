package hnsw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SearchReturnsNearestByCosine(t *testing.T) {
	s, err := New(DefaultConfig(3))
	require.NoError(t, err)

	require.NoError(t, s.Upsert("a", []float32{1, 0, 0}, map[string]any{"docId": "docA"}))
	require.NoError(t, s.Upsert("b", []float32{0, 1, 0}, map[string]any{"docId": "docB"}))
	require.NoError(t, s.Upsert("c", []float32{0.9, 0.1, 0}, map[string]any{"docId": "docC"}))

	hits, err := s.Search(context.Background(), "docs", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
}

func TestStore_SearchAppliesPayloadFilter(t *testing.T) {
	s, err := New(DefaultConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Upsert("a", []float32{1, 0}, map[string]any{"tenant": "t1"}))
	require.NoError(t, s.Upsert("b", []float32{1, 0.01}, map[string]any{"tenant": "t2"}))

	hits, err := s.Search(context.Background(), "docs", []float32{1, 0}, 5, map[string]string{"tenant": "t2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestStore_UpsertReplacesExistingID(t *testing.T) {
	s, err := New(DefaultConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Upsert("a", []float32{1, 0}, map[string]any{"v": 1}))
	require.NoError(t, s.Upsert("a", []float32{0, 1}, map[string]any{"v": 2}))

	hits, err := s.Search(context.Background(), "docs", []float32{0, 1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Payload["v"])
}

func TestStore_DeleteExcludesFromSearch(t *testing.T) {
	s, err := New(DefaultConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Upsert("a", []float32{1, 0}, nil))
	s.Delete("a")

	hits, err := s.Search(context.Background(), "docs", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_EmptyGraphReturnsNoResults(t *testing.T) {
	s, err := New(DefaultConfig(2))
	require.NoError(t, err)
	hits, err := s.Search(context.Background(), "docs", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNew_RejectsNonPositiveDimensions(t *testing.T) {
	_, err := New(Config{Dimensions: 0})
	assert.Error(t, err)
}

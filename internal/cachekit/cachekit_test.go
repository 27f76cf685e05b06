package cachekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_PutGetRoundTrips(t *testing.T) {
	c := NewLocalCache[string](10, time.Minute)
	c.Put("a", "value-a")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", v)
	assert.Equal(t, 1, c.Len())
}

func TestLocalCache_MissingKeyIsNotOK(t *testing.T) {
	c := NewLocalCache[string](10, time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestLocalCache_RemoveEvicts(t *testing.T) {
	c := NewLocalCache[int](10, time.Minute)
	c.Put("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_TTLExpiresEntries(t *testing.T) {
	c := NewLocalCache[int](10, 10*time.Millisecond)
	c.Put("a", 1)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLocalCache_DefaultsMaxSizeWhenNonPositive(t *testing.T) {
	c := NewLocalCache[int](0, time.Minute)
	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

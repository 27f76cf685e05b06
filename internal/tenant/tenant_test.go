package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/retrievalcore/internal/types"
)

func TestBootstrapDefaults_HonorsEnvOverride(t *testing.T) {
	t.Setenv("RETRIEVALCORE_VECTOR_WEIGHT", "0.55")
	t.Setenv("RETRIEVALCORE_DEFAULT_TENANT", "acme")

	cfg := BootstrapDefaults()
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, 0.55, cfg.Search.VectorWeight)
}

func TestBootstrapDefaults_FallsBackWhenEnvUnset(t *testing.T) {
	cfg := BootstrapDefaults()
	assert.Equal(t, types.DefaultSearchConfig().VectorWeight, cfg.Search.VectorWeight)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutGetRoundTrips(t *testing.T) {
	store := openTestStore(t)
	cfg := types.TenantConfig{TenantID: "t1", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
	cfg.Search.VectorWeight = 0.42

	require.NoError(t, store.Put(cfg))

	got, err := store.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, 0.42, got.Search.VectorWeight)
}

func TestStore_GetMissingReturnsErrNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing-tenant")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteRemovesEntry(t *testing.T) {
	store := openTestStore(t)
	cfg := types.TenantConfig{TenantID: "t2", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
	require.NoError(t, store.Put(cfg))
	require.NoError(t, store.Delete("t2"))

	_, err := store.Get("t2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ResolveFallsBackToDefaultsForUnknownTenant(t *testing.T) {
	store := openTestStore(t)
	registry := NewRegistry(store, time.Minute, 10)

	cfg := registry.Resolve("never-configured")
	assert.Equal(t, "never-configured", cfg.TenantID)
}

func TestRegistry_ResolveReturnsStoredConfig(t *testing.T) {
	store := openTestStore(t)
	cfg := types.TenantConfig{TenantID: "t3", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
	cfg.Search.KeywordEnabled = false
	require.NoError(t, store.Put(cfg))

	registry := NewRegistry(store, time.Minute, 10)
	got := registry.Resolve("t3")
	assert.False(t, got.Search.KeywordEnabled)
}

func TestRegistry_UpdateInvalidatesCacheImmediately(t *testing.T) {
	store := openTestStore(t)
	registry := NewRegistry(store, time.Hour, 10)

	cfg := types.TenantConfig{TenantID: "t4", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
	require.NoError(t, store.Put(cfg))
	first := registry.Resolve("t4")
	assert.True(t, first.Search.KeywordEnabled)

	cfg.Search.KeywordEnabled = false
	require.NoError(t, registry.Update(cfg))

	second := registry.Resolve("t4")
	assert.False(t, second.Search.KeywordEnabled)
}

func TestMarshalJSON_ProducesIndentedDocument(t *testing.T) {
	cfg := types.TenantConfig{TenantID: "t5", Search: types.DefaultSearchConfig(), Guardrail: types.DefaultGuardrailConfig()}
	raw, err := MarshalJSON(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "t5")
}

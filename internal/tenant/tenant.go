// Package tenant is the per-tenant configuration registry: bootstrap
// defaults loaded from the environment (grounded on the teacher's
// pkg/config/config.go LoadFromEnv getEnv* helpers), durable YAML-encoded
// documents persisted in badger (repurposed from the teacher's node/edge
// storage engine to a small keyed document store), and a TTL cache
// (internal/cachekit) sitting in front of both so a hot tenant config read
// never touches disk.
package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/retrievalcore/internal/cachekit"
	"github.com/orneryd/retrievalcore/internal/types"
)

// ErrNotFound is returned when a tenant has no stored configuration and no
// bootstrap default applies.
var ErrNotFound = errors.New("tenant: config not found")

const configKeyPrefix = "tenantconfig:"

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// BootstrapDefaults builds the process-wide fallback TenantConfig from
// environment variables, the same pattern as the teacher's LoadFromEnv:
// every field has a getEnv*-sourced default so the service runs with no
// configuration present at all.
func BootstrapDefaults() types.TenantConfig {
	search := types.DefaultSearchConfig()
	search.VectorWeight = getEnvFloat("RETRIEVALCORE_VECTOR_WEIGHT", search.VectorWeight)
	search.KeywordWeight = getEnvFloat("RETRIEVALCORE_KEYWORD_WEIGHT", search.KeywordWeight)
	search.KeywordEnabled = getEnvBool("RETRIEVALCORE_KEYWORD_ENABLED", search.KeywordEnabled)
	search.RRFK = getEnvInt("RETRIEVALCORE_RRF_K", search.RRFK)
	search.RerankerEnabled = getEnvBool("RETRIEVALCORE_RERANKER_ENABLED", search.RerankerEnabled)
	search.RerankerTopK = getEnvInt("RETRIEVALCORE_RERANKER_TOPK", search.RerankerTopK)

	guardrail := types.DefaultGuardrailConfig()
	guardrail.Enabled = getEnvBool("RETRIEVALCORE_GUARDRAIL_ENABLED", guardrail.Enabled)
	guardrail.BypassEnabled = getEnvBool("RETRIEVALCORE_GUARDRAIL_BYPASS", guardrail.BypassEnabled)
	guardrail.Threshold.MinConfidence = getEnvFloat("RETRIEVALCORE_GUARDRAIL_MIN_CONFIDENCE", guardrail.Threshold.MinConfidence)

	return types.TenantConfig{
		TenantID:  getEnv("RETRIEVALCORE_DEFAULT_TENANT", "default"),
		Search:    search,
		Guardrail: guardrail,
	}
}

// Store is the durable per-tenant config backing store.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) a badger database at dir for tenant config
// persistence.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening tenant config store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger handle.
func (s *Store) Close() error { return s.db.Close() }

// Get loads a tenant's stored configuration, ErrNotFound if absent.
func (s *Store) Get(tenantID string) (types.TenantConfig, error) {
	var cfg types.TenantConfig
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(configKeyPrefix + tenantID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return yaml.Unmarshal(val, &cfg)
		})
	})
	return cfg, err
}

// Put persists a tenant's configuration.
func (s *Store) Put(cfg types.TenantConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(configKeyPrefix+cfg.TenantID), raw)
	})
}

// Delete removes a tenant's stored configuration.
func (s *Store) Delete(tenantID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(configKeyPrefix + tenantID))
	})
}

// Registry is the read path every request consults: a TTL cache in front
// of Store, falling back to BootstrapDefaults for unknown tenants.
type Registry struct {
	store    *Store
	cache    cachekit.Cache[types.TenantConfig]
	defaults types.TenantConfig
}

// NewRegistry builds a Registry with a local TTL cache.
func NewRegistry(store *Store, ttl time.Duration, cacheSize int) *Registry {
	return &Registry{
		store:    store,
		cache:    cachekit.NewLocalCache[types.TenantConfig](cacheSize, ttl),
		defaults: BootstrapDefaults(),
	}
}

// NewRegistryWithCache builds a Registry over a caller-supplied cache
// backend, e.g. a cachekit.RedisCache so multiple retrievalcore instances
// share one tenant config cache instead of each warming its own.
func NewRegistryWithCache(store *Store, cache cachekit.Cache[types.TenantConfig]) *Registry {
	return &Registry{
		store:    store,
		cache:    cache,
		defaults: BootstrapDefaults(),
	}
}

// Resolve returns the effective TenantConfig for tenantID: cache, then
// store, then the bootstrap defaults scoped to this tenant.
func (r *Registry) Resolve(tenantID string) types.TenantConfig {
	if cfg, ok := r.cache.Get(tenantID); ok {
		return cfg
	}

	cfg, err := r.store.Get(tenantID)
	if err != nil {
		cfg = r.defaults
		cfg.TenantID = tenantID
		if !errors.Is(err, ErrNotFound) {
			// A transient store error (e.g. badger mid-compaction) is not the
			// same as "tenant genuinely has no config": don't cache the
			// fallback, so the next Resolve retries the store instead of
			// serving a possibly-wrong default for the full TTL.
			return cfg
		}
	}
	r.cache.Put(tenantID, cfg)
	return cfg
}

// Update persists cfg and invalidates the cached copy so the next Resolve
// observes it immediately.
func (r *Registry) Update(cfg types.TenantConfig) error {
	if err := r.store.Put(cfg); err != nil {
		return err
	}
	r.cache.Remove(cfg.TenantID)
	return nil
}

// MarshalJSON is used by the CLI's config-dump command.
func MarshalJSON(cfg types.TenantConfig) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

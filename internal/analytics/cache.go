package analytics

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"graphrag-backend/internal/artifact"
	appErrors "graphrag-backend/pkg/errors"
	"graphrag-backend/pkg/observability"
)

// DefaultTopLimit is the top-relationships page size.
const DefaultTopLimit = 10

// Cache memoizes derived metrics per artifact generation. An entry tagged
// with a stale generation is recomputed on the next read, concurrent
// misses on the same key collapse into one computation, and Invalidate
// drops everything at once.
type Cache struct {
	store   *artifact.Store
	logger  *zap.Logger
	metrics *observability.Collector

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	generation int64
	value      any
}

// NewCache creates a cache over the store.
func NewCache(store *artifact.Store, logger *zap.Logger, metrics *observability.Collector) *Cache {
	return &Cache{
		store:   store,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]entry),
	}
}

// Invalidate drops all memoized results. The supervisor calls this before
// reloading artifacts after a successful run.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.logger.Debug("Analytics cache invalidated", zap.Int("dropped", n))
}

// Statistics returns the corpus-wide summary for the current generation.
func (c *Cache) Statistics(ctx context.Context) (*Statistics, error) {
	return cached(c, "statistics", func(snap *artifact.Snapshot) (*Statistics, error) {
		return computeStatistics(snap), nil
	})
}

// EntityTypes returns the entity type histogram for the current generation.
func (c *Cache) EntityTypes(ctx context.Context) (*EntityTypeBreakdown, error) {
	return cached(c, "entity-types", func(snap *artifact.Snapshot) (*EntityTypeBreakdown, error) {
		return computeEntityTypes(snap), nil
	})
}

// TopRelationships returns the strongest relationships, at most limit of
// them. A non-positive limit falls back to DefaultTopLimit.
func (c *Cache) TopRelationships(ctx context.Context, limit int) (*TopRelationships, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	key := fmt.Sprintf("top-relationships:%d", limit)
	return cached(c, key, func(snap *artifact.Snapshot) (*TopRelationships, error) {
		return computeTopRelationships(snap, limit), nil
	})
}

// EntityAnalysis returns the centrality view of one entity.
func (c *Cache) EntityAnalysis(ctx context.Context, id string) (*EntityAnalysis, error) {
	key := "entity-analysis:" + id
	return cached(c, key, func(snap *artifact.Snapshot) (*EntityAnalysis, error) {
		a, ok := computeEntityAnalysis(snap, id)
		if !ok {
			return nil, appErrors.NewNotFound(fmt.Sprintf("entity %s not found", id))
		}
		return a, nil
	})
}

// cached implements the generation-tagged memoization. The snapshot is
// pinned once per call so a reload between the tag check and the
// computation cannot mix generations.
func cached[T any](c *Cache, key string, compute func(*artifact.Snapshot) (T, error)) (T, error) {
	var zero T

	snap, err := c.store.Snapshot()
	if err != nil {
		return zero, err
	}
	gen := snap.Generation()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.generation == gen {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return e.value.(T), nil
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	flightKey := fmt.Sprintf("%s@%d", key, gen)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		val, err := compute(snap)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{generation: gen, value: val}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Package cache provides the per-node simulation result cache: cache-aside
// reads with de-duplicated in-flight computation, and ancestor-path
// invalidation driven by the tree index.
//
// The cache stores RiskResults only, never rendered curves. Curve tick
// domains are a function of the whole display request, so a cached curve
// would be valid for exactly one combination of displayed nodes; the
// underlying results regenerate any curve in O(ticks).
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/models"
)

// AncestorResolver supplies the ancestor chain (node first, root last) for a
// node in a tree. The cache owns no tree knowledge of its own.
type AncestorResolver interface {
	AncestorPath(ctx context.Context, treeID, nodeID string) ([]string, error)
}

// Key identifies one cached simulation outcome.
type Key struct {
	TreeID string
	NodeID string
}

// Stats is a point-in-time snapshot of cache behavior.
type Stats struct {
	Entries       int            `json:"entries"`
	PerTree       map[string]int `json:"per_tree"`
	Hits          int64          `json:"hits"`
	Misses        int64          `json:"misses"`
	Invalidations int64          `json:"invalidations"`
}

// ResultCache caches simulation outcomes keyed by (treeID, nodeID).
//
// Reads observe entries atomically — an entry is either fully present or
// absent, never partially written. GetOrCompute guarantees at most one
// in-flight computation per key; concurrent callers for the same missing key
// share a single computation. A caller abandoning its request does not
// cancel a shared in-flight computation.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[Key]*models.RiskResult

	flight   singleflight.Group
	resolver AncestorResolver
	logger   *common.Logger

	hits          int64
	misses        int64
	invalidations int64
}

// NewResultCache creates an empty cache. The resolver is consulted on
// invalidation to walk ancestor chains.
func NewResultCache(resolver AncestorResolver, logger *common.Logger) *ResultCache {
	return &ResultCache{
		entries:  make(map[Key]*models.RiskResult),
		resolver: resolver,
		logger:   logger,
	}
}

// Get returns the cached result for a node, or nil. A miss is an expected
// outcome, not an error.
func (c *ResultCache) Get(treeID, nodeID string) *models.RiskResult {
	c.mu.RLock()
	result, ok := c.entries[Key{TreeID: treeID, NodeID: nodeID}]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil
	}
	atomic.AddInt64(&c.hits, 1)
	return result
}

// Put stores a result for a node, replacing any existing entry.
func (c *ResultCache) Put(treeID, nodeID string, result *models.RiskResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	c.entries[Key{TreeID: treeID, NodeID: nodeID}] = result
	c.mu.Unlock()
}

// ComputeFunc produces a result for a missing key.
type ComputeFunc func(ctx context.Context) (*models.RiskResult, error)

// GetOrCompute returns the cached result for a node, computing and caching
// it on a miss. Concurrent calls for the same missing key are collapsed into
// one computation; every caller receives the same result. The boolean
// reports whether the value came from cache.
//
// The computation runs on the first caller's goroutine but is not cancelled
// when that caller's context ends — other callers may be waiting on it.
func (c *ResultCache) GetOrCompute(ctx context.Context, treeID, nodeID string, compute ComputeFunc) (*models.RiskResult, bool, error) {
	if result := c.Get(treeID, nodeID); result != nil {
		return result, true, nil
	}

	key := Key{TreeID: treeID, NodeID: nodeID}
	ch := c.flight.DoChan(treeID+"\x00"+nodeID, func() (interface{}, error) {
		// Re-check under flight: another caller may have populated the
		// entry between our miss and this execution.
		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		result, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Put(treeID, nodeID, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*models.RiskResult), false, nil
	case <-ctx.Done():
		// The shared computation keeps running for other waiters.
		return nil, false, ctx.Err()
	}
}

// Invalidate removes the entry for a node and every ancestor up to the root,
// returning the ids actually removed. Siblings and disjoint subtrees keep
// their entries. Invalidation is atomic with respect to subsequent reads: a
// read issued after Invalidate returns sees either absence or a result
// produced after the triggering change.
func (c *ResultCache) Invalidate(ctx context.Context, treeID, nodeID string) ([]string, error) {
	path, err := c.resolver.AncestorPath(ctx, treeID, nodeID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	var removed []string
	for _, id := range path {
		key := Key{TreeID: treeID, NodeID: id}
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed = append(removed, id)
		}
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.invalidations, 1)
	if c.logger != nil {
		c.logger.Debug().
			Str("tree_id", treeID).
			Str("node_id", nodeID).
			Int("removed", len(removed)).
			Msg("Cache invalidated along ancestor path")
	}
	return removed, nil
}

// DropTree removes every entry belonging to one tree, returning the count.
// Used when a whole tree snapshot is deleted and no ancestor path exists to
// walk anymore.
func (c *ResultCache) DropTree(treeID string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if key.TreeID == treeID {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		atomic.AddInt64(&c.invalidations, 1)
	}
	return removed
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]*models.RiskResult)
	c.mu.Unlock()
}

// Stats returns a snapshot of entry counts and hit/miss counters.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	perTree := make(map[string]int)
	for key := range c.entries {
		perTree[key.TreeID]++
	}
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:       entries,
		PerTree:       perTree,
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Invalidations: atomic.LoadInt64(&c.invalidations),
	}
}

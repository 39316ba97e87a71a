// Package engine is the simulation facade: admission-controlled subtree
// simulation with cache-aside leaves, monoidal bottom-up aggregation, and
// loss exceedance curve generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/risquanter/riskcast/internal/cache"
	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
	"github.com/risquanter/riskcast/internal/sim"
	"github.com/risquanter/riskcast/internal/tree"
)

// ErrBusy signals that the engine is at its concurrency capacity and the
// request waited out its queue allowance. It is expected backpressure, not a
// failure — the caller should retry later. No retry happens inside the
// engine.
var ErrBusy = errors.New("simulation capacity reached, try again later")

// TreeIndexer is the slice of the tree service the engine consumes: a
// validated, immutable index per tree snapshot.
type TreeIndexer interface {
	Index(ctx context.Context, treeID string) (*tree.Index, error)
}

// Service implements interfaces.EngineService.
type Service struct {
	trees    TreeIndexer
	results  *cache.ResultCache
	logger   *common.Logger
	cfg      common.SimulationConfig
	defaults models.SeedTriple

	// sem bounds concurrent simulation requests system-wide. Acquisition
	// suspends the caller; release is deferred on every exit path.
	sem *semaphore.Weighted
}

// NewService creates a new engine service.
func NewService(trees TreeIndexer, results *cache.ResultCache, cfg common.SimulationConfig, logger *common.Logger) *Service {
	return &Service{
		trees:    trees,
		results:  results,
		logger:   logger,
		cfg:      cfg,
		defaults: models.DefaultSeeds(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// SetDefaultSeeds replaces the seed triple used for requests that do not
// supply one. The composition root calls this with the triple persisted in
// system storage, so a deployment keeps its sampling identity across
// restarts and upgrades.
func (s *Service) SetDefaultSeeds(seeds models.SeedTriple) {
	if seeds != (models.SeedTriple{}) {
		s.defaults = seeds
	}
}

// acquire admits the request or reports busy after the queue timeout.
func (s *Service) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.GetQueueTimeout())
	defer cancel()

	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

// normalize fills request defaults and clamps the trial count.
func (s *Service) normalize(opts interfaces.SimulateOptions) interfaces.SimulateOptions {
	if opts.NTrials <= 0 {
		opts.NTrials = s.cfg.DefaultTrials
	}
	if opts.NTrials > s.cfg.MaxTrials {
		opts.NTrials = s.cfg.MaxTrials
	}
	if opts.Seeds == (models.SeedTriple{}) {
		opts.Seeds = s.defaults
	}
	return opts
}

// ComputeResult simulates the subtree rooted at nodeID and returns the
// aggregated outcome summary, with per-child summaries attached down to
// opts.Depth levels (0 means the node alone, negative unbounded).
func (s *Service) ComputeResult(ctx context.Context, treeID, nodeID string, opts interfaces.SimulateOptions) (*models.ResultSummary, error) {
	opts = s.normalize(opts)

	idx, err := s.trees.Index(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if idx.Node(nodeID) == nil {
		return nil, fmt.Errorf("node '%s' not found in tree '%s'", nodeID, treeID)
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	result, fromCache, err := s.computeNode(ctx, idx, treeID, nodeID, opts)
	if err != nil {
		s.logger.Warn().Err(err).Str("tree_id", treeID).Str("node_id", nodeID).Msg("Simulation failed")
		return nil, err
	}
	durationMS := time.Since(start).Milliseconds()

	summary := s.buildSummary(idx, treeID, nodeID, result, opts, opts.Depth)
	summary.CacheHit = fromCache
	summary.DurationMS = durationMS

	s.logger.Debug().
		Str("tree_id", treeID).
		Str("node_id", nodeID).
		Int("n_trials", opts.NTrials).
		Bool("cache_hit", fromCache).
		Int64("duration_ms", durationMS).
		Msg("Simulation completed")
	return summary, nil
}

// computeNode produces the full-subtree result for one node, cache-aside at
// every level. A leaf runs the trial sampler; a portfolio combines its
// children, simulated concurrently up to the adaptive fan-out. The returned
// value is always the exact aggregate of the entire subtree — cache entries
// must mean the same thing on every request.
func (s *Service) computeNode(ctx context.Context, idx *tree.Index, treeID, nodeID string, opts interfaces.SimulateOptions) (*models.RiskResult, bool, error) {
	node := idx.Node(nodeID)

	if node.IsLeaf() {
		return s.results.GetOrCompute(ctx, treeID, nodeID, func(cctx context.Context) (*models.RiskResult, error) {
			return sim.SimulateLeaf(cctx, treeID, node, opts.NTrials, opts.Seeds, sim.LeafOptions{
				ChunkSize: s.cfg.ChunkSize,
				Workers:   s.cfg.TrialWorkers,
			})
		})
	}

	return s.results.GetOrCompute(ctx, treeID, nodeID, func(cctx context.Context) (*models.RiskResult, error) {
		childIDs := idx.Children(nodeID)
		results := make([]*models.RiskResult, len(childIDs))

		fanout := s.effectiveFanout(opts.Parallelism, opts.NTrials, len(childIDs))
		g, gctx := errgroup.WithContext(cctx)
		g.SetLimit(fanout)

		for i, childID := range childIDs {
			g.Go(func() error {
				child, _, err := s.computeNode(gctx, idx, treeID, childID, opts)
				if err != nil {
					return err
				}
				results[i] = child
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		agg := models.AggregateResults(results)
		agg.Name = node.Name
		if agg.NTrials < opts.NTrials {
			// A portfolio of empty children still spans the trial count.
			agg.NTrials = opts.NTrials
		}
		return agg, nil
	})
}

// buildSummary projects results into the response shape, expanding children
// down to the requested depth. Every descendant's result is already cached
// by the compute pass, so expansion reads are hits.
func (s *Service) buildSummary(idx *tree.Index, treeID, nodeID string, result *models.RiskResult, opts interfaces.SimulateOptions, depth int) *models.ResultSummary {
	summary := result.Summarize(nodeID, opts.Seeds)
	if depth == 0 {
		return summary
	}

	for _, childID := range idx.Children(nodeID) {
		childResult := s.results.Get(treeID, childID)
		if childResult == nil {
			continue
		}
		child := s.buildSummary(idx, treeID, childID, childResult, opts, depth-1)
		child.CacheHit = true
		summary.Children = append(summary.Children, child)
	}
	return summary
}

// InvalidateNode evicts a node and its ancestors from the result cache.
func (s *Service) InvalidateNode(ctx context.Context, treeID, nodeID string) ([]string, error) {
	return s.results.Invalidate(ctx, treeID, nodeID)
}

// CacheStats reports cache behavior counters.
func (s *Service) CacheStats() cache.Stats {
	return s.results.Stats()
}

// ClearCache drops every cached result.
func (s *Service) ClearCache() {
	s.results.Clear()
}

// Package interfaces defines service contracts for Riskcast
package interfaces

import (
	"context"

	"github.com/risquanter/riskcast/internal/cache"
	"github.com/risquanter/riskcast/internal/models"
)

// SimulateOptions configures one simulation request.
type SimulateOptions struct {
	NTrials     int               // trial count; 0 means the configured default
	Depth       int               // subtree depth bound; negative means unbounded
	Parallelism int               // requested fan-out; 0 means adaptive default
	Seeds       models.SeedTriple // sampling seeds; zero value means DefaultSeeds
}

// EngineService runs simulations and produces curve bundles.
type EngineService interface {
	// ComputeResult simulates the subtree rooted at nodeID and returns the
	// aggregated outcome, serving leaves cache-aside.
	ComputeResult(ctx context.Context, treeID, nodeID string, opts SimulateOptions) (*models.ResultSummary, error)

	// ComputeCurves simulates (or fetches) results for the requested nodes
	// and renders their loss exceedance curves onto one shared tick domain.
	ComputeCurves(ctx context.Context, treeID string, nodeIDs []string, nTicks int, opts SimulateOptions) (*models.CurveBundle, error)

	// RenderCurveChart renders a curve bundle as a PNG chart.
	RenderCurveChart(bundle *models.CurveBundle) ([]byte, error)

	// CacheStats reports cache entry counts and hit/miss counters.
	CacheStats() cache.Stats

	// InvalidateNode evicts a node and its ancestors from the result cache,
	// returning the ids actually removed.
	InvalidateNode(ctx context.Context, treeID, nodeID string) ([]string, error)

	// ClearCache drops every cached result.
	ClearCache()
}

// TreeService manages risk tree snapshots and reports node mutations to the
// engine as invalidation signals.
type TreeService interface {
	// CreateTree validates and persists a new tree snapshot.
	CreateTree(ctx context.Context, name string, nodes []*models.RiskNode) (*models.RiskTree, error)

	// GetTree retrieves a tree snapshot by id.
	GetTree(ctx context.Context, treeID string) (*models.RiskTree, error)

	// ListTrees returns all stored tree ids and names.
	ListTrees(ctx context.Context) ([]*models.RiskTree, error)

	// DeleteTree removes a tree snapshot and its cached results.
	DeleteTree(ctx context.Context, treeID string) error

	// AddNode attaches a node beneath a parent, revalidates, persists, and
	// invalidates the parent's ancestor path.
	AddNode(ctx context.Context, treeID string, node *models.RiskNode) (*models.RiskTree, error)

	// UpdateNode replaces a node's definition, revalidates, persists, and
	// invalidates the node's ancestor path.
	UpdateNode(ctx context.Context, treeID string, node *models.RiskNode) (*models.RiskTree, error)

	// RemoveNode detaches a node (and its subtree), revalidates, persists,
	// and invalidates the former parent's ancestor path.
	RemoveNode(ctx context.Context, treeID, nodeID string) (*models.RiskTree, error)

	// AncestorPath resolves the node-to-root id chain for cache
	// invalidation.
	AncestorPath(ctx context.Context, treeID, nodeID string) ([]string, error)
}

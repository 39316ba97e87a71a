// Package treesvc manages risk tree snapshots: validated creation and
// mutation against the tree store, index caching, and the invalidation
// signal that every node mutation sends to the result cache.
package treesvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
	"github.com/risquanter/riskcast/internal/tree"
)

// Invalidator receives the mutation signal: evict a node and its ancestors.
// Wired to the result cache by the composition root after construction,
// because the cache in turn resolves ancestor paths through this service.
type Invalidator interface {
	Invalidate(ctx context.Context, treeID, nodeID string) ([]string, error)
	DropTree(treeID string) int
}

// Service implements interfaces.TreeService.
type Service struct {
	store  interfaces.TreeStore
	logger *common.Logger

	mu          sync.RWMutex
	indexes     map[string]*tree.Index // treeID -> validated index, dropped on mutation
	invalidator Invalidator
}

// NewService creates a new tree service.
func NewService(store interfaces.TreeStore, logger *common.Logger) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		indexes: make(map[string]*tree.Index),
	}
}

// SetInvalidator attaches the mutation signal target.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.mu.Lock()
	s.invalidator = inv
	s.mu.Unlock()
}

// CreateTree validates and persists a new tree snapshot.
func (s *Service) CreateTree(ctx context.Context, name string, nodes []*models.RiskNode) (*models.RiskTree, error) {
	if name == "" {
		return nil, fmt.Errorf("tree name is required")
	}

	// Index construction is the single validation point — an invalid arena
	// never reaches the store.
	idx, err := tree.BuildIndex(nodes)
	if err != nil {
		return nil, err
	}

	t := &models.RiskTree{
		ID:    uuid.NewString(),
		Name:  name,
		Nodes: nodes,
	}
	if err := s.store.SaveTree(ctx, t); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.indexes[t.ID] = idx
	s.mu.Unlock()

	s.logger.Info().Str("tree_id", t.ID).Str("name", name).Int("nodes", len(nodes)).Msg("Tree created")
	return t, nil
}

// GetTree retrieves a tree snapshot by id.
func (s *Service) GetTree(ctx context.Context, treeID string) (*models.RiskTree, error) {
	return s.store.GetTree(ctx, treeID)
}

// ListTrees returns all stored tree snapshots.
func (s *Service) ListTrees(ctx context.Context) ([]*models.RiskTree, error) {
	return s.store.ListTrees(ctx)
}

// DeleteTree removes a tree snapshot, its index, and all its cached results.
func (s *Service) DeleteTree(ctx context.Context, treeID string) error {
	if err := s.store.DeleteTree(ctx, treeID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.indexes, treeID)
	inv := s.invalidator
	s.mu.Unlock()

	if inv != nil {
		dropped := inv.DropTree(treeID)
		s.logger.Debug().Str("tree_id", treeID).Int("evicted", dropped).Msg("Tree deleted")
	}
	return nil
}

// Index returns the validated index for a tree, building it on first use.
// The index is immutable; mutations drop it and the next call rebuilds.
func (s *Service) Index(ctx context.Context, treeID string) (*tree.Index, error) {
	s.mu.RLock()
	idx, ok := s.indexes[treeID]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	t, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	idx, err = tree.BuildIndex(t.Nodes)
	if err != nil {
		return nil, fmt.Errorf("stored tree '%s' failed validation: %w", treeID, err)
	}

	s.mu.Lock()
	s.indexes[treeID] = idx
	s.mu.Unlock()
	return idx, nil
}

// AncestorPath resolves the node-to-root chain for cache invalidation.
func (s *Service) AncestorPath(ctx context.Context, treeID, nodeID string) ([]string, error) {
	idx, err := s.Index(ctx, treeID)
	if err != nil {
		return nil, err
	}
	path := idx.AncestorPath(nodeID)
	if path == nil {
		return nil, fmt.Errorf("node '%s' not found in tree '%s'", nodeID, treeID)
	}
	return path, nil
}

// AddNode attaches a node beneath its stated parent and persists the
// revalidated tree. The parent's ancestor path is invalidated: the new
// node changes every aggregate above it.
func (s *Service) AddNode(ctx context.Context, treeID string, node *models.RiskNode) (*models.RiskTree, error) {
	if node == nil {
		return nil, fmt.Errorf("node is required")
	}
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.ParentID == "" {
		return nil, fmt.Errorf("node requires a parent_id — trees have exactly one root")
	}

	t, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if t.NodeByID(node.ID) != nil {
		return nil, fmt.Errorf("node '%s' already exists in tree '%s'", node.ID, treeID)
	}
	parent := t.NodeByID(node.ParentID)
	if parent == nil {
		return nil, fmt.Errorf("parent '%s' not found in tree '%s'", node.ParentID, treeID)
	}

	parent.ChildIDs = append(parent.ChildIDs, node.ID)
	t.Nodes = append(t.Nodes, node)

	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}
	s.signalInvalidate(ctx, treeID, node.ParentID)
	return t, nil
}

// UpdateNode replaces a node's definition in place and persists the
// revalidated tree. Reparenting goes through RemoveNode/AddNode; this op
// covers distribution, naming, and child-order edits.
func (s *Service) UpdateNode(ctx context.Context, treeID string, node *models.RiskNode) (*models.RiskTree, error) {
	if node == nil || node.ID == "" {
		return nil, fmt.Errorf("node with id is required")
	}

	t, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}

	existing := t.NodeByID(node.ID)
	if existing == nil {
		return nil, fmt.Errorf("node '%s' not found in tree '%s'", node.ID, treeID)
	}
	if node.ParentID != existing.ParentID {
		return nil, fmt.Errorf("update cannot reparent node '%s' — remove and re-add it", node.ID)
	}

	existing.Name = node.Name
	existing.Kind = node.Kind
	existing.Distribution = node.Distribution
	existing.OccurrenceProb = node.OccurrenceProb
	existing.ChildIDs = node.ChildIDs

	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}
	s.signalInvalidate(ctx, treeID, node.ID)
	return t, nil
}

// RemoveNode detaches a node and its entire subtree from the tree and
// persists the result. The former parent's ancestor path is invalidated.
func (s *Service) RemoveNode(ctx context.Context, treeID, nodeID string) (*models.RiskTree, error) {
	t, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}

	target := t.NodeByID(nodeID)
	if target == nil {
		return nil, fmt.Errorf("node '%s' not found in tree '%s'", nodeID, treeID)
	}
	if target.ParentID == "" {
		return nil, fmt.Errorf("cannot remove the root node")
	}
	parentID := target.ParentID

	// Collect the subtree ids before touching the arena.
	doomed := map[string]bool{}
	var mark func(id string)
	mark = func(id string) {
		doomed[id] = true
		if n := t.NodeByID(id); n != nil {
			for _, child := range n.ChildIDs {
				mark(child)
			}
		}
	}
	mark(nodeID)

	kept := t.Nodes[:0]
	for _, n := range t.Nodes {
		if !doomed[n.ID] {
			kept = append(kept, n)
		}
	}
	t.Nodes = kept

	parent := t.NodeByID(parentID)
	children := parent.ChildIDs[:0]
	for _, child := range parent.ChildIDs {
		if child != nodeID {
			children = append(children, child)
		}
	}
	parent.ChildIDs = children

	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}
	s.signalInvalidate(ctx, treeID, parentID)
	return t, nil
}

// commit revalidates the mutated arena, persists it, and refreshes the
// cached index. A mutation that breaks the tree never reaches the store.
func (s *Service) commit(ctx context.Context, t *models.RiskTree) error {
	idx, err := tree.BuildIndex(t.Nodes)
	if err != nil {
		return err
	}
	if err := s.store.SaveTree(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	s.indexes[t.ID] = idx
	s.mu.Unlock()
	return nil
}

// signalInvalidate reports a mutation to the result cache. Failure to
// invalidate is logged, not returned — the mutation itself has committed.
func (s *Service) signalInvalidate(ctx context.Context, treeID, nodeID string) {
	s.mu.RLock()
	inv := s.invalidator
	s.mu.RUnlock()
	if inv == nil {
		return
	}
	removed, err := inv.Invalidate(ctx, treeID, nodeID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tree_id", treeID).Str("node_id", nodeID).Msg("Cache invalidation failed after mutation")
		return
	}
	s.logger.Debug().Str("tree_id", treeID).Str("node_id", nodeID).Int("evicted", len(removed)).Msg("Cache invalidated after mutation")
}

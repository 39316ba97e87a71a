package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/models"
)

// KVEntry represents a system key-value pair stored in BadgerDB.
type KVEntry struct {
	Key   string `badgerhold:"key"`
	Value string
}

// TreeStorage implements interfaces.TreeStore backed by BadgerHold.
type TreeStorage struct {
	store  *Store
	logger *common.Logger
}

// NewTreeStorage creates a new TreeStorage backed by BadgerHold.
func NewTreeStorage(store *Store, logger *common.Logger) *TreeStorage {
	return &TreeStorage{store: store, logger: logger}
}

// GetTree retrieves a tree snapshot by id.
func (s *TreeStorage) GetTree(_ context.Context, treeID string) (*models.RiskTree, error) {
	var tree models.RiskTree
	err := s.store.db.Get(treeID, &tree)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("tree '%s' not found", treeID)
		}
		return nil, fmt.Errorf("failed to get tree '%s': %w", treeID, err)
	}
	return &tree, nil
}

// SaveTree upserts a tree snapshot.
func (s *TreeStorage) SaveTree(_ context.Context, tree *models.RiskTree) error {
	tree.UpdatedAt = time.Now()
	if tree.CreatedAt.IsZero() {
		tree.CreatedAt = time.Now()
	}
	if tree.ID == "" {
		tree.ID = tree.Name
	}

	if err := s.store.db.Upsert(tree.ID, tree); err != nil {
		return fmt.Errorf("failed to save tree: %w", err)
	}
	s.logger.Debug().Str("tree_id", tree.ID).Int("nodes", len(tree.Nodes)).Msg("Tree saved")
	return nil
}

// DeleteTree removes a tree snapshot.
func (s *TreeStorage) DeleteTree(_ context.Context, treeID string) error {
	err := s.store.db.Delete(treeID, models.RiskTree{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete tree '%s': %w", treeID, err)
	}
	s.logger.Debug().Str("tree_id", treeID).Msg("Tree deleted")
	return nil
}

// ListTrees returns every stored tree snapshot.
func (s *TreeStorage) ListTrees(_ context.Context) ([]*models.RiskTree, error) {
	var trees []models.RiskTree
	if err := s.store.db.Find(&trees, nil); err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	out := make([]*models.RiskTree, len(trees))
	for i := range trees {
		out[i] = &trees[i]
	}
	return out, nil
}

// GetSystemKV retrieves a system setting.
func (s *TreeStorage) GetSystemKV(_ context.Context, key string) (string, error) {
	var entry KVEntry
	err := s.store.db.Get(key, &entry)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return "", fmt.Errorf("key '%s' not found", key)
		}
		return "", fmt.Errorf("failed to get key '%s': %w", key, err)
	}
	return entry.Value, nil
}

// SetSystemKV stores a system setting.
func (s *TreeStorage) SetSystemKV(_ context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value}
	if err := s.store.db.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

// Close closes the underlying store.
func (s *TreeStorage) Close() error {
	return s.store.Close()
}

// Package interfaces defines service contracts for Riskcast
package interfaces

import (
	"context"

	"github.com/risquanter/riskcast/internal/models"
)

// TreeStore is the persistence boundary for tree snapshots. The engine never
// mutates stored trees directly — all writes flow through the TreeService,
// which pairs them with cache invalidation.
type TreeStore interface {
	GetTree(ctx context.Context, treeID string) (*models.RiskTree, error)
	SaveTree(ctx context.Context, tree *models.RiskTree) error
	DeleteTree(ctx context.Context, treeID string) error
	ListTrees(ctx context.Context) ([]*models.RiskTree, error)

	// System key-value (operational settings)
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error

	Close() error
}

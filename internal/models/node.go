// Package models defines data structures for Riskcast
package models

import (
	"time"
)

// NodeKind discriminates the two RiskNode variants.
type NodeKind string

const (
	NodeKindLeaf      NodeKind = "leaf"
	NodeKindPortfolio NodeKind = "portfolio"
)

// DistributionKind identifies the loss distribution family of a leaf.
type DistributionKind string

const (
	// DistributionPercentile fits a lognormal to three or more
	// (probability, loss) control points.
	DistributionPercentile DistributionKind = "percentile"
	// DistributionInterval derives lognormal parameters from a stated
	// 90% confidence interval. Low == High degenerates to a constant loss.
	DistributionInterval DistributionKind = "interval"
)

// PercentilePoint is one (probability, loss) control point for a
// percentile-fit distribution. Probability is cumulative, in (0,1).
type PercentilePoint struct {
	Probability float64 `json:"probability"`
	Loss        float64 `json:"loss"`
}

// DistributionSpec describes a leaf's loss distribution. Exactly one family
// is populated, selected by Kind.
type DistributionSpec struct {
	Kind        DistributionKind  `json:"kind"`
	Percentiles []PercentilePoint `json:"percentiles,omitempty"` // percentile fit
	Low         float64           `json:"low,omitempty"`         // interval fit: lower bound of 90% CI
	High        float64           `json:"high,omitempty"`        // interval fit: upper bound of 90% CI
}

// RiskNode is one node in a risk tree: either a leaf carrying a loss
// distribution and occurrence probability, or a portfolio referencing an
// ordered list of children. Children are references only — the tree is a
// flat arena keyed by id, never nested structs.
type RiskNode struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     NodeKind `json:"kind"`
	ParentID string   `json:"parent_id,omitempty"` // empty for the root

	// Leaf fields
	Distribution   *DistributionSpec `json:"distribution,omitempty"`
	OccurrenceProb float64           `json:"occurrence_prob,omitempty"` // in (0,1)

	// Portfolio fields
	ChildIDs []string `json:"child_ids,omitempty"`
}

// IsLeaf reports whether the node carries a distribution.
func (n *RiskNode) IsLeaf() bool {
	return n.Kind == NodeKindLeaf
}

// IsPortfolio reports whether the node aggregates children.
func (n *RiskNode) IsPortfolio() bool {
	return n.Kind == NodeKindPortfolio
}

// RiskTree is a persisted tree snapshot: a named flat arena of nodes.
type RiskTree struct {
	ID        string      `json:"id" badgerhold:"key"`
	Name      string      `json:"name"`
	Nodes     []*RiskNode `json:"nodes"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (t *RiskTree) NodeByID(id string) *RiskNode {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// SeedTriple is the deterministic seed material for trial sampling.
// Identical seeds, ids, and trial index always reproduce the same sample,
// across runs and across processes.
type SeedTriple struct {
	Occurrence uint64 `json:"occurrence"`
	Magnitude  uint64 `json:"magnitude"`
	Stream     uint64 `json:"stream"`
}

// DefaultSeeds returns the fixed seed triple used when a request does not
// supply one. Fixed rather than random: reproducibility is the default.
func DefaultSeeds() SeedTriple {
	return SeedTriple{
		Occurrence: 0x9e3779b97f4a7c15,
		Magnitude:  0xbf58476d1ce4e5b9,
		Stream:     0x94d049bb133111eb,
	}
}

package sim

import (
	"fmt"

	"github.com/risquanter/riskcast/internal/models"
)

// Sampler draws deterministic per-trial occurrence/loss samples for one risk
// leaf. It holds no mutable state: Sample is a pure function of the
// construction inputs and the trial index, so a Sampler is safe for
// concurrent use and replays identically on every run.
type Sampler struct {
	entityHash   uint64
	variableHash uint64
	seeds        models.SeedTriple
	prob         float64
	quantile     QuantileFunc
}

// NewSampler fits the leaf's distribution and binds the sampling identity.
// entityID names the tree, variableID the leaf — together with the seed
// triple they define the sample stream. Construction fails fast, before any
// trial runs, when the distribution cannot produce a valid quantile curve.
func NewSampler(entityID, variableID string, node *models.RiskNode, seeds models.SeedTriple) (*Sampler, error) {
	if !node.IsLeaf() {
		return nil, fmt.Errorf("node %q is not a leaf", node.ID)
	}
	if node.OccurrenceProb <= 0 || node.OccurrenceProb >= 1 {
		return nil, fmt.Errorf("node %q: occurrence probability %v out of (0,1)", node.ID, node.OccurrenceProb)
	}

	quantile, err := FitDistribution(node.Distribution)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", node.ID, err)
	}

	return &Sampler{
		entityHash:   hashString(entityID),
		variableHash: hashString(variableID),
		seeds:        seeds,
		prob:         node.OccurrenceProb,
		quantile:     quantile,
	}, nil
}

// Sample returns whether the risk occurred in the given trial and, if so,
// the realized loss. The two underlying uniforms come from independently
// seeded hash streams, so occurrence and magnitude are uncorrelated.
func (s *Sampler) Sample(trial int64) (occurred bool, loss float64) {
	occBits := mix64(s.seeds.Occurrence ^ s.entityHash ^ rotl(s.variableHash, 17) ^ uint64(trial)*0x9e3779b97f4a7c15)
	if toUnitInterval(occBits) >= s.prob {
		return false, 0
	}

	magBits := mix64(s.seeds.Magnitude ^ s.seeds.Stream ^ s.entityHash ^ rotl(s.variableHash, 31) ^ uint64(trial)*0xda942042e4dd58b5)
	return true, s.quantile(toUnitInterval(magBits))
}

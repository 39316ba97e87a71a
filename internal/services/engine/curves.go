package engine

import (
	"context"
	"fmt"

	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
)

// exceedanceFloor is the display trim threshold: ticks where every requested
// curve has fallen below a 1-in-200 exceedance are cut, keeping exactly one
// extension tick so curves visibly approach zero instead of stopping short.
const exceedanceFloor = 0.005

// defaultTicks is used when a request does not size the tick domain.
const defaultTicks = 50

// ComputeCurves fetches or simulates results for the requested nodes and
// projects them onto one shared tick domain. Every curve in the bundle has
// identical ticks; requesting a node alone may therefore yield different
// ticks than requesting it alongside others. Trimming is display-only — the
// cached results underneath stay complete.
func (s *Service) ComputeCurves(ctx context.Context, treeID string, nodeIDs []string, nTicks int, opts interfaces.SimulateOptions) (*models.CurveBundle, error) {
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("at least one node id is required")
	}
	opts = s.normalize(opts)

	idx, err := s.trees.Index(ctx, treeID)
	if err != nil {
		return nil, err
	}
	for _, nodeID := range nodeIDs {
		if idx.Node(nodeID) == nil {
			return nil, fmt.Errorf("node '%s' not found in tree '%s'", nodeID, treeID)
		}
	}

	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	results := make(map[string]*models.RiskResult, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		result, _, err := s.computeNode(ctx, idx, treeID, nodeID, opts)
		if err != nil {
			return nil, err
		}
		results[nodeID] = result
	}

	ticks, curves := GenerateCurves(results, nTicks)

	bundle := &models.CurveBundle{
		TreeID:  treeID,
		Ticks:   ticks,
		Curves:  make(map[string]models.NodeCurve, len(nodeIDs)),
		NTrials: opts.NTrials,
		Seeds:   opts.Seeds,
	}
	for nodeID, points := range curves {
		result := results[nodeID]
		bundle.Curves[nodeID] = models.NodeCurve{
			NodeID:    nodeID,
			Name:      result.Name,
			Points:    points,
			Quantiles: result.NamedQuantiles(),
		}
	}
	return bundle, nil
}

// GenerateCurves computes a shared tick domain spanning the union of the
// results' loss ranges and, per node, the exceedance probability at each
// tick. The domain is trimmed at the rightmost tick where any curve still
// meets the exceedance floor, plus one extension tick.
func GenerateCurves(results map[string]*models.RiskResult, nTicks int) ([]float64, map[string][]models.CurvePoint) {
	if nTicks < 2 {
		nTicks = defaultTicks
	}

	maxLoss := 0.0
	for _, result := range results {
		if ml := result.MaxLoss(); ml > maxLoss {
			maxLoss = ml
		}
	}

	if maxLoss == 0 {
		// No trial in any result realized a loss: a single zero tick.
		ticks := []float64{0}
		curves := make(map[string][]models.CurvePoint, len(results))
		for nodeID, result := range results {
			curves[nodeID] = []models.CurvePoint{{Loss: 0, Probability: result.ProbOfExceedance(0)}}
		}
		return ticks, curves
	}

	ticks := make([]float64, nTicks)
	step := maxLoss / float64(nTicks-1)
	for i := range ticks {
		ticks[i] = step * float64(i)
	}

	probs := make(map[string][]float64, len(results))
	for nodeID, result := range results {
		row := make([]float64, nTicks)
		for i, tick := range ticks {
			row[i] = result.ProbOfExceedance(tick)
		}
		probs[nodeID] = row
	}

	// Rightmost tick at which any curve still meets the floor. Exceedance
	// is non-increasing in loss, so this is a suffix cut.
	trimIdx := 0
	for _, row := range probs {
		for i := nTicks - 1; i > trimIdx; i-- {
			if row[i] >= exceedanceFloor {
				if i > trimIdx {
					trimIdx = i
				}
				break
			}
		}
	}

	// One extension tick past the trim point, bounded by the raw domain.
	end := trimIdx + 1
	if end > nTicks-1 {
		end = nTicks - 1
	}

	shared := ticks[:end+1]
	curves := make(map[string][]models.CurvePoint, len(results))
	for nodeID, row := range probs {
		points := make([]models.CurvePoint, len(shared))
		for i, tick := range shared {
			points[i] = models.CurvePoint{Loss: tick, Probability: row[i]}
		}
		curves[nodeID] = points
	}
	return shared, curves
}

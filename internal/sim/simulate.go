package sim

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/risquanter/riskcast/internal/models"
)

// LeafOptions bounds the trial loop of a single leaf simulation.
type LeafOptions struct {
	ChunkSize int // trials folded per chunk; <=0 means one chunk
	Workers   int // concurrent chunks; <=0 means sequential
}

// SimulateLeaf runs the sampler across trials [0, nTrials) and retains only
// the trials where the risk occurred. Trials are processed in chunks and
// each chunk is folded into the running result through the monoid combine,
// so peak memory is bounded by the chunk size rather than the trial count —
// and because combine is commutative, chunk completion order is irrelevant.
func SimulateLeaf(ctx context.Context, entityID string, node *models.RiskNode, nTrials int, seeds models.SeedTriple, opts LeafOptions) (*models.RiskResult, error) {
	sampler, err := NewSampler(entityID, node.ID, node, seeds)
	if err != nil {
		return nil, err
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 || chunkSize > nTrials {
		chunkSize = nTrials
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	result := models.NewRiskResult(node.Name, nTrials)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < nTrials; start += chunkSize {
		end := start + chunkSize
		if end > nTrials {
			end = nTrials
		}
		lo, hi := int64(start), int64(end)

		g.Go(func() error {
			// Chunk boundary is the cancellation point.
			if err := ctx.Err(); err != nil {
				return err
			}

			chunk := sampleChunk(sampler, lo, hi)

			mu.Lock()
			for trial, loss := range chunk {
				result.Outcomes[trial] += loss
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// sampleChunk materializes one chunk's sparse outcomes.
func sampleChunk(sampler *Sampler, lo, hi int64) map[int64]float64 {
	out := make(map[int64]float64)
	for trial := lo; trial < hi; trial++ {
		if occurred, loss := sampler.Sample(trial); occurred {
			out[trial] = loss
		}
	}
	return out
}

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/risquanter/riskcast/internal/cache"
	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
	"github.com/risquanter/riskcast/internal/tree"
)

func leaf(id, parent string) *models.RiskNode {
	return &models.RiskNode{
		ID:             id,
		Name:           id,
		Kind:           models.NodeKindLeaf,
		ParentID:       parent,
		OccurrenceProb: 0.3,
		Distribution: &models.DistributionSpec{
			Kind: models.DistributionInterval,
			Low:  1000,
			High: 10000,
		},
	}
}

func portfolio(id, parent string, children ...string) *models.RiskNode {
	return &models.RiskNode{
		ID:       id,
		Name:     id,
		Kind:     models.NodeKindPortfolio,
		ParentID: parent,
		ChildIDs: children,
	}
}

// stubIndexer serves one pre-built index for every tree id.
type stubIndexer struct {
	idx *tree.Index
}

func (s *stubIndexer) Index(_ context.Context, _ string) (*tree.Index, error) {
	return s.idx, nil
}

// AncestorPath satisfies cache.AncestorResolver off the same index.
func (s *stubIndexer) AncestorPath(_ context.Context, _, nodeID string) ([]string, error) {
	return s.idx.AncestorPath(nodeID), nil
}

func testConfig() common.SimulationConfig {
	return common.SimulationConfig{
		MaxConcurrent:     4,
		QueueTimeout:      "2s",
		ChunkSize:         2000,
		MaxFanout:         4,
		TrialWorkers:      2,
		HeapPressurePct:   100, // never triggers in tests
		DefaultTrials:     5000,
		MaxTrials:         100000,
		LargeTrialCutover: 1 << 30,
	}
}

func newTestService(t *testing.T, nodes []*models.RiskNode, cfg common.SimulationConfig) *Service {
	t.Helper()
	idx, err := tree.BuildIndex(nodes)
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	indexer := &stubIndexer{idx: idx}
	logger := common.NewSilentLogger()
	results := cache.NewResultCache(indexer, logger)
	return NewService(indexer, results, cfg, logger)
}

func threeLevel() []*models.RiskNode {
	return []*models.RiskNode{
		portfolio("root", "", "mid", "leaf3"),
		portfolio("mid", "root", "leaf1", "leaf2"),
		leaf("leaf1", "mid"),
		leaf("leaf2", "mid"),
		leaf("leaf3", "root"),
	}
}

func TestComputeResult_LeafDeterministicAndCached(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())
	ctx := context.Background()
	opts := interfaces.SimulateOptions{NTrials: 5000}

	first, err := s.ComputeResult(ctx, "t1", "leaf1", opts)
	if err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}
	if first.CacheHit {
		t.Error("first computation should not be a cache hit")
	}
	if first.NTrials != 5000 {
		t.Errorf("n_trials = %d, want 5000", first.NTrials)
	}
	if first.Occurrences == 0 {
		t.Fatal("expected some occurrences at p=0.3 over 5000 trials")
	}

	second, err := s.ComputeResult(ctx, "t1", "leaf1", opts)
	if err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}
	if !second.CacheHit {
		t.Error("second identical request should hit the cache")
	}
	if !approxEqual(first.ExpectedLoss, second.ExpectedLoss, 1e-12) ||
		first.Occurrences != second.Occurrences {
		t.Error("cached result diverges from the computed one")
	}
}

func TestComputeResult_PortfolioIsCombineOfChildren(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())
	ctx := context.Background()
	opts := interfaces.SimulateOptions{NTrials: 5000}

	if _, err := s.ComputeResult(ctx, "t1", "root", opts); err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}

	// The compute pass caches every descendant; the root's cached result
	// must equal the monoidal combine of its leaves'.
	rootResult := s.results.Get("t1", "root")
	if rootResult == nil {
		t.Fatal("root result missing from cache after compute")
	}
	var leaves []*models.RiskResult
	for _, id := range []string{"leaf1", "leaf2", "leaf3"} {
		r := s.results.Get("t1", id)
		if r == nil {
			t.Fatalf("leaf %s missing from cache after compute", id)
		}
		leaves = append(leaves, r)
	}
	combined := models.AggregateResults(leaves)
	if !approxEqual(rootResult.ExpectedLoss(), combined.ExpectedLoss(), 1e-9) {
		t.Errorf("root expected loss %v != combined %v",
			rootResult.ExpectedLoss(), combined.ExpectedLoss())
	}
	if rootResult.MaxLoss() != combined.MaxLoss() {
		t.Errorf("root max loss %v != combined %v", rootResult.MaxLoss(), combined.MaxLoss())
	}
	if rootResult.NTrials != 5000 {
		t.Errorf("root n_trials = %d, want 5000", rootResult.NTrials)
	}
}

func TestComputeResult_DepthExpansion(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())
	ctx := context.Background()

	flat, err := s.ComputeResult(ctx, "t1", "root", interfaces.SimulateOptions{NTrials: 1000, Depth: 0})
	if err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}
	if len(flat.Children) != 0 {
		t.Errorf("depth 0 should have no child summaries, got %d", len(flat.Children))
	}

	one, err := s.ComputeResult(ctx, "t1", "root", interfaces.SimulateOptions{NTrials: 1000, Depth: 1})
	if err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}
	if len(one.Children) != 2 {
		t.Fatalf("depth 1 should expand root's 2 children, got %d", len(one.Children))
	}
	for _, child := range one.Children {
		if len(child.Children) != 0 {
			t.Errorf("depth 1 should not expand grandchildren under %s", child.NodeID)
		}
	}

	full, err := s.ComputeResult(ctx, "t1", "root", interfaces.SimulateOptions{NTrials: 1000, Depth: -1})
	if err != nil {
		t.Fatalf("ComputeResult failed: %v", err)
	}
	var mid *models.ResultSummary
	for _, child := range full.Children {
		if child.NodeID == "mid" {
			mid = child
		}
	}
	if mid == nil || len(mid.Children) != 2 {
		t.Error("unbounded depth should expand mid's leaves")
	}

	// Expansion never changes the aggregate.
	if !approxEqual(flat.ExpectedLoss, full.ExpectedLoss, 1e-12) {
		t.Errorf("aggregate changed with depth: %v vs %v", flat.ExpectedLoss, full.ExpectedLoss)
	}
}

func TestComputeResult_UnknownNode(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())

	_, err := s.ComputeResult(context.Background(), "t1", "nope", interfaces.SimulateOptions{NTrials: 100})
	if err == nil {
		t.Fatal("expected an error for an unknown node")
	}
}

func TestComputeResult_BusyWhenSaturated(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.QueueTimeout = "20ms"
	s := newTestService(t, threeLevel(), cfg)
	ctx := context.Background()

	// Hold the only permit; the request must give up after the queue
	// timeout instead of waiting forever.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer s.sem.Release(1)

	_, err := s.ComputeResult(ctx, "t1", "leaf1", interfaces.SimulateOptions{NTrials: 100})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestComputeResult_CallerCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	s := newTestService(t, threeLevel(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer s.sem.Release(1)

	_, err := s.ComputeResult(ctx, "t1", "leaf1", interfaces.SimulateOptions{NTrials: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAcquire_AdmissionBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	s := newTestService(t, threeLevel(), cfg)
	ctx := context.Background()

	var running, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.acquire(ctx); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			now := atomic.AddInt64(&running, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			s.sem.Release(1)
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("peak concurrent admissions = %d, want <= 2", p)
	}
}

func TestNormalize(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())

	opts := s.normalize(interfaces.SimulateOptions{})
	if opts.NTrials != 5000 {
		t.Errorf("default n_trials = %d, want 5000", opts.NTrials)
	}
	if opts.Seeds == (models.SeedTriple{}) {
		t.Error("default seeds should be filled in")
	}

	opts = s.normalize(interfaces.SimulateOptions{NTrials: 10_000_000})
	if opts.NTrials != 100000 {
		t.Errorf("clamped n_trials = %d, want 100000", opts.NTrials)
	}
}

func TestSetDefaultSeeds_UsedWhenRequestOmitsSeeds(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())
	pinned := models.SeedTriple{Occurrence: 101, Magnitude: 202, Stream: 303}
	s.SetDefaultSeeds(pinned)

	opts := s.normalize(interfaces.SimulateOptions{})
	if opts.Seeds != pinned {
		t.Errorf("default seeds = %+v, want the configured triple", opts.Seeds)
	}

	explicit := models.SeedTriple{Occurrence: 1, Magnitude: 2, Stream: 3}
	opts = s.normalize(interfaces.SimulateOptions{Seeds: explicit})
	if opts.Seeds != explicit {
		t.Errorf("explicit seeds = %+v, want them untouched", opts.Seeds)
	}

	s.SetDefaultSeeds(models.SeedTriple{})
	if opts := s.normalize(interfaces.SimulateOptions{}); opts.Seeds != pinned {
		t.Errorf("zero triple must be ignored, got %+v", opts.Seeds)
	}

	summary, err := s.ComputeResult(context.Background(), "t1", "leaf1", interfaces.SimulateOptions{NTrials: 500})
	if err != nil {
		t.Fatalf("ComputeResult: %v", err)
	}
	if summary.Seeds != pinned {
		t.Errorf("summary seeds = %+v, want the configured triple echoed", summary.Seeds)
	}
}

func TestEffectiveFanout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFanout = 8
	cfg.LargeTrialCutover = 250000
	s := newTestService(t, threeLevel(), cfg)

	if got := s.effectiveFanout(0, 1000, 10); got != 8 {
		t.Errorf("unrequested fanout = %d, want the configured max 8", got)
	}
	if got := s.effectiveFanout(3, 1000, 10); got != 3 {
		t.Errorf("requested fanout = %d, want 3", got)
	}
	if got := s.effectiveFanout(0, 1000, 2); got != 2 {
		t.Errorf("fanout with 2 children = %d, want 2", got)
	}
	if got := s.effectiveFanout(0, 500000, 10); got != 4 {
		t.Errorf("fanout above the trial cutover = %d, want 4", got)
	}
	if got := s.effectiveFanout(1, 500000, 10); got != 1 {
		t.Errorf("fanout floor = %d, want 1", got)
	}
}

func TestComputeCurves_BundleShape(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())
	ctx := context.Background()

	bundle, err := s.ComputeCurves(ctx, "t1", []string{"root", "leaf1"}, 20, interfaces.SimulateOptions{NTrials: 2000})
	if err != nil {
		t.Fatalf("ComputeCurves failed: %v", err)
	}
	if len(bundle.Curves) != 2 {
		t.Fatalf("curves = %d, want 2", len(bundle.Curves))
	}
	for nodeID, curve := range bundle.Curves {
		if len(curve.Points) != len(bundle.Ticks) {
			t.Errorf("%s: %d points on %d ticks", nodeID, len(curve.Points), len(bundle.Ticks))
		}
		for i, p := range curve.Points {
			if p.Loss != bundle.Ticks[i] {
				t.Fatalf("%s: point %d off the shared tick domain", nodeID, i)
			}
		}
	}
	// Root dominates leaf1 at every tick: a superset of risks never has a
	// lower exceedance probability.
	rootPoints := bundle.Curves["root"].Points
	leafPoints := bundle.Curves["leaf1"].Points
	for i := range rootPoints {
		if rootPoints[i].Probability < leafPoints[i].Probability-1e-12 {
			t.Fatalf("tick %d: root exceedance %v below leaf1's %v",
				i, rootPoints[i].Probability, leafPoints[i].Probability)
		}
	}
}

func TestComputeCurves_NoNodes(t *testing.T) {
	s := newTestService(t, threeLevel(), testConfig())

	_, err := s.ComputeCurves(context.Background(), "t1", nil, 20, interfaces.SimulateOptions{})
	if err == nil {
		t.Fatal("expected an error for an empty node list")
	}
}

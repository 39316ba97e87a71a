package models

import (
	"math"
	"math/rand"
	"testing"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func randomResult(rng *rand.Rand, nTrials int) *RiskResult {
	r := NewRiskResult("random", nTrials)
	for trial := int64(0); trial < int64(nTrials); trial++ {
		if rng.Float64() < 0.3 {
			r.Outcomes[trial] = rng.Float64() * 10000
		}
	}
	return r
}

func TestCombine_IdentityIsNeutral(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := randomResult(rng, 1000)

	if !a.Combine(Identity()).Equal(a) {
		t.Error("combine(a, identity) != a")
	}
	if !Identity().Combine(a).Equal(a) {
		t.Error("combine(identity, a) != a")
	}
}

func TestCombine_Commutative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		a := randomResult(rng, 500)
		b := randomResult(rng, 500)
		if !a.Combine(b).Equal(b.Combine(a)) {
			t.Fatalf("combine(a,b) != combine(b,a) at iteration %d", i)
		}
	}
}

func TestCombine_Associative(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 20; i++ {
		a := randomResult(rng, 500)
		b := randomResult(rng, 500)
		c := randomResult(rng, 500)
		left := a.Combine(b).Combine(c)
		right := a.Combine(b.Combine(c))
		if !left.Equal(right) {
			t.Fatalf("combine not associative at iteration %d", i)
		}
	}
}

func TestCombine_DoesNotMutateOperands(t *testing.T) {
	a := NewRiskResult("a", 10)
	a.Outcomes[1] = 100
	b := NewRiskResult("b", 10)
	b.Outcomes[1] = 50
	b.Outcomes[2] = 25

	_ = a.Combine(b)

	if a.Outcomes[1] != 100 || len(a.Outcomes) != 1 {
		t.Error("combine mutated left operand")
	}
	if b.Outcomes[1] != 50 || b.Outcomes[2] != 25 {
		t.Error("combine mutated right operand")
	}
}

func TestCombine_OuterJoinSemantics(t *testing.T) {
	// Non-overlapping trial sets: a trial missing from one side contributes
	// zero, not an error.
	a := NewRiskResult("a", 100)
	a.Outcomes[3] = 100
	a.Outcomes[5] = 200
	b := NewRiskResult("b", 100)
	b.Outcomes[5] = 50
	b.Outcomes[9] = 75

	combined := a.Combine(b)

	if combined.Outcomes[3] != 100 {
		t.Errorf("trial 3: got %v, want 100", combined.Outcomes[3])
	}
	if combined.Outcomes[5] != 250 {
		t.Errorf("trial 5: got %v, want 250 (summed)", combined.Outcomes[5])
	}
	if combined.Outcomes[9] != 75 {
		t.Errorf("trial 9: got %v, want 75", combined.Outcomes[9])
	}
	if len(combined.Outcomes) != 3 {
		t.Errorf("outcome count: got %d, want 3", len(combined.Outcomes))
	}
}

func TestAggregateResults_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	a := randomResult(rng, 300)
	b := randomResult(rng, 300)
	c := randomResult(rng, 300)

	forward := AggregateResults([]*RiskResult{a, b, c})
	reverse := AggregateResults([]*RiskResult{c, b, a})

	if !forward.Equal(reverse) {
		t.Error("aggregation result depends on child order")
	}
}

func TestAggregateResults_Empty(t *testing.T) {
	out := AggregateResults(nil)
	if out.NTrials != 0 || len(out.Outcomes) != 0 {
		t.Errorf("empty aggregation should be identity, got %d trials, %d outcomes", out.NTrials, len(out.Outcomes))
	}
}

func TestProbOfExceedance(t *testing.T) {
	r := NewRiskResult("r", 10)
	r.Outcomes[0] = 100
	r.Outcomes[1] = 200
	r.Outcomes[2] = 500

	cases := []struct {
		threshold float64
		want      float64
	}{
		{-1, 1.0},  // negative threshold: every trial exceeds
		{0, 1.0},   // zero-loss trials meet a zero threshold
		{50, 0.3},  // three of ten trials at or above 50
		{100, 0.3}, // inclusive at the boundary
		{101, 0.2},
		{500, 0.1},
		{501, 0},
	}
	for _, tc := range cases {
		got := r.ProbOfExceedance(tc.threshold)
		if !approxEqual(got, tc.want, 1e-12) {
			t.Errorf("ProbOfExceedance(%v) = %v, want %v", tc.threshold, got, tc.want)
		}
	}
}

func TestQuantile_SparseZeros(t *testing.T) {
	// 10 trials, only two occurred: the median is an implicit zero.
	r := NewRiskResult("r", 10)
	r.Outcomes[4] = 1000
	r.Outcomes[7] = 2000

	if got := r.Quantile(0.5); got != 0 {
		t.Errorf("p50 = %v, want 0 (8 of 10 trials had no loss)", got)
	}
	if got := r.Quantile(0.9); got != 1000 {
		t.Errorf("p90 = %v, want 1000", got)
	}
	if got := r.Quantile(1.0); got != 2000 {
		t.Errorf("p100 = %v, want 2000", got)
	}
}

func TestExpectedLoss(t *testing.T) {
	r := NewRiskResult("r", 4)
	r.Outcomes[0] = 100
	r.Outcomes[1] = 300

	if got := r.ExpectedLoss(); !approxEqual(got, 100, 1e-12) {
		t.Errorf("ExpectedLoss = %v, want 100", got)
	}
}

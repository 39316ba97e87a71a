package models

import (
	"math"
	"sort"
)

// RiskResult is the simulation outcome for one node across NTrials trials.
// Outcomes is sparse: only trials where the risk occurred are present, so the
// expected size is occurrenceProb × NTrials. A trial absent from the map is
// an implicit zero-loss contribution.
//
// RiskResult forms a commutative monoid under Combine with Identity as the
// neutral element. That algebra is what makes bottom-up tree aggregation
// order-independent: a portfolio's result is the Combine of its children's
// results, in any order.
type RiskResult struct {
	Name     string            `json:"name"`
	NTrials  int               `json:"n_trials"`
	Outcomes map[int64]float64 `json:"outcomes"`
}

// Identity returns the neutral element of the combine operation: no trials,
// no outcomes. Combining any result with Identity yields an equal result.
func Identity() *RiskResult {
	return &RiskResult{Outcomes: map[int64]float64{}}
}

// NewRiskResult returns an empty result sized for the given trial count.
func NewRiskResult(name string, nTrials int) *RiskResult {
	return &RiskResult{
		Name:     name,
		NTrials:  nTrials,
		Outcomes: make(map[int64]float64),
	}
}

// Combine returns the monoidal sum of r and other: an outer join on trial id,
// adding losses present on either side. Neither operand is mutated. The trial
// count of the combined result is the larger of the two — combining with
// Identity (0 trials) is therefore a no-op.
func (r *RiskResult) Combine(other *RiskResult) *RiskResult {
	if other == nil {
		other = Identity()
	}

	out := &RiskResult{
		Name:     r.Name,
		NTrials:  r.NTrials,
		Outcomes: make(map[int64]float64, len(r.Outcomes)+len(other.Outcomes)),
	}
	if other.NTrials > out.NTrials {
		out.NTrials = other.NTrials
	}
	if out.Name == "" {
		out.Name = other.Name
	}

	for trial, loss := range r.Outcomes {
		out.Outcomes[trial] = loss
	}
	for trial, loss := range other.Outcomes {
		out.Outcomes[trial] += loss
	}

	return out
}

// Equal reports whether two results carry identical outcomes and trial
// counts. Names are ignored — they are labels, not data.
func (r *RiskResult) Equal(other *RiskResult) bool {
	if other == nil || r.NTrials != other.NTrials || len(r.Outcomes) != len(other.Outcomes) {
		return false
	}
	for trial, loss := range r.Outcomes {
		ol, ok := other.Outcomes[trial]
		if !ok || ol != loss {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the result.
func (r *RiskResult) Clone() *RiskResult {
	out := &RiskResult{
		Name:     r.Name,
		NTrials:  r.NTrials,
		Outcomes: make(map[int64]float64, len(r.Outcomes)),
	}
	for trial, loss := range r.Outcomes {
		out.Outcomes[trial] = loss
	}
	return out
}

// ProbOfExceedance returns P(loss >= threshold) across all trials, counting
// absent trials as zero loss. Answerable for any threshold regardless of how
// a rendered curve was trimmed.
func (r *RiskResult) ProbOfExceedance(threshold float64) float64 {
	if r.NTrials == 0 {
		return 0
	}
	if threshold <= 0 {
		// Every trial realizes a loss >= 0, absent trials included.
		return 1
	}

	count := 0
	for _, loss := range r.Outcomes {
		if loss >= threshold {
			count++
		}
	}
	return float64(count) / float64(r.NTrials)
}

// MaxLoss returns the largest realized loss, or 0 when no trial occurred.
func (r *RiskResult) MaxLoss() float64 {
	max := 0.0
	for _, loss := range r.Outcomes {
		if loss > max {
			max = loss
		}
	}
	return max
}

// ExpectedLoss returns the mean realized loss across all trials, counting
// absent trials as zero.
func (r *RiskResult) ExpectedLoss() float64 {
	if r.NTrials == 0 {
		return 0
	}
	sum := 0.0
	for _, loss := range r.Outcomes {
		sum += loss
	}
	return sum / float64(r.NTrials)
}

// Quantile returns the loss at cumulative probability p across all trials,
// zero-loss trials included. p is clamped to [0,1].
func (r *RiskResult) Quantile(p float64) float64 {
	if r.NTrials == 0 {
		return 0
	}
	p = math.Max(0, math.Min(1, p))

	// Rank within the full trial population. Everything below the sparse
	// outcomes is an implicit zero.
	rank := int(math.Ceil(p * float64(r.NTrials)))
	zeroTrials := r.NTrials - len(r.Outcomes)
	if rank <= zeroTrials {
		return 0
	}

	losses := make([]float64, 0, len(r.Outcomes))
	for _, loss := range r.Outcomes {
		losses = append(losses, loss)
	}
	sort.Float64s(losses)

	idx := rank - zeroTrials - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(losses) {
		idx = len(losses) - 1
	}
	return losses[idx]
}

// NamedQuantiles returns the conventional reporting quantiles.
func (r *RiskResult) NamedQuantiles() map[string]float64 {
	return map[string]float64{
		"p50": r.Quantile(0.50),
		"p90": r.Quantile(0.90),
		"p95": r.Quantile(0.95),
		"p99": r.Quantile(0.99),
	}
}

// AggregateResults left-folds the monoid combine over children. Order does
// not affect the outcome. An empty slice yields Identity.
func AggregateResults(children []*RiskResult) *RiskResult {
	out := Identity()
	for _, child := range children {
		if child == nil {
			continue
		}
		out = out.Combine(child)
	}
	return out
}

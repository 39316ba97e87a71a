package models

// CurvePoint is one tick on a loss exceedance curve: the probability that
// realized loss meets or exceeds Loss.
type CurvePoint struct {
	Loss        float64 `json:"loss"`
	Probability float64 `json:"probability"`
}

// NodeCurve is the rendered exceedance curve for one node, plus the summary
// statistics and provenance exposed for reproducibility audits.
type NodeCurve struct {
	NodeID    string             `json:"node_id"`
	Name      string             `json:"name,omitempty"`
	Points    []CurvePoint       `json:"points"`
	Quantiles map[string]float64 `json:"quantiles,omitempty"`
}

// CurveBundle is the render-time output of a curve request: a shared tick
// domain and one curve per requested node, all aligned on identical ticks.
// Bundles are ephemeral — never persisted, never cached. The tick domain is
// a function of the whole request, so caching a bundle would pin it to one
// display context.
type CurveBundle struct {
	TreeID  string               `json:"tree_id"`
	Ticks   []float64            `json:"ticks"`
	Curves  map[string]NodeCurve `json:"curves"`
	NTrials int                  `json:"n_trials"`
	Seeds   SeedTriple           `json:"seeds"` // sampling provenance
}

// ResultSummary is the JSON-facing shape of one node's simulation outcome.
// The sparse outcome map stays internal; callers get the distribution
// summary and provenance.
type ResultSummary struct {
	NodeID       string             `json:"node_id"`
	Name         string             `json:"name,omitempty"`
	NTrials      int                `json:"n_trials"`
	Occurrences  int                `json:"occurrences"`
	ExpectedLoss float64            `json:"expected_loss"`
	MaxLoss      float64            `json:"max_loss"`
	Quantiles    map[string]float64 `json:"quantiles"`
	Seeds        SeedTriple         `json:"seeds"`
	CacheHit     bool               `json:"cache_hit"`
	DurationMS   int64              `json:"duration_ms"`

	// Children carries per-descendant summaries down to the requested
	// depth. The aggregate above is always exact for the full subtree
	// regardless of how deep the expansion goes.
	Children []*ResultSummary `json:"children,omitempty"`
}

// Summarize projects a RiskResult into its serializable summary.
func (r *RiskResult) Summarize(nodeID string, seeds SeedTriple) *ResultSummary {
	return &ResultSummary{
		NodeID:       nodeID,
		Name:         r.Name,
		NTrials:      r.NTrials,
		Occurrences:  len(r.Outcomes),
		ExpectedLoss: r.ExpectedLoss(),
		MaxLoss:      r.MaxLoss(),
		Quantiles:    r.NamedQuantiles(),
		Seeds:        seeds,
	}
}

package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/risquanter/riskcast/internal/models"
)

// z90 is the standard normal quantile at 0.95 — half-width of a 90%
// confidence interval in sigma units.
const z90 = 1.6448536269514722

// QuantileFunc maps a cumulative probability in (0,1) to a loss value.
// Implementations must be monotone non-decreasing.
type QuantileFunc func(p float64) float64

// FitDistribution turns a leaf's distribution spec into a quantile function.
// Fitting happens once per leaf per simulation request, never per trial, and
// fails fast with a descriptive error when the spec cannot yield a valid
// monotone quantile curve.
func FitDistribution(spec *models.DistributionSpec) (QuantileFunc, error) {
	if spec == nil {
		return nil, fmt.Errorf("leaf has no distribution")
	}
	switch spec.Kind {
	case models.DistributionInterval:
		return fitInterval(spec.Low, spec.High)
	case models.DistributionPercentile:
		return fitPercentiles(spec.Percentiles)
	default:
		return nil, fmt.Errorf("unknown distribution kind %q", spec.Kind)
	}
}

// fitInterval derives lognormal location/scale from a stated 90% confidence
// interval. An interval of zero width degenerates to a constant loss.
func fitInterval(low, high float64) (QuantileFunc, error) {
	if low <= 0 {
		return nil, fmt.Errorf("interval fit: low bound must be positive, got %v", low)
	}
	if high < low {
		return nil, fmt.Errorf("interval fit: high bound %v is below low bound %v", high, low)
	}
	if high == low {
		c := low
		return func(float64) float64 { return c }, nil
	}

	mu := (math.Log(low) + math.Log(high)) / 2
	sigma := (math.Log(high) - math.Log(low)) / (2 * z90)
	return lognormalQuantile(mu, sigma), nil
}

// fitPercentiles fits a lognormal to three or more (probability, loss)
// control points by least squares in probit space: ln(loss) regressed on
// probit(probability). The slope is the scale parameter and must come out
// strictly positive, otherwise the stated points contradict each other.
func fitPercentiles(points []models.PercentilePoint) (QuantileFunc, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("percentile fit: need at least 3 control points, got %d", len(points))
	}

	sorted := make([]models.PercentilePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Probability < sorted[j].Probability })

	for i, p := range sorted {
		if p.Probability <= 0 || p.Probability >= 1 {
			return nil, fmt.Errorf("percentile fit: control point probability %v out of (0,1)", p.Probability)
		}
		if p.Loss <= 0 {
			return nil, fmt.Errorf("percentile fit: control point loss %v must be positive", p.Loss)
		}
		if i > 0 {
			if p.Probability == sorted[i-1].Probability {
				return nil, fmt.Errorf("percentile fit: duplicate probability %v", p.Probability)
			}
			if p.Loss <= sorted[i-1].Loss {
				return nil, fmt.Errorf(
					"percentile fit: losses must increase with probability — %v at p=%v does not exceed %v at p=%v",
					p.Loss, p.Probability, sorted[i-1].Loss, sorted[i-1].Probability)
			}
		}
	}

	// Ordinary least squares of y = mu + sigma*x with x = probit(p), y = ln(loss).
	n := float64(len(sorted))
	var sumX, sumY, sumXX, sumXY float64
	for _, p := range sorted {
		x := probit(p.Probability)
		y := math.Log(p.Loss)
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil, fmt.Errorf("percentile fit: degenerate control points")
	}
	sigma := (n*sumXY - sumX*sumY) / denom
	mu := (sumY - sigma*sumX) / n

	if sigma <= 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("percentile fit: fitted scale %v is not positive — control points do not define a valid CDF", sigma)
	}

	return lognormalQuantile(mu, sigma), nil
}

func lognormalQuantile(mu, sigma float64) QuantileFunc {
	return func(p float64) float64 {
		return math.Exp(mu + sigma*probit(p))
	}
}

// probit is the standard normal inverse CDF, computed with Acklam's rational
// approximation (relative error under 1.15e-9 across (0,1)).
func probit(p float64) float64 {
	const (
		a1 = -39.69683028665376
		a2 = 220.9460984245205
		a3 = -275.9285104469687
		a4 = 138.3577518672690
		a5 = -30.66479806614716
		a6 = 2.506628277459239

		b1 = -54.47609879822406
		b2 = 161.5858368580409
		b3 = -155.6989798598866
		b4 = 66.80131188771972
		b5 = -13.28068155288572

		c1 = -0.007784894002430293
		c2 = -0.3223964580411365
		c3 = -2.400758277161838
		c4 = -2.549732539343734
		c5 = 4.374664141464968
		c6 = 2.938163982698783

		d1 = 0.007784695709041462
		d2 = 0.3224671290700398
		d3 = 2.445134137142996
		d4 = 3.754408661907416

		pLow  = 0.02425
		pHigh = 1 - pLow
	)

	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a1*r+a2)*r+a3)*r+a4)*r+a5)*r + a6) * q /
			(((((b1*r+b2)*r+b3)*r+b4)*r+b5)*r + 1)
	}
}

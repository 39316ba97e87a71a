package engine

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/risquanter/riskcast/internal/models"
)

// seriesPalette cycles through distinguishable stroke colors, one per curve.
var seriesPalette = []string{
	"2563eb", // blue-600
	"dc2626", // red-600
	"16a34a", // green-600
	"9333ea", // purple-600
	"ea580c", // orange-600
	"0891b2", // cyan-600
}

// RenderCurveChart renders a curve bundle as a PNG line chart: loss on the
// x-axis, exceedance probability on the y-axis, one series per node.
// Returns raw PNG bytes.
func (s *Service) RenderCurveChart(bundle *models.CurveBundle) ([]byte, error) {
	if bundle == nil || len(bundle.Curves) == 0 {
		return nil, fmt.Errorf("curve bundle is empty")
	}
	if len(bundle.Ticks) < 2 {
		return nil, fmt.Errorf("need at least 2 ticks to render, got %d", len(bundle.Ticks))
	}

	// Stable series order regardless of map iteration.
	nodeIDs := make([]string, 0, len(bundle.Curves))
	for nodeID := range bundle.Curves {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	series := make([]chart.Series, 0, len(nodeIDs))
	for i, nodeID := range nodeIDs {
		curve := bundle.Curves[nodeID]
		xValues := make([]float64, len(curve.Points))
		yValues := make([]float64, len(curve.Points))
		for j, p := range curve.Points {
			xValues[j] = p.Loss
			yValues[j] = p.Probability * 100
		}

		name := curve.Name
		if name == "" {
			name = nodeID
		}
		series = append(series, chart.ContinuousSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(seriesPalette[i%len(seriesPalette)]),
				StrokeWidth: 2.0,
			},
			XValues: xValues,
			YValues: yValues,
		})
	}

	graph := chart.Chart{
		Title:  "Loss Exceedance",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					if f >= 1000 {
						return fmt.Sprintf("$%.0fk", f/1000)
					}
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f%%", f)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

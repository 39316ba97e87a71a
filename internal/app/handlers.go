package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
)

// handleGetVersion implements the get_version tool
func handleGetVersion() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("Riskcast Server\nVersion: %s\nBuild: %s\nCommit: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return textResult(result), nil
	}
}

// handleListTrees implements the list_trees tool
func handleListTrees(trees interfaces.TreeService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		all, err := trees.ListTrees(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List trees failed")
			return errorResult(fmt.Sprintf("Error listing trees: %v", err)), nil
		}
		if len(all) == 0 {
			return textResult("No risk trees stored yet."), nil
		}

		var b strings.Builder
		b.WriteString(fmt.Sprintf("# Risk Trees (%d)\n\n", len(all)))
		for _, t := range all {
			b.WriteString(fmt.Sprintf("- **%s** (`%s`) — %d nodes\n", t.Name, t.ID, len(t.Nodes)))
		}
		return textResult(b.String()), nil
	}
}

// handleGetTree implements the get_tree tool
func handleGetTree(trees interfaces.TreeService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := request.RequireString("tree_id")
		if err != nil || treeID == "" {
			return errorResult("Error: tree_id parameter is required"), nil
		}

		t, err := trees.GetTree(ctx, treeID)
		if err != nil {
			logger.Error().Err(err).Str("tree_id", treeID).Msg("Get tree failed")
			return errorResult(fmt.Sprintf("Tree not found: %v", err)), nil
		}

		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("Error encoding tree: %v", err)), nil
		}
		return textResult(string(data)), nil
	}
}

// handleSimulateNode implements the simulate_node tool
func handleSimulateNode(eng interfaces.EngineService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := request.RequireString("tree_id")
		if err != nil || treeID == "" {
			return errorResult("Error: tree_id parameter is required"), nil
		}
		nodeID, err := request.RequireString("node_id")
		if err != nil || nodeID == "" {
			return errorResult("Error: node_id parameter is required"), nil
		}

		opts := interfaces.SimulateOptions{
			NTrials: request.GetInt("n_trials", 0),
			Depth:   request.GetInt("depth", 0),
		}

		summary, err := eng.ComputeResult(ctx, treeID, nodeID, opts)
		if err != nil {
			logger.Error().Err(err).Str("tree_id", treeID).Str("node_id", nodeID).Msg("Simulation failed")
			return errorResult(fmt.Sprintf("Simulation error: %v", err)), nil
		}
		return textResult(formatSummary(summary)), nil
	}
}

// handleGetCurves implements the get_curves tool
func handleGetCurves(eng interfaces.EngineService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := request.RequireString("tree_id")
		if err != nil || treeID == "" {
			return errorResult("Error: tree_id parameter is required"), nil
		}
		nodeIDs := request.GetStringSlice("node_ids", nil)
		if len(nodeIDs) == 0 {
			return errorResult("Error: node_ids parameter is required"), nil
		}

		nTicks := request.GetInt("n_ticks", 0)
		opts := interfaces.SimulateOptions{NTrials: request.GetInt("n_trials", 0)}

		bundle, err := eng.ComputeCurves(ctx, treeID, nodeIDs, nTicks, opts)
		if err != nil {
			logger.Error().Err(err).Str("tree_id", treeID).Msg("Curve generation failed")
			return errorResult(fmt.Sprintf("Curve error: %v", err)), nil
		}
		return textResult(formatCurveBundle(bundle)), nil
	}
}

// handleCacheStats implements the cache_stats tool
func handleCacheStats(eng interfaces.EngineService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats := eng.CacheStats()
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return errorResult(fmt.Sprintf("Error encoding stats: %v", err)), nil
		}
		return textResult(string(data)), nil
	}
}

// handleInvalidateNode implements the invalidate_node tool
func handleInvalidateNode(eng interfaces.EngineService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := request.RequireString("tree_id")
		if err != nil || treeID == "" {
			return errorResult("Error: tree_id parameter is required"), nil
		}
		nodeID, err := request.RequireString("node_id")
		if err != nil || nodeID == "" {
			return errorResult("Error: node_id parameter is required"), nil
		}

		removed, err := eng.InvalidateNode(ctx, treeID, nodeID)
		if err != nil {
			logger.Error().Err(err).Str("tree_id", treeID).Str("node_id", nodeID).Msg("Invalidation failed")
			return errorResult(fmt.Sprintf("Invalidation error: %v", err)), nil
		}
		if len(removed) == 0 {
			return textResult("No cached results to evict along that path."), nil
		}
		return textResult(fmt.Sprintf("Evicted %d cached results: %s", len(removed), strings.Join(removed, ", "))), nil
	}
}

// formatSummary renders a result summary as markdown, children indented.
func formatSummary(summary *models.ResultSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Simulation: %s\n\n", summary.Name))
	writeSummaryLines(&b, summary, 0)
	return b.String()
}

func writeSummaryLines(b *strings.Builder, s *models.ResultSummary, indent int) {
	pad := strings.Repeat("  ", indent)
	b.WriteString(fmt.Sprintf("%s- **%s** (`%s`)\n", pad, s.Name, s.NodeID))
	b.WriteString(fmt.Sprintf("%s  trials: %d, occurrences: %d, expected loss: %.2f, max loss: %.2f\n",
		pad, s.NTrials, s.Occurrences, s.ExpectedLoss, s.MaxLoss))
	if len(s.Quantiles) > 0 {
		names := make([]string, 0, len(s.Quantiles))
		for name := range s.Quantiles {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%.2f", name, s.Quantiles[name]))
		}
		b.WriteString(fmt.Sprintf("%s  quantiles: %s\n", pad, strings.Join(parts, ", ")))
	}
	for _, child := range s.Children {
		writeSummaryLines(b, child, indent+1)
	}
}

// formatCurveBundle renders a curve bundle as one markdown table per node.
func formatCurveBundle(bundle *models.CurveBundle) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Loss Exceedance Curves (tree `%s`, %d trials)\n", bundle.TreeID, bundle.NTrials))

	nodeIDs := make([]string, 0, len(bundle.Curves))
	for nodeID := range bundle.Curves {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		curve := bundle.Curves[nodeID]
		b.WriteString(fmt.Sprintf("\n## %s\n\n| Loss | P(exceed) |\n|---|---|\n", curve.Name))
		for _, p := range curve.Points {
			b.WriteString(fmt.Sprintf("| %.2f | %.4f |\n", p.Loss, p.Probability))
		}
	}
	return b.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

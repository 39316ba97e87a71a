package app

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the Riskcast server version and status. Use this to verify connectivity."),
	)
}

// createListTreesTool returns the list_trees tool definition
func createListTreesTool() mcp.Tool {
	return mcp.NewTool("list_trees",
		mcp.WithDescription("List all stored risk trees with their ids, names, and node counts."),
	)
}

// createGetTreeTool returns the get_tree tool definition
func createGetTreeTool() mcp.Tool {
	return mcp.NewTool("get_tree",
		mcp.WithDescription("Get the full node structure of a risk tree: portfolios, leaves, distributions, and occurrence probabilities."),
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("ID of the tree to fetch"),
		),
	)
}

// createSimulateNodeTool returns the simulate_node tool definition
func createSimulateNodeTool() mcp.Tool {
	return mcp.NewTool("simulate_node",
		mcp.WithDescription("Run a Monte Carlo loss simulation for a node and its subtree. Returns expected loss, max loss, occurrence count, and loss quantiles. Results are deterministic for fixed seeds and cached per node."),
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("ID of the tree containing the node"),
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("ID of the node to simulate (a leaf or a portfolio)"),
		),
		mcp.WithNumber("n_trials",
			mcp.Description("Number of Monte Carlo trials (default: server-configured, typically 10000)"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many levels of child summaries to include: 0 = the node alone, -1 = the whole subtree (default: 0)"),
		),
	)
}

// createGetCurvesTool returns the get_curves tool definition
func createGetCurvesTool() mcp.Tool {
	return mcp.NewTool("get_curves",
		mcp.WithDescription("Generate loss exceedance curves for one or more nodes of a tree. All curves share one tick domain so they can be compared point by point."),
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("ID of the tree containing the nodes"),
		),
		mcp.WithArray("node_ids",
			mcp.WithStringItems(),
			mcp.Required(),
			mcp.Description("IDs of the nodes to chart (e.g. the root plus selected children)"),
		),
		mcp.WithNumber("n_ticks",
			mcp.Description("Number of loss ticks on the x axis (default: 50)"),
		),
		mcp.WithNumber("n_trials",
			mcp.Description("Number of Monte Carlo trials (default: server-configured)"),
		),
	)
}

// createCacheStatsTool returns the cache_stats tool definition
func createCacheStatsTool() mcp.Tool {
	return mcp.NewTool("cache_stats",
		mcp.WithDescription("Report simulation result cache statistics: entry counts per tree, hits, misses, and invalidations."),
	)
}

// createInvalidateNodeTool returns the invalidate_node tool definition
func createInvalidateNodeTool() mcp.Tool {
	return mcp.NewTool("invalidate_node",
		mcp.WithDescription("Evict a node and all its ancestors from the result cache. Use after out-of-band changes that simulations should pick up."),
		mcp.WithString("tree_id",
			mcp.Required(),
			mcp.Description("ID of the tree containing the node"),
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("ID of the changed node"),
		),
	)
}

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	s := a.MCPServer
	logger := a.Logger

	s.AddTool(createGetVersionTool(), handleGetVersion())
	s.AddTool(createListTreesTool(), handleListTrees(a.TreeService, logger))
	s.AddTool(createGetTreeTool(), handleGetTree(a.TreeService, logger))
	s.AddTool(createSimulateNodeTool(), handleSimulateNode(a.Engine, logger))
	s.AddTool(createGetCurvesTool(), handleGetCurves(a.Engine, logger))
	s.AddTool(createCacheStatsTool(), handleCacheStats(a.Engine))
	s.AddTool(createInvalidateNodeTool(), handleInvalidateNode(a.Engine, logger))
}

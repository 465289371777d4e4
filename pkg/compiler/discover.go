package compiler

import (
	"sort"

	"github.com/ironcurtain/ironcurtain/pkg/mcp"
)

// discoverTools asks manager for every tool on every connected server.
func discoverTools(manager *mcp.Manager) map[string][]DiscoveredTool {
	return groupDiscoveredTools(manager.AllTools())
}

// groupDiscoveredTools groups a flat tool list by server, each group sorted
// by tool name so the rest of the pipeline sees a deterministic order (and
// therefore a deterministic input hash). Split out from discoverTools so
// the grouping/sorting logic can be exercised without a live mcp.Manager.
func groupDiscoveredTools(tools []mcp.ToolWithServer) map[string][]DiscoveredTool {
	bySever := make(map[string][]DiscoveredTool)
	for _, entry := range tools {
		bySever[entry.Server] = append(bySever[entry.Server], DiscoveredTool{
			ServerName:  entry.Server,
			ToolName:    entry.Tool.Name,
			Description: entry.Tool.Description,
			InputSchema: entry.Tool.InputSchema,
		})
	}
	for server := range bySever {
		group := bySever[server]
		sort.Slice(group, func(i, j int) bool { return group[i].ToolName < group[j].ToolName })
		bySever[server] = group
	}
	return bySever
}

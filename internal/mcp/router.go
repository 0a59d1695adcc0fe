package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolCategory groups related tools.
type ToolCategory struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Tools       []ToolInfo `json:"tools"`
}

// ToolInfo contains metadata about a tool.
type ToolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
}

// toolCategories defines the grouping of tools with detailed descriptions.
var toolCategories = []ToolCategory{
	{
		Name:        "retrieval",
		Description: "Semantic search and answers over the indexed dataset",
		Tools: []ToolInfo{
			{Name: "search_rows", Description: "Rows closest in meaning to a query", Required: []string{"query"}, Optional: []string{"limit"}},
			{Name: "answer_question", Description: "Answer a question from the closest rows", Required: []string{"question"}, Optional: []string{"limit"}},
		},
	},
	{
		Name:        "index",
		Description: "Vector store collections and re-indexing",
		Tools: []ToolInfo{
			{Name: "reindex", Description: "Re-embed the dataset and replace the collection"},
			{Name: "collection_info", Description: "Row count and vector size of a collection", Optional: []string{"collection"}},
			{Name: "list_collections", Description: "All collections in the store"},
		},
	},
	{
		Name:        "sql",
		Description: "Natural language questions answered with SQL",
		Tools: []ToolInfo{
			{Name: "ask_database", Description: "Generate, run and explain a SQL query", Required: []string{"question"}},
		},
	},
}

// toolHandlerFunc is the type for tool handler functions.
type toolHandlerFunc func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// getToolHandlers returns a map of all tool handlers.
func (s *Server) getToolHandlers() map[string]toolHandlerFunc {
	return map[string]toolHandlerFunc{
		// Retrieval
		"search_rows":     s.handleSearchRows,
		"answer_question": s.handleAnswerQuestion,
		// Index
		"reindex":          s.handleReindex,
		"collection_info":  s.handleCollectionInfo,
		"list_collections": s.handleListCollections,
		// SQL
		"ask_database": s.handleAskDatabase,
	}
}

// handleRoute routes a request to the appropriate tool handler.
func (s *Server) handleRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toolName := req.GetString("tool", "")
	if toolName == "" {
		return mcp.NewToolResultError("required parameter 'tool' is missing"), nil
	}

	handler, ok := s.getToolHandlers()[toolName]
	if !ok {
		// Find similar tool names for helpful error
		suggestions := findSimilarTools(toolName)
		if len(suggestions) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s. Did you mean: %s?", toolName, strings.Join(suggestions, ", "))), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s. Use list_tools to see available tools", toolName)), nil
	}

	var params map[string]any
	if argsMap, ok := req.Params.Arguments.(map[string]any); ok {
		if p, ok := argsMap["params"].(map[string]any); ok {
			params = p
		}
	}
	if params == nil {
		params = make(map[string]any)
	}

	newReq := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: params,
		},
	}

	return handler(ctx, newReq)
}

// handleListTools returns available tools, optionally filtered by category.
func (s *Server) handleListTools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	verbose := req.GetBool("verbose", false)

	var result any

	if category != "" {
		for _, cat := range toolCategories {
			if cat.Name == category {
				result = cat
				break
			}
		}
		if result == nil {
			cats := make([]string, len(toolCategories))
			for i, cat := range toolCategories {
				cats[i] = cat.Name
			}
			return mcp.NewToolResultError(fmt.Sprintf("unknown category: %s. Available: %s", category, strings.Join(cats, ", "))), nil
		}
	} else if verbose {
		result = toolCategories
	} else {
		summary := make([]map[string]any, len(toolCategories))
		for i, cat := range toolCategories {
			toolNames := make([]string, len(cat.Tools))
			for j, t := range cat.Tools {
				toolNames[j] = t.Name
			}
			summary[i] = map[string]any{
				"category":    cat.Name,
				"description": cat.Description,
				"tools":       toolNames,
			}
		}
		result = summary
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// findSimilarTools finds tools with similar names.
func findSimilarTools(name string) []string {
	var similar []string
	name = strings.ToLower(name)

	for _, cat := range toolCategories {
		for _, tool := range cat.Tools {
			toolLower := strings.ToLower(tool.Name)
			if strings.Contains(toolLower, name) || strings.Contains(name, toolLower) {
				similar = append(similar, tool.Name)
			} else if levenshteinDistance(name, toolLower) <= 3 {
				similar = append(similar, tool.Name)
			}
		}
	}

	if len(similar) > 3 {
		similar = similar[:3]
	}
	return similar
}

// levenshteinDistance calculates edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// registerRouterTools registers the discovery tools.
func (s *Server) registerRouterTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("route",
		mcp.WithDescription(`Call any tool by name. Call list_tools first to see parameters.

Usage: route(tool="<name>", params={...})`),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name from list_tools output")),
		mcp.WithObject("params", mcp.Description("Tool parameters")),
	), s.handleRoute)

	mcpServer.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List available tools grouped by category. Call with verbose=true to see parameters."),
		mcp.WithString("category", mcp.Description("Filter by: retrieval|index|sql")),
		mcp.WithBoolean("verbose", mcp.Description("Include required/optional parameters")),
	), s.handleListTools)
}

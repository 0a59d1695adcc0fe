// Package mcp implements the MCP server for dataset retrieval.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/internal/rag"
	"github.com/spetr/tablerag/internal/sqlagent"
	"github.com/spetr/tablerag/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	config    *config.Config
	rag       *rag.Controller
	agent     *sqlagent.Agent
}

// Config contains server configuration.
type Config struct {
	Config  *config.Config
	RAG     *rag.Controller
	Agent   *sqlagent.Agent // optional, enables ask_database
	Version string
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.RAG == nil {
		return nil, fmt.Errorf("%w: rag controller is required", types.ErrInvalidConfig)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		config: cfg.Config,
		rag:    cfg.RAG,
		agent:  cfg.Agent,
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"tablerag",
		version,
		server.WithLogging(),
	)

	// Register tools
	s.registerTools(mcpServer)
	s.registerRouterTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// search_rows - Semantic row search
	mcpServer.AddTool(mcp.NewTool("search_rows",
		mcp.WithDescription(`Semantic search over the indexed dataset rows - finds rows by MEANING, not exact text.

RETURNS: Rows as {id, text, score, metadata}, best match first. Higher score means closer.`),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 3)")),
	), s.handleSearchRows)

	// answer_question - RAG answer from retrieved rows
	mcpServer.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer a question using the closest dataset rows as context"),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
		mcp.WithNumber("limit", mcp.Description("Rows used as context (default 3)")),
	), s.handleAnswerQuestion)

	// reindex - Rebuild the collection from the dataset
	mcpServer.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Re-embed the dataset and replace the collection"),
	), s.handleReindex)

	// collection_info - Size and dimensions of a collection
	mcpServer.AddTool(mcp.NewTool("collection_info",
		mcp.WithDescription("Get row count, vector size and distance of a collection"),
		mcp.WithString("collection", mcp.Description("Collection name (default: configured collection)")),
	), s.handleCollectionInfo)

	// list_collections - All collections in the store
	mcpServer.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List all collections in the vector store"),
	), s.handleListCollections)

	// ask_database - Natural language to SQL
	mcpServer.AddTool(mcp.NewTool("ask_database",
		mcp.WithDescription(`Answer a question by generating and running a SQL query against the SQLite database.

WHEN TO USE: counts, minimum/maximum, averages, exact filters ("cheapest", "how many", "newest").
WHEN TO USE search_rows INSTEAD: fuzzy or descriptive lookups.`),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
	), s.handleAskDatabase)
}

// Tool handlers

func (s *Server) handleSearchRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", rag.DefaultLimit)

	results := s.rag.Search(ctx, query, limit)
	return jsonResult(results)
}

func (s *Server) handleAnswerQuestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := req.GetString("question", "")
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	limit := req.GetInt("limit", rag.DefaultLimit)

	answer, docs, err := s.rag.Answer(ctx, question, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}

	sources := make([]string, len(docs))
	for i, d := range docs {
		sources[i] = d.ID
	}
	return jsonResult(map[string]any{
		"answer":  answer,
		"sources": sources,
	})
}

func (s *Server) handleReindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slog.Info("starting reindex", "collection", s.rag.Collection())

	info, err := s.rag.ForceReindex(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reindex failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"success":    true,
		"collection": info,
	})
}

func (s *Server) handleCollectionInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("collection", s.rag.Collection())

	info, err := s.rag.Store().GetCollectionInfo(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get collection info: %v", err)), nil
	}
	return jsonResult(info)
}

func (s *Server) handleListCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.rag.Store().ListAllCollections(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list collections: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"store":       s.rag.Store().Name(),
		"collections": names,
	})
}

func (s *Server) handleAskDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.agent == nil {
		return mcp.NewToolResultError("SQL agent is not configured"), nil
	}
	question := req.GetString("question", "")
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	answer, err := s.agent.Ask(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(answer)
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const RAGQueryTool = "rag_query"

// ToolRunner runs a registered tool and reports failures as errors.
type ToolRunner interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

type Dependencies struct {
	Tools   ToolRunner
	Catalog ports.ToolCatalog
	Queries ports.QueryProcessor
	// DefaultUserID scopes rag_query calls that carry no user_id argument.
	DefaultUserID string
}

// Server exposes the tool registry and the hybrid query workflow as MCP tools.
type Server struct {
	deps Dependencies
	mcp  *server.MCPServer
}

func NewServer(name, version string, deps Dependencies) *Server {
	s := &Server{
		deps: deps,
		mcp:  server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}

	if deps.Catalog != nil && deps.Tools != nil {
		for _, info := range deps.Catalog.Catalog() {
			s.mcp.AddTool(registryTool(info), s.invokeTool(info.Name))
		}
	}
	if deps.Queries != nil {
		s.mcp.AddTool(mcp.NewTool(RAGQueryTool,
			mcp.WithDescription("Answers a question from the caller's indexed documents with sources."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer.")),
			mcp.WithString("thread_id", mcp.Description("Existing conversation thread to continue.")),
			mcp.WithString("user_id", mcp.Description("Owner of the documents to search.")),
		), s.ragQuery)
	}
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func registryTool(info domain.ToolInfo) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(info.Description)}
	if info.Name == domain.ToolCalculate {
		opts = append(opts, mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Arithmetic expression, e.g. (2 + 3) * 4."),
		))
	}
	return mcp.NewTool(info.Name, opts...)
}

func (s *Server) invokeTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := s.deps.Tools.Invoke(ctx, name, request.GetArguments())
		slog.Debug("mcp_tool_called", "tool", name, "failed", err != nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func (s *Server) ragQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID := strings.TrimSpace(request.GetString("user_id", s.deps.DefaultUserID))
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	resp, err := s.deps.Queries.ProcessQuery(ctx, query, userID, request.GetString("thread_id", ""))
	if err != nil {
		slog.Warn("mcp_rag_query_failed", "user_id", userID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	slog.Debug("mcp_tool_called", "tool", RAGQueryTool, "user_id", userID)
	return mcp.NewToolResultText(string(payload)), nil
}

package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/tools"
)

type fakeQueries struct {
	err      error
	userID   string
	threadID string
}

func (f *fakeQueries) ProcessQuery(_ context.Context, query, userID, threadID string) (*domain.QueryResponse, error) {
	f.userID, f.threadID = userID, threadID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.QueryResponse{Answer: "answer to " + query, ThreadID: "thread-1", Sources: []domain.Source{}}, nil
}

func newTestServer(queries *fakeQueries) *Server {
	registry := tools.NewDefaultRegistry(func() time.Time {
		return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	})
	return NewServer("test", "0.0.0", Dependencies{
		Tools:         tools.NewExecutor(registry),
		Catalog:       registry,
		Queries:       queries,
		DefaultUserID: "default-user",
	})
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestServerRegistersTools(t *testing.T) {
	s := newTestServer(&fakeQueries{})
	registered := s.MCPServer().ListTools()
	for _, name := range []string{domain.ToolCalculate, domain.ToolCurrentDate, RAGQueryTool} {
		if _, ok := registered[name]; !ok {
			t.Fatalf("tool %q not registered", name)
		}
	}
}

func TestCalculateTool(t *testing.T) {
	s := newTestServer(&fakeQueries{})
	result, err := s.invokeTool(domain.ToolCalculate)(context.Background(), callRequest(domain.ToolCalculate, map[string]any{"expression": "(2 + 3) * 4"}))
	if err != nil {
		t.Fatalf("calculate error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if got := resultText(t, result); got != "20" {
		t.Fatalf("expected 20, got %q", got)
	}
}

func TestCalculateToolReportsEvaluationError(t *testing.T) {
	s := newTestServer(&fakeQueries{})
	result, err := s.invokeTool(domain.ToolCalculate)(context.Background(), callRequest(domain.ToolCalculate, map[string]any{"expression": "1/0"}))
	if err != nil {
		t.Fatalf("calculate error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result, got %q", resultText(t, result))
	}
	if got := resultText(t, result); !strings.Contains(got, "division by zero") {
		t.Fatalf("expected evaluation message, got %q", got)
	}
}

func TestCurrentDateTool(t *testing.T) {
	s := newTestServer(&fakeQueries{})
	result, err := s.invokeTool(domain.ToolCurrentDate)(context.Background(), callRequest(domain.ToolCurrentDate, nil))
	if err != nil {
		t.Fatalf("current date error = %v", err)
	}
	if got := resultText(t, result); got != "2026-10-16 09:30:00" {
		t.Fatalf("unexpected date %q", got)
	}
}

func TestRAGQueryUsesDefaultUser(t *testing.T) {
	queries := &fakeQueries{}
	s := newTestServer(queries)
	result, err := s.ragQuery(context.Background(), callRequest(RAGQueryTool, map[string]any{"query": "what is bm25?"}))
	if err != nil {
		t.Fatalf("rag_query error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if queries.userID != "default-user" || queries.threadID != "" {
		t.Fatalf("unexpected call user=%q thread=%q", queries.userID, queries.threadID)
	}

	var resp domain.QueryResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.Answer != "answer to what is bm25?" {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
}

func TestRAGQueryMissingQuery(t *testing.T) {
	s := newTestServer(&fakeQueries{})
	result, err := s.ragQuery(context.Background(), callRequest(RAGQueryTool, map[string]any{}))
	if err != nil {
		t.Fatalf("rag_query error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
}

func TestRAGQueryPropagatesFailure(t *testing.T) {
	queries := &fakeQueries{err: domain.WrapError(domain.ErrTemporary, "ollama.chat", errors.New("down"))}
	s := newTestServer(queries)
	result, err := s.ragQuery(context.Background(), callRequest(RAGQueryTool, map[string]any{
		"query":     "q",
		"user_id":   "user-9",
		"thread_id": "thread-3",
	}))
	if err != nil {
		t.Fatalf("rag_query error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if queries.userID != "user-9" || queries.threadID != "thread-3" {
		t.Fatalf("unexpected call user=%q thread=%q", queries.userID, queries.threadID)
	}
}

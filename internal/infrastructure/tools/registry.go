package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

const (
	CurrentDateTool = domain.ToolCurrentDate
	CalculateTool   = domain.ToolCalculate
)

// Tool is a named deterministic capability callable by the workflow.
type Tool interface {
	Description() string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	Desc string
	Fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (f Func) Description() string {
	return f.Desc
}

func (f Func) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

// Registry maps tool names to tools. Registration is allowed at any time;
// re-registering a name replaces the previous tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(name string, tool Tool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool == nil {
		return fmt.Errorf("tool %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	slog.Debug("tool_registered", "tool", name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ListNames returns tool names in registration order.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Catalog returns name and description of every tool in registration order.
func (r *Registry) Catalog() []domain.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, domain.ToolInfo{Name: name, Description: r.tools[name].Description()})
	}
	return out
}

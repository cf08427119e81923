package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

var errToolNotFound = errors.New("tool not found")

// Executor invokes registry tools. Execute converts every failure into a
// result string; Invoke reports it as a domain.ErrTool error.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) string {
	out, err := e.run(ctx, name, args)
	switch {
	case errors.Is(err, errToolNotFound):
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	case err != nil:
		return fmt.Sprintf("Error executing tool '%s': %s", name, err.Error())
	}
	return out
}

// Invoke is Execute for callers that need to tell failures from results.
func (e *Executor) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	out, err := e.run(ctx, name, args)
	if err != nil {
		return "", domain.WrapError(domain.ErrTool, "invoke tool "+name, err)
	}
	return out, nil
}

func (e *Executor) run(ctx context.Context, name string, args map[string]any) (out string, err error) {
	tool, ok := e.registry.Get(name)
	if !ok {
		slog.Warn("tool_not_found", "tool", name)
		return "", errToolNotFound
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool_panic", "tool", name, "panic", fmt.Sprint(rec))
			out, err = "", fmt.Errorf("%v", rec)
		}
	}()

	out, err = tool.Invoke(ctx, args)
	if err != nil {
		slog.Warn("tool_failed", "tool", name, "error", err)
		return "", err
	}
	slog.Debug("tool_executed", "tool", name)
	return out, nil
}

func (e *Executor) Registry() *Registry {
	return e.registry
}

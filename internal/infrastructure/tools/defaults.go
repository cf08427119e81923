package tools

import (
	"context"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02 15:04:05"

// NewDefaultRegistry returns a registry with the current-date and calculator
// tools. now may be nil.
func NewDefaultRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := NewRegistry()
	_ = r.Register(CurrentDateTool, CurrentDate{Now: now})
	_ = r.Register(CalculateTool, Calculator{})
	return r
}

type CurrentDate struct {
	Now func() time.Time
}

func (CurrentDate) Description() string {
	return "Returns the current local date and time."
}

func (t CurrentDate) Invoke(_ context.Context, _ map[string]any) (string, error) {
	now := t.Now
	if now == nil {
		now = time.Now
	}
	return now().Format(dateLayout), nil
}

type Calculator struct{}

func (Calculator) Description() string {
	return "Evaluates an arithmetic expression with + - * / % ** and parentheses."
}

func (Calculator) Invoke(_ context.Context, args map[string]any) (string, error) {
	raw, ok := args["expression"]
	if !ok {
		return "", fmt.Errorf("missing argument \"expression\"")
	}
	expression, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument \"expression\" must be a string")
	}
	return Evaluate(expression)
}

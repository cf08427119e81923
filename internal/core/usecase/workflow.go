package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

type WorkflowState string

const (
	StateRetrieval     WorkflowState = "retrieval"
	StateReranking     WorkflowState = "reranking"
	StateToolAnalysis  WorkflowState = "tool_analysis"
	StateToolExecution WorkflowState = "tool_execution"
	StateGeneration    WorkflowState = "generation"
	StateError         WorkflowState = "error"
)

const (
	NoContextAnswer        = "I couldn't find any relevant information in your documents to answer this question. Please upload relevant documents first."
	GenerationFailedAnswer = "I encountered an error while generating the answer. Please try again."
	errorAnswerPrefix      = "An error occurred: "
	toolResultDatePrefix   = "Current date: "
	toolResultCalcPrefix   = "Calculation result: "
)

// NextState is the workflow transition function. Terminal states map to
// themselves.
func NextState(current WorkflowState, qs *domain.QueryState) WorkflowState {
	switch current {
	case StateRetrieval:
		if qs.Err != nil {
			return StateError
		}
		return StateReranking
	case StateReranking:
		return StateToolAnalysis
	case StateToolAnalysis:
		if qs.ToolNeeded {
			return StateToolExecution
		}
		return StateGeneration
	case StateToolExecution:
		return StateGeneration
	default:
		return current
	}
}

func IsTerminal(state WorkflowState) bool {
	return state == StateGeneration || state == StateError
}

type WorkflowConfig struct {
	KeywordTopK       int
	VectorTopK        int
	HybridTopK        int
	RerankTopK        int
	RRFK              int
	RetrievalTimeout  time.Duration
	ToolTimeout       time.Duration
	GenerationTimeout time.Duration
}

func (c WorkflowConfig) normalize() WorkflowConfig {
	if c.KeywordTopK <= 0 {
		c.KeywordTopK = 10
	}
	if c.VectorTopK <= 0 {
		c.VectorTopK = 10
	}
	if c.HybridTopK <= 0 {
		c.HybridTopK = 10
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 5
	}
	if c.RRFK <= 0 {
		c.RRFK = defaultRRFK
	}
	return c
}

// WorkflowEngine sequences retrieval, reranking, tool use and generation for
// one query. It holds no per-query state and is safe for concurrent use.
type WorkflowEngine struct {
	keyword   ports.KeywordIndexProvider
	vector    ports.VectorSearcher
	reranker  ports.DocumentReranker
	tools     ports.ToolInvoker
	generator ports.AnswerGenerator
	observer  ports.WorkflowObserver
	cfg       WorkflowConfig
}

func NewWorkflowEngine(
	keyword ports.KeywordIndexProvider,
	vector ports.VectorSearcher,
	reranker ports.DocumentReranker,
	tools ports.ToolInvoker,
	generator ports.AnswerGenerator,
	observer ports.WorkflowObserver,
	cfg WorkflowConfig,
) *WorkflowEngine {
	return &WorkflowEngine{
		keyword:   keyword,
		vector:    vector,
		reranker:  reranker,
		tools:     tools,
		generator: generator,
		observer:  observer,
		cfg:       cfg.normalize(),
	}
}

// Run drives qs from retrieval to a terminal state and returns the visited
// states in order. qs.Answer is always set on return.
func (e *WorkflowEngine) Run(ctx context.Context, qs *domain.QueryState) []WorkflowState {
	state := StateRetrieval
	path := make([]WorkflowState, 0, 5)
	for {
		path = append(path, state)
		started := time.Now()
		failed := e.runStage(ctx, state, qs)
		elapsed := time.Since(started)
		qs.RecordTiming(string(state), elapsed)
		if e.observer != nil {
			e.observer.ObserveStage(string(state), elapsed.Seconds(), failed)
		}
		if IsTerminal(state) {
			return path
		}
		state = NextState(state, qs)
	}
}

func (e *WorkflowEngine) runStage(ctx context.Context, state WorkflowState, qs *domain.QueryState) bool {
	switch state {
	case StateRetrieval:
		return e.retrieve(ctx, qs)
	case StateReranking:
		return e.rerank(ctx, qs)
	case StateToolAnalysis:
		qs.ToolName, qs.ToolNeeded = AnalyzeToolNeed(qs.Query)
		qs.AddStep(domain.StepToolAnalysis)
		return false
	case StateToolExecution:
		return e.executeTool(ctx, qs)
	case StateGeneration:
		return e.generate(ctx, qs)
	case StateError:
		e.fail(qs)
		return true
	default:
		qs.Err = fmt.Errorf("unknown workflow state %q", state)
		e.fail(qs)
		return true
	}
}

func (e *WorkflowEngine) retrieve(ctx context.Context, qs *domain.QueryState) bool {
	ctx, cancel := withOptionalTimeout(ctx, e.cfg.RetrievalTimeout)
	defer cancel()

	started := time.Now()
	var keyword, vector []domain.RetrievalResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(recovered("keyword search", func() error {
		index, err := e.keyword.IndexFor(gctx, qs.UserID)
		if err != nil {
			return fmt.Errorf("load keyword index: %w", err)
		}
		keyword = index.Search(qs.Query, e.cfg.KeywordTopK)
		return nil
	}))
	g.Go(recovered("vector search", func() error {
		results, err := e.vector.Search(gctx, qs.Query, qs.UserID, e.cfg.VectorTopK)
		if err != nil {
			return err
		}
		vector = results
		return nil
	}))
	err := g.Wait()
	qs.Metadata.RetrievalTimeMS = float64(time.Since(started).Microseconds()) / 1000.0

	if err != nil {
		qs.Err = domain.WrapError(domain.ErrRetrieval, "retrieval", err)
		slog.ErrorContext(ctx, "retrieval_stage_failed", "user_id", qs.UserID, "error", err)
		return true
	}

	qs.KeywordResults = keyword
	qs.VectorResults = vector
	qs.FusedResults = FuseRRF(keyword, vector, e.cfg.HybridTopK, e.cfg.RRFK)
	qs.Metadata.DocumentsRetrieved = len(qs.FusedResults)
	qs.AddStep(domain.StepRetrieval)
	slog.DebugContext(ctx, "retrieval_stage_done",
		"keyword", len(keyword),
		"vector", len(vector),
		"fused", len(qs.FusedResults),
	)
	return false
}

func (e *WorkflowEngine) rerank(ctx context.Context, qs *domain.QueryState) bool {
	defer qs.AddStep(domain.StepReranking)
	if len(qs.FusedResults) == 0 {
		qs.RerankedResults = []domain.RerankedResult{}
		qs.ContextDocuments = []domain.RerankedResult{}
		return false
	}

	reranked, err := e.safeRerank(ctx, qs)
	failed := false
	if err != nil {
		slog.WarnContext(ctx, "rerank_degraded", "reason", "panic", "error", err)
		if e.observer != nil {
			e.observer.RecordRerankDegraded("panic")
		}
		reranked = passThrough(qs.FusedResults, min(e.cfg.RerankTopK, len(qs.FusedResults)))
		failed = true
	}
	qs.RerankedResults = reranked
	qs.ContextDocuments = reranked
	qs.Metadata.DocumentsReranked = len(reranked)
	qs.Metadata.RerankDegraded = len(reranked) > 0 && reranked[0].RerankScore == nil
	return failed
}

func (e *WorkflowEngine) safeRerank(ctx context.Context, qs *domain.QueryState) (out []domain.RerankedResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reranker panic: %v", rec)
		}
	}()
	return e.reranker.Rerank(ctx, qs.Query, qs.FusedResults, e.cfg.RerankTopK), nil
}

func (e *WorkflowEngine) executeTool(ctx context.Context, qs *domain.QueryState) bool {
	defer qs.AddStep(domain.StepToolExecution)
	ctx, cancel := withOptionalTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	var result string
	switch qs.ToolName {
	case domain.ToolCurrentDate:
		result = e.tools.Execute(ctx, domain.ToolCurrentDate, nil)
		qs.ToolResult = toolResultDatePrefix + result
	case domain.ToolCalculate:
		expression, ok := ArithmeticExpression(qs.Query)
		if !ok {
			slog.DebugContext(ctx, "tool_skipped", "tool", qs.ToolName, "reason", "not_enough_operands")
			e.recordTool(qs.ToolName, "skipped")
			return false
		}
		result = e.tools.Execute(ctx, domain.ToolCalculate, map[string]any{"expression": expression})
		qs.ToolResult = toolResultCalcPrefix + result
	default:
		result = e.tools.Execute(ctx, qs.ToolName, nil)
		qs.ToolResult = result
	}

	failed := strings.HasPrefix(result, "Error")
	if failed {
		e.recordTool(qs.ToolName, "error")
	} else {
		e.recordTool(qs.ToolName, "ok")
	}
	return failed
}

func (e *WorkflowEngine) recordTool(tool, status string) {
	if e.observer != nil {
		e.observer.RecordToolCall(tool, status)
	}
}

func (e *WorkflowEngine) generate(ctx context.Context, qs *domain.QueryState) bool {
	if len(qs.ContextDocuments) == 0 && qs.ToolResult == "" {
		slog.WarnContext(ctx, "generation_no_context", "user_id", qs.UserID)
		qs.Answer = NoContextAnswer
		qs.Metadata.DocumentsUsed = 0
		qs.AddStep(domain.StepGeneration)
		return false
	}

	gctx, cancel := withOptionalTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	started := time.Now()
	answer, err := e.safeGenerate(gctx, qs)
	qs.Metadata.GenerationTimeMS = float64(time.Since(started).Microseconds()) / 1000.0
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty answer")
	}
	if err != nil {
		qs.Err = domain.WrapError(domain.ErrGeneration, "generation", err)
		qs.Answer = GenerationFailedAnswer
		slog.ErrorContext(ctx, "generation_stage_failed", "user_id", qs.UserID, "error", err)
		return true
	}

	if qs.ToolResult != "" {
		answer = qs.ToolResult + "\n\n" + answer
	}
	qs.Answer = answer
	qs.Metadata.DocumentsUsed = len(qs.ContextDocuments)
	qs.AddStep(domain.StepGeneration)
	return false
}

func (e *WorkflowEngine) safeGenerate(ctx context.Context, qs *domain.QueryState) (answer string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("generator panic: %v", rec)
		}
	}()
	return e.generator.GenerateWithContext(ctx, qs.Query, qs.ContextDocuments, qs.History)
}

func (e *WorkflowEngine) fail(qs *domain.QueryState) {
	reason := "unknown error"
	if qs.Err != nil {
		reason = qs.Err.Error()
	}
	qs.Answer = errorAnswerPrefix + reason
	qs.AddStep(domain.StepError)
}

func recovered(op string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%s panic: %v", op, rec)
			}
		}()
		return fn()
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

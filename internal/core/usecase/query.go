package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const (
	excerptLength       = 200
	threadTitleLength   = 50
	defaultHistoryLimit = 6
)

// QueryUseCase answers a question through the workflow engine and keeps the
// conversation thread up to date.
type QueryUseCase struct {
	engine        *WorkflowEngine
	documents     ports.DocumentRepository
	conversations ports.ConversationStore
	observer      ports.WorkflowObserver
	historyLimit  int
}

func NewQueryUseCase(
	engine *WorkflowEngine,
	documents ports.DocumentRepository,
	conversations ports.ConversationStore,
	observer ports.WorkflowObserver,
	historyLimit int,
) *QueryUseCase {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &QueryUseCase{
		engine:        engine,
		documents:     documents,
		conversations: conversations,
		observer:      observer,
		historyLimit:  historyLimit,
	}
}

func (uc *QueryUseCase) ProcessQuery(ctx context.Context, query, userID, threadID string) (*domain.QueryResponse, error) {
	query = strings.TrimSpace(query)
	userID = strings.TrimSpace(userID)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("query is required"))
	}
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("user id is required"))
	}

	thread, err := uc.resolveThread(ctx, userID, strings.TrimSpace(threadID), query)
	if err != nil {
		return nil, err
	}
	history := uc.loadHistory(ctx, thread.ThreadID)
	uc.appendMessage(ctx, domain.ConversationMessage{
		ThreadID: thread.ThreadID,
		Role:     domain.RoleUser,
		Content:  query,
	})

	qs := domain.NewQueryState(query, userID, thread.ThreadID)
	qs.History = history

	started := time.Now()
	uc.engine.Run(ctx, qs)
	total := float64(time.Since(started).Microseconds()) / 1000.0

	resp := &domain.QueryResponse{
		Answer:   qs.Answer,
		ThreadID: thread.ThreadID,
		Sources:  uc.buildSources(ctx, qs.ContextDocuments),
		Metadata: domain.QueryMetadata{
			Confidence:         Confidence(qs.ContextDocuments),
			Steps:              append([]string{}, qs.Metadata.Steps...),
			RetrievalTimeMS:    qs.Metadata.RetrievalTimeMS,
			GenerationTimeMS:   qs.Metadata.GenerationTimeMS,
			TotalTimeMS:        total,
			DocumentsRetrieved: qs.Metadata.DocumentsRetrieved,
			DocumentsUsed:      qs.Metadata.DocumentsUsed,
			RerankDegraded:     qs.Metadata.RerankDegraded,
		},
	}
	if qs.ToolResult != "" {
		resp.Metadata.ToolUsed = qs.ToolName
	}

	uc.appendMessage(ctx, domain.ConversationMessage{
		ThreadID: thread.ThreadID,
		Role:     domain.RoleAssistant,
		Content:  resp.Answer,
		Metadata: map[string]any{
			"sources":            resp.Sources,
			"confidence":         resp.Metadata.Confidence,
			"steps":              resp.Metadata.Steps,
			"retrieval_time_ms":  resp.Metadata.RetrievalTimeMS,
			"generation_time_ms": resp.Metadata.GenerationTimeMS,
			"total_time_ms":      resp.Metadata.TotalTimeMS,
		},
	})

	if uc.observer != nil {
		uc.observer.ObserveQuery(resp.Metadata.Confidence, resp.Metadata.DocumentsUsed, qs.Err != nil)
	}
	if qs.Err != nil {
		slog.WarnContext(ctx, "query_degraded", "thread_id", thread.ThreadID, "error", qs.Err)
	}
	return resp, nil
}

// Confidence is the mean raw retrieval score of the context documents,
// clamped to [0, 1].
func Confidence(docs []domain.RerankedResult) float64 {
	if len(docs) == 0 {
		return 0
	}
	sum := 0.0
	for _, doc := range docs {
		sum += doc.Score
	}
	return min(1, max(0, sum/float64(len(docs))))
}

// Excerpt returns the first 200 characters of content, marked when truncated.
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength]) + "..."
}

func NewThreadID() string {
	return "thread_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func threadTitle(query string) string {
	runes := []rune(query)
	if len(runes) <= threadTitleLength {
		return query
	}
	return string(runes[:threadTitleLength]) + "..."
}

func (uc *QueryUseCase) resolveThread(ctx context.Context, userID, threadID, query string) (*domain.Thread, error) {
	if uc.conversations == nil {
		if threadID == "" {
			threadID = NewThreadID()
		}
		return &domain.Thread{ThreadID: threadID, UserID: userID}, nil
	}

	if threadID != "" {
		thread, err := uc.conversations.GetThread(ctx, userID, threadID)
		if err == nil {
			return thread, nil
		}
		if !domain.IsKind(err, domain.ErrThreadNotFound) {
			return nil, domain.WrapError(domain.ErrTemporary, "load thread", err)
		}
		slog.InfoContext(ctx, "thread_not_found_creating", "thread_id", threadID)
	}

	now := time.Now().UTC()
	thread := &domain.Thread{
		ID:        uuid.NewString(),
		ThreadID:  NewThreadID(),
		UserID:    userID,
		Title:     threadTitle(query),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.conversations.CreateThread(ctx, thread); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "create thread", err)
	}
	return thread, nil
}

func (uc *QueryUseCase) loadHistory(ctx context.Context, threadID string) []domain.ConversationMessage {
	if uc.conversations == nil {
		return nil
	}
	history, err := uc.conversations.ListMessages(ctx, threadID, uc.historyLimit)
	if err != nil {
		slog.WarnContext(ctx, "load_history_failed", "thread_id", threadID, "error", err)
		return nil
	}
	return history
}

func (uc *QueryUseCase) appendMessage(ctx context.Context, msg domain.ConversationMessage) {
	if uc.conversations == nil {
		return
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	if err := uc.conversations.AppendMessage(ctx, msg); err != nil {
		slog.WarnContext(ctx, "append_message_failed", "thread_id", msg.ThreadID, "role", msg.Role, "error", err)
	}
}

func (uc *QueryUseCase) buildSources(ctx context.Context, docs []domain.RerankedResult) []domain.Source {
	filenames := make(map[string]string)
	out := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		documentID := doc.DocumentID()
		src := domain.Source{
			DocumentID:     documentID,
			Filename:       domain.MetadataString(doc.Metadata, domain.MetaFilename),
			ChunkIndex:     doc.ChunkIndex(),
			ContentExcerpt: Excerpt(doc.Content),
			RelevanceScore: doc.RelevanceScore(),
		}
		if page, ok := doc.Page(); ok {
			src.Page = &page
		}
		if src.Filename == "" && documentID != "" {
			src.Filename = uc.lookupFilename(ctx, documentID, filenames)
		}
		out = append(out, src)
	}
	return out
}

func (uc *QueryUseCase) lookupFilename(ctx context.Context, documentID string, cache map[string]string) string {
	if name, ok := cache[documentID]; ok {
		return name
	}
	name := ""
	if uc.documents != nil {
		if doc, err := uc.documents.GetByID(ctx, documentID); err == nil {
			name = doc.Filename
		}
	}
	cache[documentID] = name
	return name
}

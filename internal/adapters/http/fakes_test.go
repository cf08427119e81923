package httpadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

type fakeIngestor struct {
	err      error
	userID   string
	filename string
	mimeType string
	body     string
}

func (f *fakeIngestor) Upload(_ context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.userID, f.filename, f.mimeType, f.body = userID, filename, mimeType, string(raw)

	now := time.Now().UTC()
	return &domain.Document{
		ID:        "doc-1",
		UserID:    userID,
		Filename:  filename,
		MimeType:  mimeType,
		FileSize:  int64(len(raw)),
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type fakeDocuments struct {
	docs    map[string]domain.Document
	err     error
	deleted []string
}

func (f *fakeDocuments) GetForUser(_ context.Context, userID, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok || doc.UserID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return &doc, nil
}

func (f *fakeDocuments) ListForUser(_ context.Context, userID string) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []domain.Document{}
	for _, doc := range f.docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeDocuments) Delete(ctx context.Context, userID, id string) error {
	if _, err := f.GetForUser(ctx, userID, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeQueries struct {
	err      error
	query    string
	userID   string
	threadID string
}

func (f *fakeQueries) ProcessQuery(_ context.Context, query, userID, threadID string) (*domain.QueryResponse, error) {
	f.query, f.userID, f.threadID = query, userID, threadID
	if f.err != nil {
		return nil, f.err
	}
	if threadID == "" {
		threadID = "thread-new"
	}
	return &domain.QueryResponse{
		Answer:   "The answer.",
		ThreadID: threadID,
		Sources:  []domain.Source{},
		Metadata: domain.QueryMetadata{Confidence: 0.5, Steps: []string{domain.StepRetrieval, domain.StepGeneration}},
	}, nil
}

type fakeThreads struct {
	threads []domain.Thread
	limit   int
	offset  int
}

func (f *fakeThreads) ListThreads(_ context.Context, userID string, limit, offset int) ([]domain.Thread, error) {
	f.limit, f.offset = limit, offset
	out := []domain.Thread{}
	for _, thread := range f.threads {
		if thread.UserID == userID {
			out = append(out, thread)
		}
	}
	return out, nil
}

func (f *fakeThreads) GetThread(_ context.Context, userID, threadID string) (*domain.ThreadWithMessages, error) {
	for _, thread := range f.threads {
		if thread.ThreadID == threadID && thread.UserID == userID {
			return &domain.ThreadWithMessages{
				Thread: thread,
				Messages: []domain.ConversationMessage{
					{ThreadID: threadID, Role: domain.RoleUser, Content: "hi"},
					{ThreadID: threadID, Role: domain.RoleAssistant, Content: "hello"},
				},
			}, nil
		}
	}
	return nil, domain.WrapError(domain.ErrThreadNotFound, "get thread", fmt.Errorf("thread %s", threadID))
}

func (f *fakeThreads) DeleteThread(ctx context.Context, userID, threadID string) error {
	_, err := f.GetThread(ctx, userID, threadID)
	return err
}

type fakeTools struct{}

func (fakeTools) Catalog() []domain.ToolInfo {
	return []domain.ToolInfo{
		{Name: domain.ToolCalculate, Description: "Evaluates arithmetic."},
		{Name: domain.ToolCurrentDate, Description: "Returns the current date."},
	}
}

func newTestDependencies() Dependencies {
	docs := &fakeDocuments{docs: map[string]domain.Document{
		"doc-1": {ID: "doc-1", UserID: "user-1", Filename: "a.txt", Status: domain.StatusReady},
		"doc-2": {ID: "doc-2", UserID: "user-2", Filename: "b.txt", Status: domain.StatusReady},
	}}
	return Dependencies{
		Ingestor:  &fakeIngestor{},
		Documents: docs,
		Remover:   docs,
		Queries:   &fakeQueries{},
		Threads: &fakeThreads{threads: []domain.Thread{
			{ID: "t-1", ThreadID: "thread-1", UserID: "user-1", Title: "First", MessageCount: 2},
		}},
		Tools: fakeTools{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

package ports

import (
	"context"
	"io"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetForUser(ctx context.Context, userID, id string) (*domain.Document, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Document, error)
}

// DocumentRemover deletes a document with its chunks, vectors and stored file.
type DocumentRemover interface {
	Delete(ctx context.Context, userID, id string) error
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QueryProcessor runs the hybrid retrieval workflow for one question.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query, userID, threadID string) (*domain.QueryResponse, error)
}

// ThreadService reads and removes conversation threads.
type ThreadService interface {
	ListThreads(ctx context.Context, userID string, limit, offset int) ([]domain.Thread, error)
	GetThread(ctx context.Context, userID, threadID string) (*domain.ThreadWithMessages, error)
	DeleteThread(ctx context.Context, userID, threadID string) error
}

// ToolCatalog lists the tools available to the workflow.
type ToolCatalog interface {
	Catalog() []domain.ToolInfo
}

package ports

import (
	"context"
	"io"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

// DocumentRepository persists and reads document state and chunks.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveChunks(ctx context.Context, documentID string, chunks []domain.StoredChunk) error
	Delete(ctx context.Context, id string) error
}

// ChunkCorpus reads a user's chunk corpus for keyword indexing.
type ChunkCorpus interface {
	ListChunksByUser(ctx context.Context, userID string) ([]domain.Chunk, error)
	CorpusVersion(ctx context.Context, userID string) (domain.CorpusVersion, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain-text pages from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]string, error)
}

// Chunker splits text into overlapping retrievable chunks.
type Chunker interface {
	Chunk(text string, base map[string]any) []domain.Chunk
	ChunkByPages(pages []string, base map[string]any) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes chunk vectors and performs user-scoped similarity search.
type VectorStore interface {
	Upsert(ctx context.Context, points []domain.VectorPoint) error
	Search(ctx context.Context, vector []float32, userID string, limit int) ([]domain.RetrievalResult, error)
	DeleteByDocument(ctx context.Context, documentID, userID string) error
}

// KeywordSearcher ranks a built corpus against a query.
type KeywordSearcher interface {
	Search(query string, topK int) []domain.RetrievalResult
}

// KeywordIndexProvider returns the keyword index for a user's corpus.
type KeywordIndexProvider interface {
	IndexFor(ctx context.Context, userID string) (KeywordSearcher, error)
	Invalidate(userID string)
}

// VectorSearcher embeds a query and searches the user's vectors.
type VectorSearcher interface {
	Search(ctx context.Context, query, userID string, topK int) ([]domain.RetrievalResult, error)
}

// RelevanceScorer scores (query, text) pairs; higher is more relevant.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// DocumentReranker reorders fused candidates. It never fails.
type DocumentReranker interface {
	Rerank(ctx context.Context, query string, docs []domain.FusedResult, topK int) []domain.RerankedResult
}

// ToolInvoker runs a registered tool and always returns a printable result.
type ToolInvoker interface {
	Execute(ctx context.Context, name string, args map[string]any) string
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateWithContext(ctx context.Context, query string, docs []domain.RerankedResult, history []domain.ConversationMessage) (string, error)
}

// ConversationStore persists threads and their messages.
type ConversationStore interface {
	CreateThread(ctx context.Context, thread *domain.Thread) error
	GetThread(ctx context.Context, userID, threadID string) (*domain.Thread, error)
	ListThreads(ctx context.Context, userID string, limit, offset int) ([]domain.Thread, error)
	DeleteThread(ctx context.Context, userID, threadID string) error
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListMessages(ctx context.Context, threadID string, limit int) ([]domain.ConversationMessage, error)
}

// WorkflowObserver receives workflow telemetry. Implementations must be safe
// for concurrent use.
type WorkflowObserver interface {
	ObserveStage(stage string, seconds float64, failed bool)
	RecordToolCall(tool, status string)
	RecordRerankDegraded(reason string)
	ObserveQuery(confidence float64, documentsUsed int, failed bool)
}

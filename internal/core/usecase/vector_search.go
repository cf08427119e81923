package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const (
	defaultEmbeddingDimension = 768
	defaultEmbedBatchSize     = 16
)

// VectorSearchService embeds text and talks to the vector store on behalf of
// the retrieval and ingestion flows.
type VectorSearchService struct {
	embedder  ports.Embedder
	store     ports.VectorStore
	dimension int
	batchSize int
}

func NewVectorSearchService(embedder ports.Embedder, store ports.VectorStore, dimension, batchSize int) *VectorSearchService {
	if dimension <= 0 {
		dimension = defaultEmbeddingDimension
	}
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &VectorSearchService{
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		batchSize: batchSize,
	}
}

// ChunkPointID is the stable external id of a chunk in the vector store.
func ChunkPointID(documentID string, chunkIndex int, userID string) string {
	return fmt.Sprintf("doc_%s_chunk_%d_user_%s", documentID, chunkIndex, userID)
}

func (s *VectorSearchService) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

func (s *VectorSearchService) Search(ctx context.Context, query, userID string, topK int) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", errors.New("user id is required"))
	}
	vector, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, vector, userID, topK)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	for i := range results {
		results[i].Source = domain.SourceVector
	}
	return results, nil
}

// Upsert embeds and stores chunks for one document and returns their external
// ids in chunk order. A chunk whose embedding fails is stored with a zero
// vector so the rest of the document stays searchable.
func (s *VectorSearchService) Upsert(ctx context.Context, chunks []domain.Chunk, documentID, userID string) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	vectors := s.embedAll(ctx, chunks)
	points := make([]domain.VectorPoint, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = ChunkPointID(documentID, chunk.ChunkIndex, userID)
		payload := domain.CloneMetadata(chunk.Metadata)
		payload[domain.MetaDocumentID] = documentID
		payload[domain.MetaUserID] = userID
		payload[domain.MetaChunkIndex] = chunk.ChunkIndex
		payload["content"] = chunk.Content
		payload["chunk_id"] = ids[i]
		points[i] = domain.VectorPoint{ExternalID: ids[i], Vector: vectors[i], Payload: payload}
	}

	if err := s.store.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}
	return ids, nil
}

func (s *VectorSearchService) Delete(ctx context.Context, documentID, userID string) error {
	if err := s.store.DeleteByDocument(ctx, documentID, userID); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	return nil
}

// embedAll embeds in batches and retries a failed batch item by item.
func (s *VectorSearchService) embedAll(ctx context.Context, chunks []domain.Chunk) [][]float32 {
	out := make([][]float32, len(chunks))
	dimension := s.dimension
	failed := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			copy(out[start:end], vectors)
			if len(vectors[0]) > 0 {
				dimension = len(vectors[0])
			}
			continue
		}
		slog.Warn("embed_batch_failed", "from", start, "to", end, "error", err)

		for i := start; i < end; i++ {
			vector, err := s.embedder.EmbedQuery(ctx, chunks[i].Content)
			if err != nil || len(vector) == 0 {
				slog.Warn("embed_chunk_failed", "chunk_index", chunks[i].ChunkIndex, "error", err)
				failed++
				continue
			}
			out[i] = vector
			dimension = len(vector)
		}
	}

	for i := range out {
		if len(out[i]) == 0 {
			out[i] = make([]float32, dimension)
		}
	}
	if failed > 0 {
		slog.Warn("embed_zero_vector_fallback", "failed", failed, "total", len(chunks))
	}
	return out
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	vectors   *VectorSearchService
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	vectors *VectorSearchService,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		vectors:   vectors,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	chunks, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	slog.InfoContext(ctx, "document_processed", "document_id", documentID, "chunks", chunks)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return 0, err
	}

	chunks, err := uc.chunk(doc, pages)
	if err != nil {
		return 0, err
	}

	ids, err := uc.vectors.Upsert(ctx, chunks, doc.ID, doc.UserID)
	if err != nil {
		return 0, fmt.Errorf("index chunks in vector db: %w", err)
	}

	if err := uc.persistChunks(ctx, doc, chunks, ids); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]string, error) {
	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return pages, nil
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, pages []string) ([]domain.Chunk, error) {
	base := map[string]any{
		domain.MetaDocumentID: doc.ID,
		domain.MetaFilename:   doc.Filename,
	}
	chunks := uc.chunker.ChunkByPages(pages, base)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) persistChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, ids []string) error {
	if len(ids) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"persist chunks",
			fmt.Errorf("ids/chunks mismatch: %d/%d", len(ids), len(chunks)),
		)
	}
	now := time.Now().UTC()
	stored := make([]domain.StoredChunk, len(chunks))
	for i, chunk := range chunks {
		chunk.ID = ids[i]
		stored[i] = domain.StoredChunk{
			Chunk:      chunk,
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			VectorID:   ids[i],
			CreatedAt:  now,
		}
	}
	if err := uc.repo.SaveChunks(ctx, doc.ID, stored); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

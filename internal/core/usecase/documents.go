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

// DocumentUseCase serves user-scoped document reads and deletion.
type DocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	vectors  *VectorSearchService
	keywords ports.KeywordIndexProvider
}

func NewDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	vectors *VectorSearchService,
	keywords ports.KeywordIndexProvider,
) *DocumentUseCase {
	return &DocumentUseCase{
		repo:     repo,
		storage:  storage,
		vectors:  vectors,
		keywords: keywords,
	}
}

func (uc *DocumentUseCase) GetForUser(ctx context.Context, userID, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	// Foreign documents are reported as missing.
	if doc.UserID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document %s", id))
	}
	return doc, nil
}

func (uc *DocumentUseCase) ListForUser(ctx context.Context, userID string) ([]domain.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("user id is required"))
	}
	docs, err := uc.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes vectors first so a partially deleted document never shows up
// in vector search.
func (uc *DocumentUseCase) Delete(ctx context.Context, userID, id string) error {
	doc, err := uc.GetForUser(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := uc.vectors.Delete(ctx, doc.ID, doc.UserID); err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	if uc.keywords != nil {
		uc.keywords.Invalidate(doc.UserID)
	}
	if doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			slog.WarnContext(ctx, "delete_stored_file_failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

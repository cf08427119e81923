package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const fallbackFilename = "document.txt"

// IngestDocumentUseCase accepts uploads: the bytes go to object storage, the
// metadata row starts as uploaded and the worker is notified over the queue.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage, queue ports.MessageQueue) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{repo: repo, storage: storage, queue: queue}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	const op = "upload document"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("user id is required"))
	}

	id := uuid.NewString()
	key := id + "_" + sanitizeFilename(filename)
	size := &sizeCounter{src: body}
	if err := uc.storage.Save(ctx, key, size); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if size.n == 0 {
		uc.discard(ctx, key)
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("file is empty"))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          id,
		UserID:      userID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: key,
		FileSize:    size.n,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, key)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		// The row stays so the user can see the failure and delete it.
		if statusErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "ingestion queue unavailable"); statusErr != nil {
			slog.Error("document_mark_failed_error", "document_id", doc.ID, "error", statusErr)
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	slog.Info("document_uploaded", "document_id", doc.ID, "user_id", userID, "bytes", doc.FileSize, "mime_type", mimeType)
	return doc, nil
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		slog.Warn("stored_file_cleanup_failed", "key", key, "error", err)
	}
}

type sizeCounter struct {
	src io.Reader
	n   int64
}

func (c *sizeCounter) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	c.n += int64(n)
	return n, err
}

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return fallbackFilename
	}
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

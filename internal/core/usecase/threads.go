package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const (
	defaultThreadPage     = 20
	maxThreadPage         = 100
	threadMessagesLoadMax = 500
)

type ThreadUseCase struct {
	conversations ports.ConversationStore
}

func NewThreadUseCase(conversations ports.ConversationStore) *ThreadUseCase {
	return &ThreadUseCase{conversations: conversations}
}

// ListThreads returns the user's threads, most recently updated first.
func (uc *ThreadUseCase) ListThreads(ctx context.Context, userID string, limit, offset int) ([]domain.Thread, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list threads", errors.New("user id is required"))
	}
	if limit <= 0 {
		limit = defaultThreadPage
	}
	limit = min(limit, maxThreadPage)
	offset = max(offset, 0)

	threads, err := uc.conversations.ListThreads(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

func (uc *ThreadUseCase) GetThread(ctx context.Context, userID, threadID string) (*domain.ThreadWithMessages, error) {
	thread, err := uc.conversations.GetThread(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	messages, err := uc.conversations.ListMessages(ctx, thread.ThreadID, threadMessagesLoadMax)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	return &domain.ThreadWithMessages{Thread: *thread, Messages: messages}, nil
}

func (uc *ThreadUseCase) DeleteThread(ctx context.Context, userID, threadID string) error {
	if err := uc.conversations.DeleteThread(ctx, userID, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

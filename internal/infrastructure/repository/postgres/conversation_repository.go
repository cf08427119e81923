package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const threadColumns = `id, thread_id, user_id, title, message_count, last_message_at, created_at, updated_at`

func scanThread(row rowScanner) (domain.Thread, error) {
	var thread domain.Thread
	var lastMessageAt sql.NullTime
	if err := row.Scan(
		&thread.ID,
		&thread.ThreadID,
		&thread.UserID,
		&thread.Title,
		&thread.MessageCount,
		&lastMessageAt,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	); err != nil {
		return domain.Thread{}, err
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		thread.LastMessageAt = &t
	}
	return thread, nil
}

func (r *ConversationRepository) CreateThread(ctx context.Context, thread *domain.Thread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	if thread.UpdatedAt.IsZero() {
		thread.UpdatedAt = thread.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_threads (`+threadColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, thread.ID, thread.ThreadID, thread.UserID, thread.Title, thread.MessageCount, nullableTime(thread.LastMessageAt), thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetThread(ctx context.Context, userID, threadID string) (*domain.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+threadColumns+`
FROM chat_threads
WHERE thread_id = $1 AND user_id = $2
`, threadID, userID)

	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrThreadNotFound, "get thread", fmt.Errorf("thread %s", threadID))
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return &thread, nil
}

func (r *ConversationRepository) ListThreads(ctx context.Context, userID string, limit, offset int) ([]domain.Thread, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+threadColumns+`
FROM chat_threads
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Thread, 0, limit)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

// DeleteThread removes the thread and, through the foreign key, its messages.
func (r *ConversationRepository) DeleteThread(ctx context.Context, userID, threadID string) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM chat_threads
WHERE thread_id = $1 AND user_id = $2
`, threadID, userID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return requireAffected(res, domain.ErrThreadNotFound, "delete thread", threadID)
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, message domain.ConversationMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(domain.CloneMetadata(message.Metadata))
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO chat_messages (id, thread_id, role, content, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, message.ID, message.ThreadID, message.Role, message.Content, metadataJSON, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE chat_threads
SET message_count = message_count + 1, last_message_at = $2, updated_at = $2
WHERE thread_id = $1
`, message.ThreadID, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if err := requireAffected(res, domain.ErrThreadNotFound, "append message", message.ThreadID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append message tx: %w", err)
	}
	return nil
}

// ListMessages returns the most recent limit messages in chronological order.
func (r *ConversationRepository) ListMessages(ctx context.Context, threadID string, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		return []domain.ConversationMessage{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, thread_id, role, content, metadata, created_at
FROM chat_messages
WHERE thread_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationMessage, 0, limit)
	for rows.Next() {
		var msg domain.ConversationMessage
		var metadataRaw []byte
		if err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.Role,
			&msg.Content,
			&metadataRaw,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

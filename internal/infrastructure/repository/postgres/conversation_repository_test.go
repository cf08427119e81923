package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

func newConversationRepoWithMock(t *testing.T) (*ConversationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewConversationRepository(db), mock, func() { _ = db.Close() }
}

func TestGetThreadScopesByUser(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM chat_threads").
		WithArgs("thread_abc", "intruder").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetThread(context.Background(), "intruder", "thread_abc")
	if !domain.IsKind(err, domain.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListThreadsScansLastMessageAt(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "thread_id", "user_id", "title", "message_count", "last_message_at", "created_at", "updated_at"}).
		AddRow("id1", "thread_a", "u1", "First", 2, now, now, now).
		AddRow("id2", "thread_b", "u1", "Second", 0, nil, now, now)
	mock.ExpectQuery("FROM chat_threads").
		WithArgs("u1", 20, 0).
		WillReturnRows(rows)

	threads, err := repo.ListThreads(context.Background(), "u1", 20, 0)
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].LastMessageAt == nil || !threads[0].LastMessageAt.Equal(now) {
		t.Fatalf("expected last message time, got %v", threads[0].LastMessageAt)
	}
	if threads[1].LastMessageAt != nil {
		t.Fatalf("expected nil last message time, got %v", threads[1].LastMessageAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteThreadReturnsNotFoundForForeignThread(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM chat_threads").
		WithArgs("thread_abc", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteThread(context.Background(), "u2", "thread_abc"); !domain.IsKind(err, domain.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendMessageTouchesThread(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	createdAt := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("m1", "thread_abc", domain.RoleUser, "hello", sqlmock.AnyArg(), createdAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE chat_threads").
		WithArgs("thread_abc", createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AppendMessage(context.Background(), domain.ConversationMessage{
		ID:        "m1",
		ThreadID:  "thread_abc",
		Role:      domain.RoleUser,
		Content:   "hello",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListMessagesReturnsChronologicalOrder(t *testing.T) {
	repo, mock, done := newConversationRepoWithMock(t)
	defer done()

	t1 := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	rows := sqlmock.NewRows([]string{"id", "thread_id", "role", "content", "metadata", "created_at"}).
		AddRow("m2", "thread_abc", domain.RoleAssistant, "answer", []byte(`{"confidence":0.5}`), t2).
		AddRow("m1", "thread_abc", domain.RoleUser, "question", []byte(`{}`), t1)
	mock.ExpectQuery("FROM chat_messages").
		WithArgs("thread_abc", 6).
		WillReturnRows(rows)

	msgs, err := repo.ListMessages(context.Background(), "thread_abc", 6)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("expected chronological order, got %+v", msgs)
	}
	if msgs[1].Metadata["confidence"] != 0.5 {
		t.Fatalf("expected decoded metadata, got %v", msgs[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

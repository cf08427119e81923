package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

func newQueryUseCaseForTest(store *conversationStoreFake, gen *generatorFake, observer *observerFake) *QueryUseCase {
	engine := newTestEngine(
		&keywordProviderFake{searcher: &keywordSearcherFake{results: parisResults(domain.SourceKeyword)}},
		&vectorSearcherFake{},
		gen, &toolInvokerFake{}, observer,
	)
	repo := newDocumentRepoFake(&domain.Document{ID: "d1", UserID: "u1", Filename: "france.txt"})
	return NewQueryUseCase(engine, repo, store, observer, 4)
}

func TestProcessQueryValidatesInput(t *testing.T) {
	uc := newQueryUseCaseForTest(newConversationStoreFake(), &generatorFake{answer: "a"}, newObserverFake())
	if _, err := uc.ProcessQuery(context.Background(), "  ", "u1", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty query, got %v", err)
	}
	if _, err := uc.ProcessQuery(context.Background(), "q", "", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty user, got %v", err)
	}
}

func TestProcessQueryCreatesAndResumesThread(t *testing.T) {
	store := newConversationStoreFake()
	gen := &generatorFake{answer: "Paris."}
	observer := newObserverFake()
	uc := newQueryUseCaseForTest(store, gen, observer)

	long := "What is the capital of France and why has it been the capital for such a long time?"
	first, err := uc.ProcessQuery(context.Background(), long, "u1", "")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if !strings.HasPrefix(first.ThreadID, "thread_") || len(first.ThreadID) != len("thread_")+12 {
		t.Fatalf("unexpected thread id %q", first.ThreadID)
	}
	thread := store.threads[first.ThreadID]
	if thread == nil || thread.UserID != "u1" {
		t.Fatalf("expected stored thread for u1")
	}
	if thread.Title != long[:50]+"..." {
		t.Fatalf("unexpected title %q", thread.Title)
	}
	if msgs := store.messages[first.ThreadID]; len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user and assistant messages, got %+v", msgs)
	}
	if store.messages[first.ThreadID][1].Metadata["confidence"] == nil {
		t.Fatalf("expected assistant metadata")
	}

	second, err := uc.ProcessQuery(context.Background(), "And its population?", "u1", first.ThreadID)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if second.ThreadID != first.ThreadID {
		t.Fatalf("expected thread to be resumed")
	}
	if len(gen.history) != 2 {
		t.Fatalf("expected prior messages as history, got %d", len(gen.history))
	}
	if observer.queries != 2 {
		t.Fatalf("expected 2 observed queries, got %d", observer.queries)
	}
}

func TestProcessQueryUnknownOrForeignThreadStartsNew(t *testing.T) {
	store := newConversationStoreFake()
	store.threads["thread_foreign"] = &domain.Thread{ThreadID: "thread_foreign", UserID: "u2"}
	uc := newQueryUseCaseForTest(store, &generatorFake{answer: "a"}, newObserverFake())

	resp, err := uc.ProcessQuery(context.Background(), "capital?", "u1", "thread_foreign")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if resp.ThreadID == "thread_foreign" {
		t.Fatalf("must not resume a thread owned by another user")
	}
}

func TestProcessQueryThreadStoreFailure(t *testing.T) {
	store := newConversationStoreFake()
	store.createErr = errors.New("db down")
	uc := newQueryUseCaseForTest(store, &generatorFake{answer: "a"}, newObserverFake())

	_, err := uc.ProcessQuery(context.Background(), "capital?", "u1", "")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestProcessQueryBuildsSourcesAndMetadata(t *testing.T) {
	uc := newQueryUseCaseForTest(newConversationStoreFake(), &generatorFake{answer: "Paris."}, newObserverFake())

	resp, err := uc.ProcessQuery(context.Background(), "What is the capital of France?", "u1", "")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	src := resp.Sources[0]
	if src.DocumentID != "d1" || src.Filename != "france.txt" || src.ChunkIndex != 0 {
		t.Fatalf("unexpected source %+v", src)
	}
	if src.RelevanceScore <= 0 {
		t.Fatalf("expected rerank relevance score, got %f", src.RelevanceScore)
	}
	// mean of raw keyword scores 0.9 and 0.4
	if resp.Metadata.Confidence < 0.649 || resp.Metadata.Confidence > 0.651 {
		t.Fatalf("unexpected confidence %f", resp.Metadata.Confidence)
	}
	if resp.Metadata.TotalTimeMS < resp.Metadata.RetrievalTimeMS {
		t.Fatalf("total time must cover retrieval time")
	}
	if len(resp.Metadata.Steps) != 4 {
		t.Fatalf("unexpected steps %v", resp.Metadata.Steps)
	}
}

func TestConfidenceAndExcerpt(t *testing.T) {
	if Confidence(nil) != 0 {
		t.Fatalf("expected zero confidence without documents")
	}
	docs := []domain.RerankedResult{
		{FusedResult: domain.FusedResult{RetrievalResult: domain.RetrievalResult{Score: 7}}},
		{FusedResult: domain.FusedResult{RetrievalResult: domain.RetrievalResult{Score: 3}}},
	}
	if Confidence(docs) != 1 {
		t.Fatalf("expected confidence clamp to 1, got %f", Confidence(docs))
	}

	short := "short text"
	if Excerpt(short) != short {
		t.Fatalf("short content must be unchanged")
	}
	long := strings.Repeat("ж", 250)
	got := Excerpt(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 203 {
		t.Fatalf("unexpected excerpt length %d", len([]rune(got)))
	}
}

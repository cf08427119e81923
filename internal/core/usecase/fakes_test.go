package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

type observerFake struct {
	mu        sync.Mutex
	stages    map[string]int
	failed    map[string]int
	tools     map[string]string
	degraded  map[string]int
	queries   int
	lastConf  float64
	lastError bool
}

func newObserverFake() *observerFake {
	return &observerFake{
		stages:   map[string]int{},
		failed:   map[string]int{},
		tools:    map[string]string{},
		degraded: map[string]int{},
	}
}

func (o *observerFake) ObserveStage(stage string, _ float64, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stages == nil {
		o.stages, o.failed = map[string]int{}, map[string]int{}
	}
	o.stages[stage]++
	if failed {
		o.failed[stage]++
	}
}

func (o *observerFake) RecordToolCall(tool, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tools == nil {
		o.tools = map[string]string{}
	}
	o.tools[tool] = status
}

func (o *observerFake) RecordRerankDegraded(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.degraded == nil {
		o.degraded = map[string]int{}
	}
	o.degraded[reason]++
}

func (o *observerFake) ObserveQuery(confidence float64, _ int, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries++
	o.lastConf = confidence
	o.lastError = failed
}

type keywordSearcherFake struct {
	results []domain.RetrievalResult
	panics  bool
}

func (f *keywordSearcherFake) Search(string, int) []domain.RetrievalResult {
	if f.panics {
		panic("index corrupted")
	}
	return f.results
}

type keywordProviderFake struct {
	searcher ports.KeywordSearcher
	err      error
}

func (f *keywordProviderFake) IndexFor(context.Context, string) (ports.KeywordSearcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.searcher, nil
}

func (f *keywordProviderFake) Invalidate(string) {}

type vectorSearcherFake struct {
	results []domain.RetrievalResult
	err     error
	userID  string
}

func (f *vectorSearcherFake) Search(_ context.Context, _ string, userID string, _ int) ([]domain.RetrievalResult, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type rerankerPanicFake struct{}

func (rerankerPanicFake) Rerank(context.Context, string, []domain.FusedResult, int) []domain.RerankedResult {
	panic("model exploded")
}

type toolInvokerFake struct {
	calls []string
	args  []map[string]any
	out   string
}

func (f *toolInvokerFake) Execute(_ context.Context, name string, args map[string]any) string {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	return f.out
}

type generatorFake struct {
	answer  string
	err     error
	panics  bool
	calls   int
	docs    []domain.RerankedResult
	history []domain.ConversationMessage
}

func (f *generatorFake) GenerateWithContext(_ context.Context, _ string, docs []domain.RerankedResult, history []domain.ConversationMessage) (string, error) {
	f.calls++
	f.docs = docs
	f.history = history
	if f.panics {
		panic("llm crashed")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type embedderFake struct {
	dimension  int
	batchErr   error
	failTexts  map[string]bool
	batchCalls int
	itemCalls  int
}

func (f *embedderFake) vector(text string) []float32 {
	v := make([]float32, f.dimension)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.itemCalls++
	if f.failTexts[text] {
		return nil, errors.New("embedding model unavailable")
	}
	return f.vector(text), nil
}

type vectorStoreFake struct {
	points        []domain.VectorPoint
	upsertErr     error
	deletedDoc    string
	deletedUser   string
	deleteErr     error
	searchResults []domain.RetrievalResult
}

func (f *vectorStoreFake) Upsert(_ context.Context, points []domain.VectorPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *vectorStoreFake) Search(context.Context, []float32, string, int) ([]domain.RetrievalResult, error) {
	return f.searchResults, nil
}

func (f *vectorStoreFake) DeleteByDocument(_ context.Context, documentID, userID string) error {
	f.deletedDoc, f.deletedUser = documentID, userID
	return f.deleteErr
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type documentRepoFake struct {
	docs          map[string]*domain.Document
	chunks        map[string][]domain.StoredChunk
	getErr        error
	createErr     error
	saveChunksErr error
	failStatusErr error
	statusCalls   []statusCall
	deleted       []string
}

func newDocumentRepoFake(docs ...*domain.Document) *documentRepoFake {
	f := &documentRepoFake{docs: map[string]*domain.Document{}, chunks: map[string][]domain.StoredChunk{}}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	return nil
}

func (f *documentRepoFake) SaveChunks(_ context.Context, documentID string, chunks []domain.StoredChunk) error {
	if f.saveChunksErr != nil {
		return f.saveChunksErr
	}
	f.chunks[documentID] = chunks
	return nil
}

func (f *documentRepoFake) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.docs, id)
	return nil
}

// ListChunksByUser and CorpusVersion let the fake serve as a keyword corpus.
func (f *documentRepoFake) ListChunksByUser(_ context.Context, userID string) ([]domain.Chunk, error) {
	var ids []string
	for id := range f.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Chunk
	for _, id := range ids {
		for _, c := range f.chunks[id] {
			if c.UserID == userID {
				out = append(out, c.Chunk)
			}
		}
	}
	return out, nil
}

func (f *documentRepoFake) CorpusVersion(ctx context.Context, userID string) (domain.CorpusVersion, error) {
	chunks, _ := f.ListChunksByUser(ctx, userID)
	return domain.CorpusVersion{ChunkCount: len(chunks)}, nil
}

type extractorFake struct {
	pages []string
	err   error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	deleted   []string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	documentID string
	err        error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type conversationStoreFake struct {
	mu        sync.Mutex
	threads   map[string]*domain.Thread
	messages  map[string][]domain.ConversationMessage
	getErr    error
	createErr error
}

func newConversationStoreFake() *conversationStoreFake {
	return &conversationStoreFake{
		threads:  map[string]*domain.Thread{},
		messages: map[string][]domain.ConversationMessage{},
	}
}

func (f *conversationStoreFake) CreateThread(_ context.Context, thread *domain.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyThread := *thread
	f.threads[thread.ThreadID] = &copyThread
	return nil
}

func (f *conversationStoreFake) GetThread(_ context.Context, userID, threadID string) (*domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	thread, ok := f.threads[threadID]
	if !ok || thread.UserID != userID {
		return nil, domain.WrapError(domain.ErrThreadNotFound, "get thread", fmt.Errorf("thread %s", threadID))
	}
	copyThread := *thread
	return &copyThread, nil
}

func (f *conversationStoreFake) ListThreads(_ context.Context, userID string, limit, offset int) ([]domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Thread
	for _, thread := range f.threads {
		if thread.UserID == userID {
			out = append(out, *thread)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	if offset >= len(out) {
		return []domain.Thread{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *conversationStoreFake) DeleteThread(_ context.Context, userID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	thread, ok := f.threads[threadID]
	if !ok || thread.UserID != userID {
		return domain.WrapError(domain.ErrThreadNotFound, "delete thread", fmt.Errorf("thread %s", threadID))
	}
	delete(f.threads, threadID)
	delete(f.messages, threadID)
	return nil
}

func (f *conversationStoreFake) AppendMessage(_ context.Context, message domain.ConversationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[message.ThreadID] = append(f.messages[message.ThreadID], message)
	return nil
}

func (f *conversationStoreFake) ListMessages(_ context.Context, threadID string, limit int) ([]domain.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.ConversationMessage(nil), msgs...), nil
}

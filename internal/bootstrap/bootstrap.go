package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-rag-assistant/internal/config"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/keyword"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/tools"
	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/hybrid-rag-assistant/internal/observability/metrics"
)

const rerankerProbeTimeout = 5 * time.Second

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	Tools     *tools.Registry
	Invoker   *tools.Executor

	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	DocumentUC *usecase.DocumentUseCase
	QueryUC    ports.QueryProcessor
	ThreadUC   ports.ThreadService

	HTTPMetrics *metrics.HTTPServerMetrics
	RAGMetrics  *metrics.RAGMetrics

	closeFn func()
}

// New wires every adapter and use case. service labels metrics and the NATS
// client name.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	conversations := postgres.NewConversationRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	ragMetrics := metrics.NewRAGMetrics(service, httpMetrics.Registerer())
	executor := resilience.NewExecutor(resilienceConfig(cfg, ragMetrics))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		ClientName:         "hybrid-rag-assistant-" + service,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout:        cfg.OllamaTimeout(),
		MaxTokens:          cfg.OllamaMaxTokens,
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		ResilienceExecutor: executor,
	})
	vectors := usecase.NewVectorSearchService(embedder, vectorDB, cfg.EmbeddingDimension, cfg.EmbeddingBatchSize)

	keywords, err := keyword.NewCache(repo, cfg.IndexCacheSize, ragMetrics)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init keyword index cache: %w", err)
	}

	scorer, err := newRelevanceScorer(ctx, cfg, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	reranker := usecase.NewReranker(scorer, ragMetrics)

	registry := tools.NewDefaultRegistry(nil)
	invoker := tools.NewExecutor(registry)

	engine := usecase.NewWorkflowEngine(keywords, vectors, reranker, invoker, generator, ragMetrics, usecase.WorkflowConfig{
		KeywordTopK:       cfg.KeywordTopK,
		VectorTopK:        cfg.VectorTopK,
		HybridTopK:        cfg.HybridTopK,
		RerankTopK:        cfg.RerankTopK,
		RRFK:              cfg.RRFK,
		RetrievalTimeout:  cfg.RetrievalTimeout(),
		ToolTimeout:       cfg.ToolTimeout(),
		GenerationTimeout: cfg.GenerationTimeout(),
	})

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := plaintext.NewExtractor(storage)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Documents: repo,
		Tools:     registry,
		Invoker:   invoker,

		IngestUC:   usecase.NewIngestDocumentUseCase(repo, storage, queue),
		ProcessUC:  usecase.NewProcessDocumentUseCase(repo, extractor, chunker, vectors),
		DocumentUC: usecase.NewDocumentUseCase(repo, storage, vectors, keywords),
		QueryUC:    usecase.NewQueryUseCase(engine, repo, conversations, ragMetrics, cfg.HistoryLimit),
		ThreadUC:   usecase.NewThreadUseCase(conversations),

		HTTPMetrics: httpMetrics,
		RAGMetrics:  ragMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config, observer resilience.Observer) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.AttemptTimeout = cfg.AttemptTimeout()
	out.BreakerEnabled = cfg.BreakerEnabled
	out.Observer = observer
	return out
}

// newRelevanceScorer resolves RERANKER_MODE. A nil scorer makes the reranker
// run degraded.
func newRelevanceScorer(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.RelevanceScorer, error) {
	url := strings.TrimSpace(cfg.RerankerURL)
	switch cfg.RerankerMode {
	case config.RerankerOff:
		return nil, nil
	case config.RerankerLexical:
		return usecase.LexicalScorer{}, nil
	case config.RerankerCrossEncoder:
		if url == "" {
			return nil, fmt.Errorf("RERANKER_URL is required for reranker mode %q", cfg.RerankerMode)
		}
		return crossencoder.New(url, crossencoder.Options{ResilienceExecutor: executor}), nil
	}

	if url == "" {
		slog.Info("reranker_selected", "mode", config.RerankerLexical, "reason", "no_reranker_url")
		return usecase.LexicalScorer{}, nil
	}
	client := crossencoder.New(url, crossencoder.Options{ResilienceExecutor: executor})
	probeCtx, cancel := context.WithTimeout(ctx, rerankerProbeTimeout)
	defer cancel()
	if err := client.Probe(probeCtx); err != nil {
		slog.Warn("reranker_selected", "mode", config.RerankerLexical, "reason", "probe_failed", "error", err)
		return usecase.LexicalScorer{}, nil
	}
	slog.Info("reranker_selected", "mode", config.RerankerCrossEncoder, "url", url)
	return client, nil
}

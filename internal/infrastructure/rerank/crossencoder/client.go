package crossencoder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-rag-assistant/internal/infrastructure/resilience"
)

const serviceName = "reranker"

// Client scores (query, text) pairs against a TEI-compatible /rerank endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	var items []rerankItem
	err := resilience.CallJSON(ctx, c.executor, c.httpClient, resilience.JSONCall{
		Service:   serviceName,
		Operation: "rerank",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/rerank",
		Payload:   rerankRequest{Query: query, Texts: texts},
	}, &items)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d for %d texts", item.Index, len(texts))
		}
		scores[item.Index] = item.Score
		seen[item.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("reranker returned no score for text %d", i)
		}
	}
	return scores, nil
}

// Probe checks that the reranker is reachable and answers a trivial request.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Score(ctx, "probe", []string{"probe"})
	if err != nil {
		return fmt.Errorf("probe reranker: %w", err)
	}
	return nil
}

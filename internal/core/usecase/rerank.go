package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

// Reranker reorders fused candidates with a relevance scorer. Without a
// scorer it runs degraded and only truncates the input.
type Reranker struct {
	scorer   ports.RelevanceScorer
	observer ports.WorkflowObserver
}

func NewReranker(scorer ports.RelevanceScorer, observer ports.WorkflowObserver) *Reranker {
	if scorer == nil {
		slog.Warn("rerank_degraded", "reason", "scorer_unavailable")
		if observer != nil {
			observer.RecordRerankDegraded("scorer_unavailable")
		}
	}
	return &Reranker{scorer: scorer, observer: observer}
}

func (r *Reranker) Degraded() bool {
	return r.scorer == nil
}

func (r *Reranker) Rerank(ctx context.Context, query string, docs []domain.FusedResult, topK int) []domain.RerankedResult {
	if len(docs) == 0 {
		return []domain.RerankedResult{}
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}
	if r.scorer == nil {
		return passThrough(docs, topK)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err == nil && len(scores) != len(docs) {
		err = fmt.Errorf("scorer returned %d scores for %d documents", len(scores), len(docs))
	}
	if err != nil {
		slog.Warn("rerank_degraded", "reason", "score_failed", "error", err)
		if r.observer != nil {
			r.observer.RecordRerankDegraded("score_failed")
		}
		return passThrough(docs, topK)
	}

	out := make([]domain.RerankedResult, len(docs))
	for i, doc := range docs {
		score := scores[i]
		out[i] = domain.RerankedResult{FusedResult: doc, RerankScore: &score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	return out[:topK]
}

func passThrough(docs []domain.FusedResult, topK int) []domain.RerankedResult {
	out := make([]domain.RerankedResult, 0, topK)
	for _, doc := range docs[:topK] {
		out = append(out, domain.RerankedResult{FusedResult: doc})
	}
	return out
}

// LexicalScorer is an in-process relevance scorer based on query token
// coverage with a bigram bonus. It needs no model and never fails.
type LexicalScorer struct{}

func (LexicalScorer) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	queryTokens := splitAlphaNumLower(query)
	querySet := toTokenSet(queryTokens)
	queryBigrams := toBigramSet(queryTokens)

	out := make([]float64, len(texts))
	for i, text := range texts {
		tokens := splitAlphaNumLower(text)
		out[i] = 0.80*tokenOverlap(querySet, toTokenSet(tokens)) +
			0.20*tokenOverlap(queryBigrams, toBigramSet(tokens))
	}
	return out, nil
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func toBigramSet(tokens []string) map[string]struct{} {
	if len(tokens) < 2 {
		return nil
	}
	out := make(map[string]struct{}, len(tokens)-1)
	for i := 1; i < len(tokens); i++ {
		out[tokens[i-1]+" "+tokens[i]] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

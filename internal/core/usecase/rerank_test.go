package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

type scorerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *scorerFake) Score(context.Context, string, []string) ([]float64, error) {
	f.calls++
	return f.scores, f.err
}

func fusedDocs(ids ...string) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.FusedResult{
			RetrievalResult: domain.RetrievalResult{ID: id, Content: "content " + id},
			FusedScore:      1.0 / float64(61+i),
		})
	}
	return out
}

func TestRerankerSortsByScore(t *testing.T) {
	scorer := &scorerFake{scores: []float64{0.1, 0.9, 0.5}}
	r := NewReranker(scorer, nil)
	out := r.Rerank(context.Background(), "q", fusedDocs("a", "b", "c"), 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ID != "b" || out[1].ID != "c" {
		t.Fatalf("unexpected order: %s, %s", out[0].ID, out[1].ID)
	}
	if out[0].RerankScore == nil || *out[0].RerankScore != 0.9 {
		t.Fatalf("expected rerank score attached")
	}
}

func TestRerankerDegradedWithoutScorer(t *testing.T) {
	observer := &observerFake{}
	r := NewReranker(nil, observer)
	if !r.Degraded() {
		t.Fatalf("expected degraded reranker")
	}
	out := r.Rerank(context.Background(), "q", fusedDocs("a", "b", "c"), 2)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected identity truncation, got %+v", out)
	}
	if out[0].RerankScore != nil {
		t.Fatalf("degraded results must not carry a rerank score")
	}
	if observer.degraded["scorer_unavailable"] != 1 {
		t.Fatalf("expected degradation to be recorded")
	}
}

func TestRerankerFallsBackOnScorerFailure(t *testing.T) {
	cases := []*scorerFake{
		{err: errors.New("model crashed")},
		{scores: []float64{0.5}},
	}
	for _, scorer := range cases {
		r := NewReranker(scorer, nil)
		out := r.Rerank(context.Background(), "q", fusedDocs("a", "b", "c"), 5)
		if len(out) != 3 || out[0].ID != "a" {
			t.Fatalf("expected input order on failure, got %+v", out)
		}
		if out[0].RerankScore != nil {
			t.Fatalf("expected no rerank score on failure")
		}
	}
}

func TestRerankerEmptyInput(t *testing.T) {
	scorer := &scorerFake{}
	r := NewReranker(scorer, nil)
	if out := r.Rerank(context.Background(), "q", nil, 5); len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
	if scorer.calls != 0 {
		t.Fatalf("scorer must not be called for empty input")
	}
}

func TestLexicalScorerPrefersOverlap(t *testing.T) {
	scores, err := LexicalScorer{}.Score(context.Background(), "capital of France", []string{
		"It has a population of 2 million.",
		"Paris is the capital of France.",
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[1] <= scores[0] {
		t.Fatalf("expected second text to score higher: %v", scores)
	}
	if scores[1] < 0.999 {
		t.Fatalf("expected full coverage score, got %f", scores[1])
	}
}

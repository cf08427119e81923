package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	result  domain.FusedResult
	order   int
	sources map[domain.RetrievalSource]struct{}
}

// FuseRRF merges keyword and vector rankings with reciprocal rank fusion.
// Each list contributes 1/(k+rank+1) per result id. The first occurrence of an
// id (keyword list first) supplies the content and raw score. Ties keep
// insertion order.
func FuseRRF(keyword, vector []domain.RetrievalResult, topK, k int) []domain.FusedResult {
	if k <= 0 {
		k = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(keyword)+len(vector))
	addList := func(results []domain.RetrievalResult, fallback domain.RetrievalSource) {
		for rank, result := range results {
			source := result.Source
			if source == "" {
				source = fallback
			}
			key := retrievalKey(result, source, rank)
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{
					result:  domain.FusedResult{RetrievalResult: result},
					order:   len(acc),
					sources: make(map[domain.RetrievalSource]struct{}, 2),
				}
				candidate.result.ID = key
				acc[key] = candidate
			}
			candidate.result.FusedScore += 1.0 / float64(k+rank+1)
			candidate.sources[source] = struct{}{}
		}
	}

	addList(keyword, domain.SourceKeyword)
	addList(vector, domain.SourceVector)

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].result.FusedScore != ordered[j].result.FusedScore {
			return ordered[i].result.FusedScore > ordered[j].result.FusedScore
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.FusedResult, 0, len(ordered))
	for _, c := range ordered {
		c.result.Sources = sortedSources(c.sources)
		out = append(out, c.result)
	}
	return trimFused(out, topK)
}

func trimFused(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func retrievalKey(result domain.RetrievalResult, source domain.RetrievalSource, rank int) string {
	if result.ID != "" {
		return result.ID
	}
	return fmt.Sprintf("%s_%d", source, rank)
}

func sortedSources(set map[domain.RetrievalSource]struct{}) []domain.RetrievalSource {
	out := make([]domain.RetrievalSource, 0, len(set))
	for _, src := range []domain.RetrievalSource{domain.SourceKeyword, domain.SourceVector} {
		if _, ok := set[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

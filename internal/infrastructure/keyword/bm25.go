package keyword

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// corpus is the immutable tokenized representation produced by one Build.
type corpus struct {
	chunks    []domain.Chunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// Index is an in-memory BM25 index over one chunk corpus. Build swaps in a
// fully computed corpus, so concurrent searches see either the old or the new
// corpus and never a partial one.
type Index struct {
	k1 float64
	b  float64

	mu     sync.RWMutex
	corpus *corpus
}

func NewIndex() *Index {
	return &Index{k1: defaultK1, b: defaultB}
}

// Build replaces the indexed corpus. An empty chunk list keeps the previous
// corpus. A chunk with blank content fails the whole build.
func (i *Index) Build(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		slog.Warn("bm25_build_empty_corpus")
		return nil
	}

	next := &corpus{
		chunks:    make([]domain.Chunk, len(chunks)),
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		idf:       make(map[string]float64),
	}
	docFreq := make(map[string]int)
	totalLen := 0
	for pos, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			return domain.WrapError(domain.ErrValidation, "bm25 build", fmt.Errorf("chunk %d has no content", pos))
		}
		tokens := tokenize(chunk.Content)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			docFreq[tok]++
		}
		next.chunks[pos] = chunk
		next.termFreqs[pos] = freqs
		next.docLens[pos] = len(tokens)
		totalLen += len(tokens)
	}

	n := float64(len(chunks))
	next.avgDocLen = float64(totalLen) / n
	for term, df := range docFreq {
		next.idf[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}

	i.mu.Lock()
	i.corpus = next
	i.mu.Unlock()

	slog.Debug("bm25_build_done", "chunks", len(chunks), "terms", len(docFreq))
	return nil
}

// Search scores every chunk against query and returns at most topK results
// with a positive score, best first. Equal scores keep corpus order.
func (i *Index) Search(query string, topK int) []domain.RetrievalResult {
	i.mu.RLock()
	c := i.corpus
	i.mu.RUnlock()

	if c == nil || len(c.chunks) == 0 || topK <= 0 {
		return []domain.RetrievalResult{}
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return []domain.RetrievalResult{}
	}

	type scored struct {
		pos   int
		score float64
	}
	hits := make([]scored, 0, len(c.chunks))
	for pos := range c.chunks {
		score := i.score(c, pos, terms)
		if score > 0 {
			hits = append(hits, scored{pos: pos, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		chunk := c.chunks[hit.pos]
		id := chunk.ID
		if id == "" {
			id = fmt.Sprintf("bm25_%d", hit.pos)
		}
		meta := domain.CloneMetadata(chunk.Metadata)
		if _, ok := meta[domain.MetaChunkIndex]; !ok {
			meta[domain.MetaChunkIndex] = chunk.ChunkIndex
		}
		out = append(out, domain.RetrievalResult{
			ID:       id,
			Content:  chunk.Content,
			Metadata: meta,
			Score:    hit.score,
			Source:   domain.SourceKeyword,
		})
	}
	return out
}

// Len reports the number of indexed chunks.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.corpus == nil {
		return 0
	}
	return len(i.corpus.chunks)
}

func (i *Index) score(c *corpus, pos int, terms []string) float64 {
	freqs := c.termFreqs[pos]
	norm := i.k1 * (1 - i.b + i.b*float64(c.docLens[pos])/c.avgDocLen)
	total := 0.0
	for _, term := range terms {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		total += c.idf[term] * (tf * (i.k1 + 1)) / (tf + norm)
	}
	return total
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

package domain

type RetrievalSource string

const (
	SourceKeyword RetrievalSource = "keyword"
	SourceVector  RetrievalSource = "vector"
)

type RetrievalResult struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata map[string]any  `json:"metadata"`
	Score    float64         `json:"score"`
	Source   RetrievalSource `json:"source"`
}

func (r RetrievalResult) DocumentID() string {
	return MetadataString(r.Metadata, MetaDocumentID)
}

func (r RetrievalResult) ChunkIndex() int {
	idx, _ := MetadataInt(r.Metadata, MetaChunkIndex)
	return idx
}

func (r RetrievalResult) Page() (int, bool) {
	return MetadataInt(r.Metadata, MetaPage)
}

// FusedResult is a retrieval result after rank fusion. FusedScore depends
// only on the ranks the result held in each input list.
type FusedResult struct {
	RetrievalResult
	FusedScore float64           `json:"fused_score"`
	Sources    []RetrievalSource `json:"contributing_sources"`
}

func (r FusedResult) HasSource(src RetrievalSource) bool {
	for _, s := range r.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// RerankedResult carries an optional relevance score. RerankScore is nil
// when the reranker ran in degraded mode.
type RerankedResult struct {
	FusedResult
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// RelevanceScore prefers the rerank score, then the fused score, then the raw score.
func (r RerankedResult) RelevanceScore() float64 {
	if r.RerankScore != nil {
		return *r.RerankScore
	}
	if r.FusedScore != 0 {
		return r.FusedScore
	}
	return r.Score
}

package domain

import "time"

const (
	StepRetrieval     = "retrieval"
	StepReranking     = "reranking"
	StepToolAnalysis  = "tool_analysis"
	StepToolExecution = "tool_execution"
	StepGeneration    = "generation"
	StepError         = "error"
)

// StageMetadata accumulates per-stage accounting for one query.
type StageMetadata struct {
	Steps              []string           `json:"steps"`
	StageTimingsMS     map[string]float64 `json:"stage_timings_ms,omitempty"`
	RetrievalTimeMS    float64            `json:"retrieval_time_ms"`
	GenerationTimeMS   float64            `json:"generation_time_ms"`
	DocumentsRetrieved int                `json:"documents_retrieved"`
	DocumentsReranked  int                `json:"documents_reranked"`
	DocumentsUsed      int                `json:"documents_used"`
	RerankDegraded     bool               `json:"rerank_degraded,omitempty"`
}

// QueryState is owned by a single query run and never shared across queries.
type QueryState struct {
	Query    string
	UserID   string
	ThreadID string
	History  []ConversationMessage

	KeywordResults   []RetrievalResult
	VectorResults    []RetrievalResult
	FusedResults     []FusedResult
	RerankedResults  []RerankedResult
	ContextDocuments []RerankedResult

	ToolNeeded bool
	ToolName   string
	ToolResult string
	Answer     string
	Err        error

	Metadata StageMetadata
}

func NewQueryState(query, userID, threadID string) *QueryState {
	return &QueryState{
		Query:    query,
		UserID:   userID,
		ThreadID: threadID,
		Metadata: StageMetadata{StageTimingsMS: make(map[string]float64)},
	}
}

func (s *QueryState) AddStep(step string) {
	s.Metadata.Steps = append(s.Metadata.Steps, step)
}

func (s *QueryState) RecordTiming(stage string, d time.Duration) float64 {
	ms := float64(d.Microseconds()) / 1000.0
	if s.Metadata.StageTimingsMS == nil {
		s.Metadata.StageTimingsMS = make(map[string]float64)
	}
	s.Metadata.StageTimingsMS[stage] = ms
	return ms
}

type Source struct {
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename,omitempty"`
	ChunkIndex     int     `json:"chunk_index"`
	ContentExcerpt string  `json:"content_excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
	Page           *int    `json:"page,omitempty"`
}

type QueryMetadata struct {
	Confidence         float64  `json:"confidence"`
	Steps              []string `json:"steps"`
	RetrievalTimeMS    float64  `json:"retrieval_time_ms"`
	GenerationTimeMS   float64  `json:"generation_time_ms"`
	TotalTimeMS        float64  `json:"total_time_ms"`
	DocumentsRetrieved int      `json:"documents_retrieved"`
	DocumentsUsed      int      `json:"documents_used"`
	ToolUsed           string   `json:"tool_used,omitempty"`
	RerankDegraded     bool     `json:"rerank_degraded,omitempty"`
}

type QueryResponse struct {
	Answer   string        `json:"answer"`
	ThreadID string        `json:"thread_id"`
	Sources  []Source      `json:"sources"`
	Metadata QueryMetadata `json:"metadata"`
}

const (
	ToolCurrentDate = "get_current_date"
	ToolCalculate   = "calculate"
)

// ToolInfo describes a registered tool for listings.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

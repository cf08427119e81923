package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	FileSize    int64          `json:"file_size"`
	ChunkCount  int            `json:"chunk_count"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Chunk is a retrievable unit of document text.
// Metadata carries document_id, start_char, end_char and optionally page.
type Chunk struct {
	ID         string         `json:"id,omitempty"`
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata"`
}

// StoredChunk is a chunk persisted together with its vector point id.
type StoredChunk struct {
	Chunk
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	VectorID   string    `json:"vector_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CorpusVersion fingerprints a user's chunk corpus. Two equal versions
// describe the same set of chunks.
type CorpusVersion struct {
	ChunkCount    int
	LatestChunkAt time.Time
}

// VectorPoint is one embedded chunk ready for the vector store.
type VectorPoint struct {
	ExternalID string
	Vector     []float32
	Payload    map[string]any
}

const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaStartChar  = "start_char"
	MetaEndChar    = "end_char"
	MetaPage       = "page"
	MetaUserID     = "user_id"
	MetaFilename   = "filename"
)

// CloneMetadata returns a shallow copy of m that is never nil.
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetadataString reads a string metadata value.
func MetadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	default:
		return ""
	}
}

// MetadataInt reads an integer metadata value. JSON decoding yields float64,
// so both forms are accepted.
func MetadataInt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

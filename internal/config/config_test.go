package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "KEYWORD_TOP_K", "VECTOR_TOP_K", "HYBRID_TOP_K", "RERANK_TOP_K", "RRF_K", "CHUNK_SIZE", "CHUNK_OVERLAP", "RERANKER_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridTopK != 10 {
		t.Fatalf("expected default hybrid top k 10, got %d", cfg.HybridTopK)
	}
	if cfg.RerankTopK != 5 {
		t.Fatalf("expected default rerank top k 5, got %d", cfg.RerankTopK)
	}
	if cfg.RRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.RRFK)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 {
		t.Fatalf("unexpected chunking defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RerankerMode != RerankerAuto {
		t.Fatalf("expected auto reranker mode, got %q", cfg.RerankerMode)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t, "CONFIG_FILE")
	t.Setenv("HYBRID_TOP_K", "20")
	t.Setenv("RRF_K", "75")
	t.Setenv("RERANKER_MODE", "Lexical")
	t.Setenv("RETRIEVAL_TIMEOUT_SECONDS", "7")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridTopK != 20 || cfg.RRFK != 75 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.RerankerMode != RerankerLexical {
		t.Fatalf("expected lexical reranker mode, got %q", cfg.RerankerMode)
	}
	if cfg.RetrievalTimeout() != 7*time.Second {
		t.Fatalf("expected 7s retrieval timeout, got %s", cfg.RetrievalTimeout())
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
}

func TestLoadAppliesYAMLOverlayBeforeEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := []byte("CHUNK_SIZE: 640\nchunk_overlap: 64\nRERANK_TOP_K: 3\nQDRANT_COLLECTION: kb\n")
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	clearEnv(t, "CHUNK_SIZE", "CHUNK_OVERLAP", "QDRANT_COLLECTION", "RERANKER_MODE")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RERANK_TOP_K", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkSize != 640 || cfg.ChunkOverlap != 64 {
		t.Fatalf("expected overlay chunking values, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.QdrantCollection != "kb" {
		t.Fatalf("expected overlay collection, got %q", cfg.QdrantCollection)
	}
	if cfg.RerankTopK != 4 {
		t.Fatalf("expected env to override overlay, got %d", cfg.RerankTopK)
	}
}

func TestLoadRejectsInvalidOverlayAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("CHUNK_SIZE: [1, 2]\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-scalar overlay value")
	}

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RERANKER_MODE", "magic")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown reranker mode")
	}
}

package keyword

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
	"github.com/kirillkom/hybrid-rag-assistant/internal/core/ports"
)

const lockStripes = 64

type cacheEntry struct {
	version domain.CorpusVersion
	index   *Index
}

// CacheObserver receives cache hit/miss notifications.
type CacheObserver interface {
	RecordIndexCache(hit bool)
}

// Cache serves per-user BM25 indexes. An entry is reused while the user's
// corpus version is unchanged; otherwise a fresh Index is built and swapped in.
type Cache struct {
	corpus   ports.ChunkCorpus
	entries  *lru.Cache[string, cacheEntry]
	observer CacheObserver
	locks    [lockStripes]sync.Mutex
}

func NewCache(corpus ports.ChunkCorpus, size int, observer CacheObserver) (*Cache, error) {
	if corpus == nil {
		return nil, fmt.Errorf("chunk corpus is required")
	}
	if size <= 0 {
		size = 256
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}
	return &Cache{corpus: corpus, entries: entries, observer: observer}, nil
}

// IndexFor returns an index over the user's current chunk corpus.
func (c *Cache) IndexFor(ctx context.Context, userID string) (ports.KeywordSearcher, error) {
	version, err := c.corpus.CorpusVersion(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read corpus version: %w", err)
	}
	if entry, ok := c.entries.Get(userID); ok && entry.version == version {
		c.record(true)
		return entry.index, nil
	}

	lock := c.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have rebuilt while we waited.
	if entry, ok := c.entries.Get(userID); ok && entry.version == version {
		c.record(true)
		return entry.index, nil
	}
	c.record(false)

	chunks, err := c.corpus.ListChunksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}
	index := NewIndex()
	if err := index.Build(chunks); err != nil {
		return nil, err
	}
	c.entries.Add(userID, cacheEntry{version: version, index: index})
	slog.Debug("keyword_index_rebuilt", "user_id", userID, "chunks", len(chunks))
	return index, nil
}

// Invalidate drops the cached index for a user.
func (c *Cache) Invalidate(userID string) {
	c.entries.Remove(userID)
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &c.locks[h.Sum32()%lockStripes]
}

func (c *Cache) record(hit bool) {
	if c.observer != nil {
		c.observer.RecordIndexCache(hit)
	}
}

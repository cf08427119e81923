package chunking

import (
	"log/slog"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

// boundaries are tried in priority order when a window has to be cut early.
var boundaries = []string{". ", "? ", "! ", "\n\n", "\n"}

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		slog.Warn("chunk_overlap_clamped", "chunk_size", chunkSize, "overlap", overlap, "clamped_to", chunkSize/4)
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Chunk splits text into overlapping windows cut at sentence, paragraph or
// word boundaries. Offsets in metadata are rune offsets into text.
func (s *Splitter) Chunk(text string, base map[string]any) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		slog.Warn("chunk_empty_text")
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	out := make([]domain.Chunk, 0, total/s.step()+1)

	start := 0
	for start < total {
		end := start + s.ChunkSize
		if end < total {
			end = s.cutPoint(runes, start, end)
		}
		if end <= start {
			end = min(start+s.ChunkSize, total)
		}
		if end > total {
			end = total
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			meta := domain.CloneMetadata(base)
			meta[domain.MetaChunkIndex] = len(out)
			meta[domain.MetaStartChar] = start
			meta[domain.MetaEndChar] = end
			out = append(out, domain.Chunk{
				Content:    content,
				ChunkIndex: len(out),
				Metadata:   meta,
			})
		}
		if end >= total {
			break
		}

		prev := start
		start = end - s.Overlap
		if start <= prev {
			// Never past the cut, or the runes in between are lost.
			start = min(prev+s.step(), end)
		}
	}

	slog.Debug("chunk_text_done", "chunks", len(out), "chunk_size", s.ChunkSize, "overlap", s.Overlap)
	return out
}

// ChunkByPages chunks every non-blank page, tags chunks with a 1-based page
// number and renumbers chunk indexes across the whole document.
func (s *Splitter) ChunkByPages(pages []string, base map[string]any) []domain.Chunk {
	var out []domain.Chunk
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		pageMeta := domain.CloneMetadata(base)
		pageMeta[domain.MetaPage] = i + 1

		for _, chunk := range s.Chunk(page, pageMeta) {
			chunk.ChunkIndex = len(out)
			chunk.Metadata[domain.MetaChunkIndex] = chunk.ChunkIndex
			out = append(out, chunk)
		}
	}
	return out
}

func (s *Splitter) step() int {
	return max(1, s.ChunkSize-s.Overlap)
}

// cutPoint returns the exclusive end of a window [start, end) that ends
// right after the highest priority boundary found inside it.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	for _, marker := range boundaries {
		if pos := lastIndexRunes(runes, []rune(marker), start, end); pos >= 0 {
			return pos + len([]rune(marker))
		}
	}
	if pos := lastIndexRunes(runes, []rune{' '}, start, end); pos >= 0 {
		return pos + 1
	}
	return end
}

// lastIndexRunes finds the last occurrence of sep fully contained in
// runes[start:end], or -1.
func lastIndexRunes(runes, sep []rune, start, end int) int {
	for i := end - len(sep); i >= start; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

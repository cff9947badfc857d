package chunk

import (
	"context"
	"strings"
)

// WindowChunker is the character-window fallback for unrecognised
// languages and parse failures: fixed-size windows with overlap,
// split points preferring paragraph, then line, then word boundaries.
type WindowChunker struct {
	WindowSize int
	Overlap    int
}

var _ Chunker = (*WindowChunker)(nil)

// NewWindowChunker returns a chunker with the default geometry.
func NewWindowChunker() *WindowChunker {
	return &WindowChunker{WindowSize: FallbackWindowSize, Overlap: FallbackOverlap}
}

// Chunk implements Chunker.
func (c *WindowChunker) Chunk(_ context.Context, _ string, content []byte) ([]*Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}
	body := string(content)
	size := c.WindowSize
	if size <= 0 {
		size = FallbackWindowSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = FallbackOverlap
	}

	if len(body) <= size {
		return []*Chunk{wholeBodyChunk(content, "")}, nil
	}

	var chunks []*Chunk
	start := 0
	seq := 0
	for start < len(body) {
		end := start + size
		if end >= len(body) {
			end = len(body)
		} else {
			end = splitPoint(body, start, end)
		}
		text := body[start:end]
		chunks = append(chunks, &Chunk{
			Hash:      HashChunk(text, "", ""),
			Content:   text,
			Type:      TypeText,
			StartLine: lineAt(body, start),
			EndLine:   lineAt(body, end-1),
			Pos:       start,
			Seq:       seq,
		})
		seq++
		if end == len(body) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// splitPoint picks a boundary at or before limit: paragraph break,
// then newline, then space; falls back to the hard limit.
func splitPoint(body string, start, limit int) int {
	window := body[start:limit]
	// Search the back half of the window so chunks stay near target size.
	floor := len(window) / 2
	if i := strings.LastIndex(window, "\n\n"); i >= floor {
		return start + i + 2
	}
	if i := strings.LastIndexByte(window, '\n'); i >= floor {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i >= floor {
		return start + i + 1
	}
	return limit
}

// lineAt returns the 1-based line number containing byte offset pos.
func lineAt(body string, pos int) int {
	if pos < 0 {
		pos = 0
	}
	if pos > len(body) {
		pos = len(body)
	}
	return 1 + strings.Count(body[:pos], "\n")
}

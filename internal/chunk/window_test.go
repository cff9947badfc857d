package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowChunkerSmallInputSingleChunk(t *testing.T) {
	c := NewWindowChunker()
	chunks, err := c.Chunk(context.Background(), "notes.txt", []byte("short body"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeText, chunks[0].Type)
	assert.Equal(t, "short body", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestWindowChunkerEmptyInput(t *testing.T) {
	c := NewWindowChunker()
	chunks, err := c.Chunk(context.Background(), "empty.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestWindowChunkerSplitsWithOverlap(t *testing.T) {
	c := &WindowChunker{WindowSize: 100, Overlap: 20}
	paragraphs := make([]string, 12)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat("word ", 8)
	}
	body := strings.Join(paragraphs, "\n\n")

	chunks, err := c.Chunk(context.Background(), "long.txt", []byte(body))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
		assert.LessOrEqual(t, len(ch.Content), 100)
		if i > 0 {
			// Consecutive windows overlap: the next chunk starts
			// before the previous one ends.
			prev := chunks[i-1]
			assert.Less(t, ch.Pos, prev.Pos+len(prev.Content))
		}
	}

	// Every byte of the body is covered.
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(body), last.Pos+len(last.Content))
}

func TestWindowChunkerPrefersLineBoundaries(t *testing.T) {
	c := &WindowChunker{WindowSize: 50, Overlap: 5}
	body := strings.Repeat("0123456789\n", 20)

	chunks, err := c.Chunk(context.Background(), "lines.txt", []byte(body))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	// All but the final chunk should end exactly on a newline.
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Content, "\n"),
			"chunk %d should end at a line boundary", ch.Seq)
	}
}

func TestLineAt(t *testing.T) {
	body := "one\ntwo\nthree"
	assert.Equal(t, 1, lineAt(body, 0))
	assert.Equal(t, 2, lineAt(body, 4))
	assert.Equal(t, 3, lineAt(body, len(body)-1))
}

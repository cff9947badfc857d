package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// Splitter is the dispatching chunker used by the indexing pipeline:
// recognised source languages go to the semantic chunker, Markdown to
// the heading chunker, everything else to the window fallback.
type Splitter struct {
	semantic *SemanticChunker
	markdown *MarkdownChunker
	window   *WindowChunker
}

var _ Chunker = (*Splitter)(nil)

// NewSplitter builds the standard chunker stack.
func NewSplitter() *Splitter {
	return &Splitter{
		semantic: NewSemanticChunker(),
		markdown: NewMarkdownChunker(),
		window:   NewWindowChunker(),
	}
}

// Close releases parser resources.
func (s *Splitter) Close() {
	s.semantic.Close()
}

// Chunk implements Chunker.
func (s *Splitter) Chunk(ctx context.Context, path string, content []byte) ([]*Chunk, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return s.markdown.Chunk(ctx, path, content)
	}
	if s.semantic.registry.LanguageForPath(path) != "" {
		return s.semantic.Chunk(ctx, path, content)
	}
	return s.window.Chunk(ctx, path, content)
}

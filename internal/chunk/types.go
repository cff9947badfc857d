// Package chunk splits document bodies into semantic sub-documents.
// Recognised source languages are parsed with tree-sitter and walked
// for top-level semantic nodes; everything else falls back to
// character-window chunking with boundary-aware splitting.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Type classifies what a chunk is a chunk of.
type Type string

const (
	TypeFunction  Type = "function"
	TypeMethod    Type = "method"
	TypeClass     Type = "class"
	TypeStruct    Type = "struct"
	TypeInterface Type = "interface"
	TypeEnum      Type = "enum"
	TypeModule    Type = "module"
	TypeText      Type = "text"
)

// Chunk is one semantic sub-region of a document body.
type Chunk struct {
	// Hash is the digest of Content, Leading, and Trailing together,
	// so two chunks with identical text and trivia share embeddings.
	Hash string

	// Content is the full source span of the semantic node.
	Content string

	// Leading is the comment trivia immediately preceding the node:
	// contiguous comment lines, plus the docstring for Python.
	Leading string

	// Trailing is comment trivia on the node's final line.
	Trailing string

	Type       Type
	Breadcrumb string
	Language   string

	// StartLine and EndLine are 1-based inclusive.
	StartLine int
	EndLine   int

	// Pos is the byte offset of Content within the document body.
	Pos int

	// Seq is the chunk's 0-based ordinal within its document.
	Seq int
}

// Chunker splits one document body into chunks.
type Chunker interface {
	// Chunk returns the chunks of content. The path is used only for
	// language detection. Implementations always return at least one
	// chunk for non-empty content.
	Chunk(ctx context.Context, path string, content []byte) ([]*Chunk, error)
}

// HashChunk computes a chunk's content-addressed hash from its text
// and trivia.
func HashChunk(content, leading, trailing string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(leading))
	h.Write([]byte{0})
	h.Write([]byte(trailing))
	return hex.EncodeToString(h.Sum(nil))
}

// Fallback window geometry, in bytes.
const (
	// FallbackWindowSize is the target size of one fallback chunk.
	FallbackWindowSize = 2000

	// FallbackOverlap is how much consecutive windows overlap.
	FallbackOverlap = 200
)

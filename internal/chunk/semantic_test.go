package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rustConfigSource = `pub struct Config {
    url: String,
}

impl Config {
    fn new() -> Self {
        Config { url: String::new() }
    }

    // Checks invariants before use.
    fn validate(&self) -> Result<(), String> {
        Ok(())
    }

    fn to_url(&self) -> String {
        self.url.clone()
    }
}
`

func chunkSource(t *testing.T, path, source string) []*Chunk {
	t.Helper()
	c := NewSemanticChunker()
	t.Cleanup(c.Close)
	chunks, err := c.Chunk(context.Background(), path, []byte(source))
	require.NoError(t, err)
	return chunks
}

func findByBreadcrumb(chunks []*Chunk, breadcrumb string) *Chunk {
	for _, c := range chunks {
		if c.Breadcrumb == breadcrumb {
			return c
		}
	}
	return nil
}

func TestRustImplMethods(t *testing.T) {
	chunks := chunkSource(t, "config.rs", rustConfigSource)

	validate := findByBreadcrumb(chunks, "Config::validate")
	require.NotNil(t, validate, "expected a Config::validate chunk")
	assert.Equal(t, TypeMethod, validate.Type)
	assert.Contains(t, validate.Content, "fn validate(&self) -> Result<(), String>")
	assert.Contains(t, validate.Leading, "Checks invariants")
	assert.Equal(t, 11, validate.StartLine)
	assert.Equal(t, 13, validate.EndLine)

	// Sequence neighbors are the surrounding impl methods.
	newChunk := findByBreadcrumb(chunks, "Config::new")
	toURL := findByBreadcrumb(chunks, "Config::to_url")
	require.NotNil(t, newChunk)
	require.NotNil(t, toURL)
	assert.Equal(t, validate.Seq-1, newChunk.Seq)
	assert.Equal(t, validate.Seq+1, toURL.Seq)

	structChunk := findByBreadcrumb(chunks, "Config")
	require.NotNil(t, structChunk)
	assert.Equal(t, TypeStruct, structChunk.Type)
}

func TestGoFunctionsAndMethods(t *testing.T) {
	source := `package server

// Run starts the loop.
func Run() error { return nil }

func (s *Server) Handle(req string) string {
	return req
}

type Server struct {
	addr string
}

type Handler interface {
	Serve() error
}
`
	chunks := chunkSource(t, "server.go", source)

	run := findByBreadcrumb(chunks, "Run")
	require.NotNil(t, run)
	assert.Equal(t, TypeFunction, run.Type)
	assert.Contains(t, run.Leading, "Run starts the loop.")

	handle := findByBreadcrumb(chunks, "Server::Handle")
	require.NotNil(t, handle)
	assert.Equal(t, TypeMethod, handle.Type)

	srv := findByBreadcrumb(chunks, "Server")
	require.NotNil(t, srv)
	assert.Equal(t, TypeStruct, srv.Type)

	handler := findByBreadcrumb(chunks, "Handler")
	require.NotNil(t, handler)
	assert.Equal(t, TypeInterface, handler.Type)
}

func TestPythonDocstringAndDecorators(t *testing.T) {
	source := `def plain():
    """Docstring for plain."""
    return 1


@decorator
def wrapped():
    return 2


class Thing:
    def method(self):
        return 3
`
	chunks := chunkSource(t, "mod.py", source)

	plain := findByBreadcrumb(chunks, "plain")
	require.NotNil(t, plain)
	assert.Contains(t, plain.Leading, "Docstring for plain.")

	wrapped := findByBreadcrumb(chunks, "wrapped")
	require.NotNil(t, wrapped)
	assert.Equal(t, TypeFunction, wrapped.Type)
	assert.Contains(t, wrapped.Content, "@decorator")

	thing := findByBreadcrumb(chunks, "Thing")
	require.NotNil(t, thing)
	assert.Equal(t, TypeClass, thing.Type)
}

func TestSeqDenseAndOrdered(t *testing.T) {
	chunks := chunkSource(t, "config.rs", rustConfigSource)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
	}
}

func TestChunkHashIncludesTrivia(t *testing.T) {
	withComment := chunkSource(t, "a.rs", "// doc\nfn f() {}\n")
	bare := chunkSource(t, "b.rs", "fn f() {}\n")
	require.Len(t, withComment, 1)
	require.Len(t, bare, 1)
	assert.NotEqual(t, bare[0].Hash, withComment[0].Hash)
	assert.Equal(t, bare[0].Content, withComment[0].Content)
}

func TestUnrecognisedLanguageFallsBack(t *testing.T) {
	c := NewSemanticChunker()
	defer c.Close()
	chunks, err := c.Chunk(context.Background(), "notes.xyz", []byte("just some text"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeText, chunks[0].Type)
}

func TestNoSemanticNodesEmitsWholeBody(t *testing.T) {
	// Valid Go with no top-level semantic declarations beyond package.
	chunks := chunkSource(t, "empty.go", "package empty\n\nvar x = 1\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeText, chunks[0].Type)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "package empty"))
}

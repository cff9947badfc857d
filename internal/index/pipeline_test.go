package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/engine/internal/chunk"
	"github.com/localkb/engine/internal/provider"
	"github.com/localkb/engine/internal/store"
)

// memProvider serves a fixed item set from memory.
type memProvider struct {
	items []provider.SourceItem
}

func (p *memProvider) ProviderType() string { return "memory" }

func (p *memProvider) ListItems(context.Context, provider.Config) ([]provider.SourceItem, error) {
	return p.items, nil
}

func (p *memProvider) FetchItem(_ context.Context, uri string) (provider.SourceItem, error) {
	for _, item := range p.items {
		if item.URI == uri {
			return item, nil
		}
	}
	return provider.SourceItem{}, provider.NotFound(uri)
}

func memItem(path, content string) provider.SourceItem {
	return provider.SourceItem{
		URI:        "/virtual/" + path,
		Title:      path,
		Content:    content,
		Hash:       provider.HashContent(content),
		SourceType: "memory",
		Metadata:   map[string]string{"path": path},
	}
}

func testPipeline(t *testing.T) (*Pipeline, *store.DB) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	splitter := chunk.NewSplitter()
	t.Cleanup(splitter.Close)
	return NewPipeline(db, splitter, nil, nil), db
}

var testCollection = store.Collection{Name: "kb", Path: "/virtual", ProviderType: "memory"}

func TestIndexCollection(t *testing.T) {
	pipeline, db := testPipeline(t)
	prov := &memProvider{items: []provider.SourceItem{
		memItem("notes.md", "# Notes\n\nSome body text."),
		memItem("main.go", "package main\n\nfunc main() {}\n"),
	}}

	stats, err := pipeline.IndexCollection(context.Background(), prov, testCollection, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Listed)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 0, stats.Failed)
	assert.Positive(t, stats.Chunks)

	doc, err := db.FindActiveDocument("kb", "notes.md")
	require.NoError(t, err)
	require.NotNil(t, doc)

	chunks, err := db.GetChunksForDocument(doc.Hash)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	// The directory index was refreshed.
	dirs, err := db.ListDirectories("kb")
	require.NoError(t, err)
	assert.NotEmpty(t, dirs)
}

func TestIndexCollectionSkipsUnchanged(t *testing.T) {
	pipeline, _ := testPipeline(t)
	prov := &memProvider{items: []provider.SourceItem{memItem("a.md", "stable content")}}
	ctx := context.Background()

	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	stats, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Indexed)
	assert.Equal(t, 1, stats.Unchanged)
}

func TestIndexCollectionReindexOnChange(t *testing.T) {
	pipeline, db := testPipeline(t)
	ctx := context.Background()

	prov := &memProvider{items: []provider.SourceItem{memItem("a.md", "version one")}}
	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)
	oldHash := provider.HashContent("version one")

	prov.items = []provider.SourceItem{memItem("a.md", "version two")}
	stats, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	doc, err := db.FindActiveDocument("kb", "a.md")
	require.NoError(t, err)
	assert.Equal(t, provider.HashContent("version two"), doc.Hash)

	// The superseded content's chunks are gone.
	orphans, err := db.GetChunksForDocument(oldHash)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestDeactivate(t *testing.T) {
	pipeline, db := testPipeline(t)
	ctx := context.Background()
	prov := &memProvider{items: []provider.SourceItem{memItem("gone.md", "ephemeral")}}
	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	ok, err := pipeline.Deactivate("kb", "gone.md")
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := db.FindActiveDocument("kb", "gone.md")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

// countingEmbedder counts how many texts it actually embeds.
type countingEmbedder struct {
	embedded int
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.embedded++
	return []float32{1, 0, 0}, nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		e.embedded++
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int                { return 3 }
func (e *countingEmbedder) ModelName() string              { return "counting" }
func (e *countingEmbedder) Available(context.Context) bool { return true }
func (e *countingEmbedder) Close() error                   { return nil }

// Embedding cache reuse: identical documents share chunk embeddings,
// a second pass without force is all cache hits, and force recomputes.
func TestEmbedDocumentsCacheReuse(t *testing.T) {
	pipeline, _ := testPipeline(t)
	ctx := context.Background()

	// Ten identical markdown documents at different paths.
	items := make([]provider.SourceItem, 10)
	for i := range items {
		items[i] = memItem(fmt.Sprintf("copy%d.md", i), "# Same\n\nIdentical content everywhere.")
	}
	prov := &memProvider{items: items}
	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	embedder := &countingEmbedder{}
	report, err := pipeline.EmbedDocuments(ctx, embedder, false, nil)
	require.NoError(t, err)
	// Identical content means one shared document hash: chunks are
	// embedded once and cached.
	firstRun := embedder.embedded
	assert.Positive(t, firstRun)
	assert.Equal(t, report.ComputedChunks, firstRun)

	// Second pass without force: nothing to embed, zero new calls.
	embedder2 := &countingEmbedder{}
	report2, err := pipeline.EmbedDocuments(ctx, embedder2, false, nil)
	require.NoError(t, err)
	assert.Zero(t, embedder2.embedded)
	assert.Zero(t, report2.ComputedChunks)

	// Force recomputes every chunk.
	embedder3 := &countingEmbedder{}
	report3, err := pipeline.EmbedDocuments(ctx, embedder3, true, nil)
	require.NoError(t, err)
	assert.Positive(t, embedder3.embedded)
	assert.Equal(t, report3.TotalChunks, report3.ComputedChunks)
}

func TestEmbedDocumentsProgressSink(t *testing.T) {
	pipeline, _ := testPipeline(t)
	ctx := context.Background()
	prov := &memProvider{items: []provider.SourceItem{
		memItem("a.md", "alpha body"),
		memItem("b.md", "beta body"),
	}}
	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	var updates []EmbedReport
	_, err = pipeline.EmbedDocuments(ctx, &countingEmbedder{}, false, func(r EmbedReport) {
		updates = append(updates, r)
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, 2, updates[1].ProcessedDocs)
}

func TestCheckConsistencyCleanStore(t *testing.T) {
	pipeline, _ := testPipeline(t)
	ctx := context.Background()
	prov := &memProvider{items: []provider.SourceItem{
		memItem("a.md", "alpha body"),
		memItem("m.go", "package m\n\nfunc F() {}\n"),
	}}
	_, err := pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	report, err := pipeline.CheckConsistency("kb")
	require.NoError(t, err)
	assert.True(t, report.Ok(), "issues: %v", report.Issues)
	assert.Equal(t, 2, report.DocumentsChecked)
	assert.Positive(t, report.ChunksChecked)
}

// A standalone keyword backend is fed on index and emptied again on
// reindex and deactivate.
func TestPipelineFeedsKeywordBackend(t *testing.T) {
	pipeline, _ := testPipeline(t)
	keyword, err := store.NewBleveBM25Index("")
	require.NoError(t, err)
	defer keyword.Close()
	pipeline.Keyword = keyword
	ctx := context.Background()

	prov := &memProvider{items: []provider.SourceItem{memItem("a.md", "searchable body text")}}
	_, err = pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	hits, err := keyword.Search(ctx, "searchable", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// Reindex with new content replaces the backend's entries.
	prov.items = []provider.SourceItem{memItem("a.md", "replacement prose")}
	_, err = pipeline.IndexCollection(ctx, prov, testCollection, false)
	require.NoError(t, err)

	hits, err = keyword.Search(ctx, "searchable", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = keyword.Search(ctx, "replacement", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// Deactivation removes the remaining entries.
	_, err = pipeline.Deactivate("kb", "a.md")
	require.NoError(t, err)
	hits, err = keyword.Search(ctx, "replacement", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

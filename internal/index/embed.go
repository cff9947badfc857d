package index

import (
	"context"
	"log/slog"

	"github.com/localkb/engine/internal/embed"
	"github.com/localkb/engine/internal/store"
)

// EmbedBatchSize is how many chunk texts are sent per embedder call.
const EmbedBatchSize = 32

// EmbedReport is delivered to the progress sink after each document
// and returned for the whole run.
type EmbedReport struct {
	TotalDocs      int
	ProcessedDocs  int
	TotalChunks    int
	CachedChunks   int
	ComputedChunks int
}

// ProgressSink receives incremental embedding progress; nil sinks are
// allowed everywhere.
type ProgressSink func(EmbedReport)

// EmbedDocuments embeds every document needing vectors (all active
// documents when force is set), reusing the chunk-embedding cache
// where possible.
func (p *Pipeline) EmbedDocuments(ctx context.Context, embedder embed.Embedder, force bool, progress ProgressSink) (EmbedReport, error) {
	model := embedder.ModelName()
	dims := embedder.Dimensions()

	// A model observed at a new dimensionality invalidates everything
	// it previously produced.
	if err := p.DB.CheckModelCompatibility(model, dims); err != nil {
		p.Logger.Warn("embedding model dimension changed, invalidating cached vectors",
			slog.String("model", model), slog.Int("dimensions", dims))
		if err := p.DB.InvalidateModelEmbeddings(model); err != nil {
			return EmbedReport{}, err
		}
	}

	var hashes []string
	var err error
	if force {
		hashes, err = p.allActiveDocumentHashes()
	} else {
		hashes, err = p.DB.DocumentHashesNeedingEmbedding(model)
	}
	if err != nil {
		return EmbedReport{}, err
	}

	report := EmbedReport{TotalDocs: len(hashes)}
	for _, docHash := range hashes {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
		if err := p.embedDocument(ctx, embedder, docHash, force, &report); err != nil {
			p.Logger.Warn("embedding failed for document",
				slog.String("hash", docHash),
				slog.String("error", err.Error()))
			continue
		}
		report.ProcessedDocs++
		if progress != nil {
			progress(report)
		}
	}
	return report, nil
}

type pendingChunk struct {
	chunk *store.Chunk
	text  string
}

func (p *Pipeline) embedDocument(ctx context.Context, embedder embed.Embedder, docHash string, force bool, report *EmbedReport) error {
	chunks, err := p.documentChunks(ctx, docHash)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	report.TotalChunks += len(chunks)

	model := embedder.ModelName()
	dims := embedder.Dimensions()

	var toCompute []pendingChunk
	for _, c := range chunks {
		if !force {
			vec, status, err := p.DB.GetCachedChunkEmbedding(c.Hash, model, dims)
			if err != nil {
				return err
			}
			if status == store.CacheHit {
				report.CachedChunks++
				if err := p.DB.InsertChunkVector(docHash, c.Seq, c.Pos, c.Hash, model, vec); err != nil {
					return err
				}
				continue
			}
		}
		toCompute = append(toCompute, pendingChunk{chunk: c, text: c.Content})
	}

	for start := 0; start < len(toCompute); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(toCompute) {
			end = len(toCompute)
		}
		batch := toCompute[start:end]
		texts := make([]string, len(batch))
		for i, pc := range batch {
			texts[i] = pc.text
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, pc := range batch {
			if i >= len(vectors) {
				break
			}
			if err := p.DB.InsertChunkVector(docHash, pc.chunk.Seq, pc.chunk.Pos, pc.chunk.Hash, model, vectors[i]); err != nil {
				return err
			}
			report.ComputedChunks++
		}
	}
	return nil
}

// documentChunks loads stored chunks for a document; when the
// document was indexed without chunk rows (legacy content), the body
// is re-chunked on the fly and the rows are backfilled.
func (p *Pipeline) documentChunks(ctx context.Context, docHash string) ([]*store.Chunk, error) {
	chunks, err := p.DB.GetChunksForDocument(docHash)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return chunks, nil
	}

	body, ok, err := p.DB.GetContent(docHash)
	if err != nil || !ok {
		return nil, err
	}
	doc, err := p.DB.FindDocumentByHash(docHash)
	if err != nil {
		return nil, err
	}
	path := ""
	if doc != nil {
		path = doc.Path
	}
	fresh, err := p.Chunker.Chunk(ctx, path, []byte(body))
	if err != nil {
		return nil, err
	}
	out := make([]*store.Chunk, 0, len(fresh))
	for _, c := range fresh {
		sc := store.Chunk{
			Hash:         c.Hash,
			DocumentHash: docHash,
			Seq:          c.Seq,
			Pos:          c.Pos,
			Content:      c.Content,
			ChunkType:    string(c.Type),
			Breadcrumb:   c.Breadcrumb,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Language:     c.Language,
		}
		if err := p.DB.InsertChunk(sc); err != nil {
			return nil, err
		}
		copied := sc
		out = append(out, &copied)
	}
	return out, nil
}

func (p *Pipeline) allActiveDocumentHashes() ([]string, error) {
	docs, err := p.DB.ActiveDocuments("")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var hashes []string
	for _, doc := range docs {
		if !seen[doc.Hash] {
			seen[doc.Hash] = true
			hashes = append(hashes, doc.Hash)
		}
	}
	return hashes, nil
}

package store

import (
	"strings"

	kberrors "github.com/localkb/engine/internal/errors"
)

// SanitizeFTSQuery rewrites a raw user query into a safe FTS5 MATCH
// expression: every token is double-quoted so FTS operators and
// hostile punctuation in user input cannot alter query semantics.
// An input with no indexable tokens returns "", which
// every FTS entry point treats as an empty result set.
func SanitizeFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_':
			return false
		case r > 127: // keep non-ASCII word characters for unicode61
			return false
		}
		return true
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	// Tokens are OR-joined: bm25 ranking still rewards documents
	// matching more of them, while one stray token (a pasted URL, a
	// typo) cannot zero out the result set the way implicit AND does.
	return strings.Join(quoted, " OR ")
}

// DocumentFTSHit pairs a document with its raw FTS rank. Rank follows
// the virtual table's convention (lower = better); callers normalise.
type DocumentFTSHit struct {
	Document *Document
	Rank     float64
}

// SearchDocumentsFTS runs a sanitised MATCH over documents_fts and
// returns active documents ordered by rank. An empty
// sanitised query returns no results and no error.
func (d *DB) SearchDocumentsFTS(query string, limit int) ([]DocumentFTSHit, error) {
	match := SanitizeFTSQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+prefixedDocumentColumns("doc")+`, bm25(documents_fts)
		 FROM documents_fts
		 JOIN documents doc ON doc.id = documents_fts.rowid AND doc.active = 1
		 WHERE documents_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("documents fts search", err)
	}
	defer rows.Close()

	var hits []DocumentFTSHit
	for rows.Next() {
		doc, rank, err := scanDocumentWithRank(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan documents fts hit", err)
		}
		hits = append(hits, DocumentFTSHit{Document: doc, Rank: rank})
	}
	return hits, rows.Err()
}

// ChunkFTSHit pairs a chunk with its raw FTS rank.
type ChunkFTSHit struct {
	Chunk *Chunk
	Rank  float64
}

// SearchChunksFTS runs a sanitised MATCH over chunks_fts (content and
// breadcrumb) and returns chunks ordered by rank.
func (d *DB) SearchChunksFTS(query string, limit int) ([]ChunkFTSHit, error) {
	match := SanitizeFTSQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+chunkColumns+`, bm25(chunks_fts)
		 FROM chunks_fts
		 JOIN chunks ON chunks.rowid = chunks_fts.rowid
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("chunks fts search", err)
	}
	defer rows.Close()

	var hits []ChunkFTSHit
	for rows.Next() {
		var rank float64
		c, err := scanChunkWithRank(rows, &rank)
		if err != nil {
			return nil, kberrors.StorageError("scan chunks fts hit", err)
		}
		hits = append(hits, ChunkFTSHit{Chunk: c, Rank: rank})
	}
	return hits, rows.Err()
}

// prefixedDocumentColumns renders documentColumns qualified by a table
// alias, for queries that join documents against a virtual table with
// overlapping column names.
func prefixedDocumentColumns(a string) string {
	cols := []string{
		a + ".id", a + ".collection", a + ".path", a + ".title", a + ".hash",
		a + ".created_at", a + ".modified_at", a + ".active",
		a + ".source_type", "COALESCE(" + a + ".source_uri,'')",
		a + ".user_metadata", a + ".importance_score",
		"COALESCE(" + a + ".llm_summary,'')", "COALESCE(" + a + ".llm_title,'')",
		"COALESCE(" + a + ".llm_keywords,'')", "COALESCE(" + a + ".llm_category,'')",
		"COALESCE(" + a + ".llm_intent,'')", "COALESCE(" + a + ".llm_concepts,'')",
		"COALESCE(" + a + ".llm_difficulty,'')", "COALESCE(" + a + ".llm_suggested_queries,'')",
		"COALESCE(" + a + ".llm_model,'')", "COALESCE(" + a + ".llm_generated_at,'')",
	}
	return strings.Join(cols, ", ")
}

func scanDocumentWithRank(row interface{ Scan(dest ...any) error }) (*Document, float64, error) {
	var doc Document
	var active int
	var userMetaJSON, sourceURI string
	var keywords, concepts, suggested string
	var rank float64

	err := row.Scan(
		&doc.ID, &doc.Collection, &doc.Path, &doc.Title, &doc.Hash,
		&doc.CreatedAt, &doc.ModifiedAt, &active, &doc.SourceType, &sourceURI,
		&nullableString{&userMetaJSON}, &doc.ImportanceScore,
		&doc.LLM.Summary, &doc.LLM.Title, &keywords,
		&doc.LLM.Category, &doc.LLM.Intent, &concepts,
		&doc.LLM.Difficulty, &suggested,
		&doc.LLM.Model, &doc.LLM.GeneratedAt,
		&rank,
	)
	if err != nil {
		return nil, 0, err
	}
	doc.Active = active != 0
	doc.SourceURI = sourceURI
	doc.LLM.Keywords = splitCSV(keywords)
	doc.LLM.Concepts = splitCSV(concepts)
	doc.LLM.SuggestedQueries = splitCSV(suggested)
	if userMetaJSON != "" {
		if um, perr := UserMetadataFromJSON(userMetaJSON); perr == nil {
			doc.UserMetadata = um
		}
	}
	return &doc, rank, nil
}

func scanChunkWithRank(row interface{ Scan(dest ...any) error }, rank *float64) (*Chunk, error) {
	var c Chunk
	var concepts, related string
	err := row.Scan(
		&c.Hash, &c.DocumentHash, &c.Seq, &c.Pos, &c.Content, &c.ChunkType, &c.Breadcrumb,
		&c.StartLine, &c.EndLine, &c.Language,
		&c.LLM.Summary, &c.LLM.Purpose, &concepts, &related, &c.LLM.Model, &c.LLM.GeneratedAt,
		&c.CreatedAt,
		rank,
	)
	if err != nil {
		return nil, err
	}
	c.LLM.Concepts = splitCSV(concepts)
	c.LLM.RelatedTo = splitCSV(related)
	return &c, nil
}

// nullableString scans a possibly-NULL text column into a plain
// string, leaving "" for NULL.
type nullableString struct{ s *string }

func (n *nullableString) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n.s = ""
	case string:
		*n.s = v
	case []byte:
		*n.s = string(v)
	}
	return nil
}

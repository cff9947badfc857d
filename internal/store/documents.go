package store

import (
	"database/sql"
	"sort"
	"strings"

	kberrors "github.com/localkb/engine/internal/errors"
)

// LLMFields are the document-level fields produced by metadata
// generation; stored as plain columns on documents.
type LLMFields struct {
	Summary          string
	Title            string
	Keywords         []string
	Category         string
	Intent           string
	Concepts         []string
	Difficulty       string
	SuggestedQueries []string
	Model            string
	GeneratedAt      string
}

// Document is the document-index entity.
type Document struct {
	ID               int64
	Collection       string
	Path             string
	Title            string
	Hash             string
	CreatedAt        string
	ModifiedAt       string
	Active           bool
	SourceType       string
	SourceURI        string
	UserMetadata     *UserMetadata
	ImportanceScore  float64
	LLM              LLMFields
}

// Docid returns the document's short 6-hex-character identifier.
func (doc *Document) Docid() string { return Docid(doc.Hash) }

// InsertDocument creates a new active document row. Fails with a
// DuplicateDocument error when (collection, path) is already active.
func (d *DB) InsertDocument(collection, path, title, hash, sourceType, sourceURI string, createdAt, modifiedAt string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var exists int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE collection = ? AND path = ? AND active = 1`,
		collection, path,
	).Scan(&exists)
	if err != nil {
		return 0, kberrors.StorageError("check existing document", err)
	}
	if exists > 0 {
		return 0, kberrors.DuplicateDocument(collection, path)
	}

	res, err := d.conn.Exec(
		`INSERT INTO documents(collection, path, title, hash, created_at, modified_at, active, source_type, source_uri)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		collection, path, title, hash, createdAt, modifiedAt, sourceType, sourceURI,
	)
	if err != nil {
		return 0, kberrors.StorageError("insert document", err)
	}
	return res.LastInsertId()
}

// UpdateDocument atomically updates title/hash/modified_at for id.
// Empty title/hash leave the existing value unchanged.
func (d *DB) UpdateDocument(id int64, title, hash, modifiedAt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(
		`UPDATE documents SET
			title = CASE WHEN ? != '' THEN ? ELSE title END,
			hash = CASE WHEN ? != '' THEN ? ELSE hash END,
			modified_at = ?
		 WHERE id = ?`,
		title, title, hash, hash, modifiedAt, id,
	)
	if err != nil {
		return kberrors.StorageError("update document", err)
	}
	return nil
}

// UpdateDocumentLLMFields persists generated metadata for a document.
func (d *DB) UpdateDocumentLLMFields(id int64, fields LLMFields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`UPDATE documents SET llm_summary=?, llm_title=?, llm_keywords=?, llm_category=?,
			llm_intent=?, llm_concepts=?, llm_difficulty=?, llm_suggested_queries=?,
			llm_model=?, llm_generated_at=?
		 WHERE id = ?`,
		fields.Summary, fields.Title, joinCSV(fields.Keywords), fields.Category,
		fields.Intent, joinCSV(fields.Concepts), fields.Difficulty, joinCSV(fields.SuggestedQueries),
		fields.Model, fields.GeneratedAt, id,
	)
	if err != nil {
		return kberrors.StorageError("update document llm fields", err)
	}
	return nil
}

// DeactivateDocument soft-deletes the active document at (collection,
// path). Idempotent: returns false without error if none was active.
func (d *DB) DeactivateDocument(collection, path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.conn.Exec(
		`UPDATE documents SET active = 0 WHERE collection = ? AND path = ? AND active = 1`,
		collection, path,
	)
	if err != nil {
		return false, kberrors.StorageError("deactivate document", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const documentColumns = `id, collection, path, title, hash, created_at, modified_at, active,
	source_type, COALESCE(source_uri,''), user_metadata, importance_score,
	COALESCE(llm_summary,''), COALESCE(llm_title,''), COALESCE(llm_keywords,''),
	COALESCE(llm_category,''), COALESCE(llm_intent,''), COALESCE(llm_concepts,''),
	COALESCE(llm_difficulty,''), COALESCE(llm_suggested_queries,''),
	COALESCE(llm_model,''), COALESCE(llm_generated_at,'')`

func scanDocument(row interface {
	Scan(dest ...any) error
}) (*Document, error) {
	var doc Document
	var active int
	var userMetaJSON sql.NullString
	var keywords, concepts, suggested string

	err := row.Scan(
		&doc.ID, &doc.Collection, &doc.Path, &doc.Title, &doc.Hash,
		&doc.CreatedAt, &doc.ModifiedAt, &active, &doc.SourceType, &doc.SourceURI,
		&userMetaJSON, &doc.ImportanceScore,
		&doc.LLM.Summary, &doc.LLM.Title, &keywords,
		&doc.LLM.Category, &doc.LLM.Intent, &concepts,
		&doc.LLM.Difficulty, &suggested,
		&doc.LLM.Model, &doc.LLM.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Active = active != 0
	doc.LLM.Keywords = splitCSV(keywords)
	doc.LLM.Concepts = splitCSV(concepts)
	doc.LLM.SuggestedQueries = splitCSV(suggested)
	if userMetaJSON.Valid && userMetaJSON.String != "" {
		um, perr := UserMetadataFromJSON(userMetaJSON.String)
		if perr == nil {
			doc.UserMetadata = um
		}
	}
	return &doc, nil
}

// FindActiveDocument returns the active document at (collection, path).
func (d *DB) FindActiveDocument(collection, path string) (*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.conn.QueryRow(
		`SELECT `+documentColumns+` FROM documents WHERE collection = ? AND path = ? AND active = 1`,
		collection, path,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("find active document", err)
	}
	return doc, nil
}

// FindByDocid resolves a 6-hex docid prefix (with or without leading
// '#') to its active document.
func (d *DB) FindByDocid(prefix string) (*Document, error) {
	prefix = strings.TrimPrefix(prefix, "#")
	if len(prefix) != 6 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.conn.QueryRow(
		`SELECT `+documentColumns+` FROM documents WHERE active = 1 AND hash LIKE ? || '%' LIMIT 1`,
		prefix,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("find document by docid", err)
	}
	return doc, nil
}

// FuzzyFindDocuments returns active documents whose title or path
// contains query as a substring, shortest path first.
func (d *DB) FuzzyFindDocuments(query string, limit int) ([]*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	like := "%" + query + "%"
	rows, err := d.conn.Query(
		`SELECT `+documentColumns+` FROM documents
		 WHERE active = 1 AND (title LIKE ? OR path LIKE ?)
		 ORDER BY LENGTH(path) ASC
		 LIMIT ?`,
		like, like, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("fuzzy find documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan fuzzy document", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LookupDocument resolves query through the ordered fallback chain:
// docid, virtual URI, absolute filesystem path within a registered
// collection, then fuzzy match.
func (d *DB) LookupDocument(query string, collections []Collection) (*Document, error) {
	if doc, err := d.FindByDocid(query); err != nil {
		return nil, err
	} else if doc != nil {
		return doc, nil
	}

	if idx := strings.Index(query, "://"); idx >= 0 {
		rest := query[idx+3:]
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 {
			if doc, err := d.FindActiveDocument(parts[0], parts[1]); err != nil {
				return nil, err
			} else if doc != nil {
				return doc, nil
			}
		}
	}

	if strings.HasPrefix(query, "/") {
		for _, c := range collections {
			if strings.HasPrefix(query, c.Path) {
				rel := strings.TrimPrefix(strings.TrimPrefix(query, c.Path), "/")
				if doc, err := d.FindActiveDocument(c.Name, rel); err != nil {
					return nil, err
				} else if doc != nil {
					return doc, nil
				}
			}
		}
	}

	docs, err := d.FuzzyFindDocuments(query, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return docs[0], nil
	}
	return nil, nil
}

// ListDocumentsByPrefix returns active documents whose (collection,
// path) starts with prefix, ordered by path.
func (d *DB) ListDocumentsByPrefix(collection, prefix string, limit int) ([]*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+documentColumns+` FROM documents
		 WHERE active = 1 AND collection = ? AND path LIKE ? || '%'
		 ORDER BY path ASC LIMIT ?`,
		collection, prefix, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("list documents by prefix", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DocumentsByPathPrefix returns active documents under a directory
// path, across all collections, used by directory-index rebuilds.
func (d *DB) DocumentsByPathPrefix(prefix string, limit int) ([]*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT `+documentColumns+` FROM documents
		 WHERE active = 1 AND (collection || '/' || path) LIKE ? || '%'
		 ORDER BY path ASC LIMIT ?`,
		prefix, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("documents by path prefix", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ActiveDocuments returns every active document in a collection
// (empty collection means every collection), used by embedding and
// directory-index passes.
func (d *DB) ActiveDocuments(collection string) ([]*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `SELECT ` + documentColumns + ` FROM documents WHERE active = 1`
	args := []any{}
	if collection != "" {
		query += ` AND collection = ?`
		args = append(args, collection)
	}
	query += ` ORDER BY collection, path`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, kberrors.StorageError("list active documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func joinCSV(vals []string) string { return strings.Join(vals, "\x1f") }
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

// FindDocumentByHash returns the active document whose content hash
// is exactly hash; nil when no active document references it.
func (d *DB) FindDocumentByHash(hash string) (*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.conn.QueryRow(
		`SELECT `+documentColumns+` FROM documents WHERE hash = ? AND active = 1 LIMIT 1`, hash,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("find document by hash", err)
	}
	return doc, nil
}

// SetImportanceScore updates a document's ranking multiplier.
func (d *DB) SetImportanceScore(id int64, score float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`UPDATE documents SET importance_score = ? WHERE id = ?`, score, id); err != nil {
		return kberrors.StorageError("set importance score", err)
	}
	return nil
}

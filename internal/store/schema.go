package store

import (
	"database/sql"
	"strconv"

	kberrors "github.com/localkb/engine/internal/errors"
)

// CurrentSchemaVersion is the schema version this build writes.
// Migrations are additive and monotonic;
// a database at a newer version than this build refuses to open.
const CurrentSchemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content (
	hash TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	path TEXT NOT NULL,
	title TEXT NOT NULL,
	hash TEXT NOT NULL REFERENCES content(hash),
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	source_type TEXT NOT NULL DEFAULT '',
	source_uri TEXT,
	user_metadata TEXT,
	importance_score REAL NOT NULL DEFAULT 1.0,
	llm_summary TEXT,
	llm_title TEXT,
	llm_keywords TEXT,
	llm_category TEXT,
	llm_intent TEXT,
	llm_concepts TEXT,
	llm_difficulty TEXT,
	llm_suggested_queries TEXT,
	llm_model TEXT,
	llm_generated_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_path
	ON documents(collection, path) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);

CREATE TABLE IF NOT EXISTS chunks (
	hash TEXT PRIMARY KEY,
	document_hash TEXT NOT NULL,
	seq INTEGER NOT NULL,
	pos INTEGER NOT NULL,
	content TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	breadcrumb TEXT,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	language TEXT,
	llm_summary TEXT,
	llm_purpose TEXT,
	llm_concepts TEXT,
	llm_labels TEXT,
	llm_related_to TEXT,
	llm_model TEXT,
	llm_generated_at TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_hash, seq);

CREATE TABLE IF NOT EXISTS chunk_labels (
	chunk_hash TEXT NOT NULL REFERENCES chunks(hash),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(chunk_hash, key)
);
CREATE INDEX IF NOT EXISTS idx_chunk_labels_kv ON chunk_labels(key, value);

CREATE TABLE IF NOT EXISTS model_metadata (
	model TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	last_used_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_vectors (
	hash TEXT NOT NULL,
	seq INTEGER NOT NULL,
	pos INTEGER NOT NULL,
	model TEXT NOT NULL,
	chunk_hash TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY (hash, seq)
);

CREATE TABLE IF NOT EXISTS embeddings (
	hash TEXT NOT NULL,
	seq INTEGER NOT NULL,
	vector BLOB NOT NULL,
	PRIMARY KEY (hash, seq)
);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
	chunk_hash TEXT NOT NULL,
	model TEXT NOT NULL,
	vector BLOB NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (chunk_hash, model)
);
CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_model ON chunk_embeddings(model);

CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	pattern TEXT NOT NULL,
	provider_type TEXT NOT NULL,
	provider_config TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS concepts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term TEXT NOT NULL,
	normalized TEXT NOT NULL UNIQUE,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS concept_chunks (
	concept_id INTEGER NOT NULL REFERENCES concepts(id),
	chunk_hash TEXT NOT NULL,
	document_hash TEXT NOT NULL,
	snippet TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(concept_id, chunk_hash)
);
CREATE INDEX IF NOT EXISTS idx_concept_chunks_doc ON concept_chunks(document_hash);

CREATE TABLE IF NOT EXISTS directories (
	path TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	depth INTEGER NOT NULL,
	file_count INTEGER NOT NULL,
	child_dir_count INTEGER NOT NULL,
	summary TEXT,
	dominant_language TEXT,
	dominant_category TEXT,
	concepts TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	last_active_at TEXT NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	context TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS session_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	query TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	top_results TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_seen (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	document_hash TEXT NOT NULL,
	chunk_hash TEXT NOT NULL DEFAULT '',
	detail_level TEXT NOT NULL DEFAULT '',
	UNIQUE(session_id, document_hash, chunk_hash)
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	confidence REAL NOT NULL,
	source_query TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TEXT
);

CREATE TABLE IF NOT EXISTS contexts (
	path TEXT PRIMARY KEY,
	context TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS llm_cache (
	cache_key TEXT PRIMARY KEY,
	metadata_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	filepath, title, body, tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content, breadcrumb, tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS concepts_fts USING fts5(
	term, tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content, category, tokenize='unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS directories_fts USING fts5(
	path, summary, tokenize='unicode61'
);
`

// Triggers keep the FTS virtual tables in sync with their source rows,
// but only for active=true documents.
const triggerDDL = `
CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents
WHEN NEW.active = 1
BEGIN
	INSERT INTO documents_fts(rowid, filepath, title, body)
	SELECT NEW.id, NEW.collection || '/' || NEW.path, NEW.title, c.body
	FROM content c WHERE c.hash = NEW.hash;
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON documents
BEGIN
	DELETE FROM documents_fts WHERE rowid = OLD.id;
	INSERT INTO documents_fts(rowid, filepath, title, body)
	SELECT NEW.id, NEW.collection || '/' || NEW.path, NEW.title, c.body
	FROM content c WHERE c.hash = NEW.hash AND NEW.active = 1;
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents
BEGIN
	DELETE FROM documents_fts WHERE rowid = OLD.id;
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks
BEGIN
	INSERT INTO chunks_fts(rowid, content, breadcrumb)
	VALUES (NEW.rowid, NEW.content, COALESCE(NEW.breadcrumb, ''));
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE ON chunks
BEGIN
	DELETE FROM chunks_fts WHERE rowid = OLD.rowid;
	INSERT INTO chunks_fts(rowid, content, breadcrumb)
	VALUES (NEW.rowid, NEW.content, COALESCE(NEW.breadcrumb, ''));
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks
BEGIN
	DELETE FROM chunks_fts WHERE rowid = OLD.rowid;
END;

CREATE TRIGGER IF NOT EXISTS concepts_fts_insert AFTER INSERT ON concepts
BEGIN
	INSERT INTO concepts_fts(rowid, term) VALUES (NEW.id, NEW.term);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories
BEGIN
	INSERT INTO memories_fts(rowid, content, category) VALUES (NEW.rowid, NEW.content, NEW.category);
END;

CREATE TRIGGER IF NOT EXISTS directories_fts_insert AFTER INSERT ON directories
BEGIN
	INSERT INTO directories_fts(rowid, path, summary) VALUES (NEW.rowid, NEW.path, COALESCE(NEW.summary, ''));
END;

CREATE TRIGGER IF NOT EXISTS directories_fts_update AFTER UPDATE ON directories
BEGIN
	DELETE FROM directories_fts WHERE rowid = OLD.rowid;
	INSERT INTO directories_fts(rowid, path, summary) VALUES (NEW.rowid, NEW.path, COALESCE(NEW.summary, ''));
END;

CREATE TRIGGER IF NOT EXISTS directories_fts_delete AFTER DELETE ON directories
BEGIN
	DELETE FROM directories_fts WHERE rowid = OLD.rowid;
END;
`

// migrate creates the schema if absent and records/validates the schema
// version. Migrations are additive: a future version adds columns or
// tables here behind a version check; this build refuses to run
// against a database whose recorded version is newer than it knows.
func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schemaDDL); err != nil {
		return kberrors.DatabaseError("apply schema", err)
	}
	if _, err := d.conn.Exec(triggerDDL); err != nil {
		return kberrors.DatabaseError("apply triggers", err)
	}

	var version int
	err := d.conn.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		_, err = d.conn.Exec(`INSERT INTO schema_version(version, applied_at) VALUES (?, datetime('now'))`, CurrentSchemaVersion)
		if err != nil {
			return kberrors.DatabaseError("record schema version", err)
		}
		return nil
	}
	if err != nil {
		return kberrors.DatabaseError("read schema version", err)
	}
	if version > CurrentSchemaVersion {
		return kberrors.New(kberrors.CodeDatabase,
			"database schema is newer than this build supports", nil).
			WithDetail("db_version", strconv.Itoa(version)).
			WithDetail("build_version", strconv.Itoa(CurrentSchemaVersion))
	}
	return nil
}

// Package store is the persistence layer: a single embedded relational
// database (SQLite) holding content, documents, chunks, embeddings, the
// concept/glossary graph, user metadata, sessions, memories, and the
// directory index.
//
// The database handle is single-threaded cooperative: one
// *sql.DB configured for exactly one open connection, guarded by an
// internal mutex so callers never need to reason about SQLite's own
// locking. A gofrs/flock advisory lock on the database file enforces
// the single-writer-per-process assumption across processes.
package store

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"database/sql"

	"github.com/gofrs/flock"

	kberrors "github.com/localkb/engine/internal/errors"
)

// DB wraps the single SQLite connection used by every store operation.
type DB struct {
	mu     sync.Mutex
	conn   *sql.DB
	path   string
	lock   *flock.Flock
	closed bool
}

// Open opens (creating if needed) the database at path and applies
// the standard pragma set: WAL journaling, synchronous=NORMAL,
// foreign key enforcement, a >=64MiB page cache, and a 5s busy timeout.
// path == "" opens a private in-memory database, used by tests.
func Open(path string) (*DB, error) {
	dsn := ":memory:"
	var fl *flock.Flock

	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kberrors.IOError("create database directory", err)
		}
		fl = flock.New(path + ".lock")
		locked, err := fl.TryLock()
		if err != nil {
			return nil, kberrors.StorageError("acquire database lock", err)
		}
		if !locked {
			return nil, kberrors.New(kberrors.CodeStorage, "database is locked by another process", nil)
		}
		// Pragmas, including busy_timeout, are applied uniformly after
		// open so both drivers behave identically.
		dsn = path
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, kberrors.DatabaseError("open sqlite database", err)
	}
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn, path: path, lock: fl}

	if err := d.applyPragmas(); err != nil {
		_ = conn.Close()
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, err
	}

	if err := d.migrate(); err != nil {
		_ = conn.Close()
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, err
	}

	return d, nil
}

func (d *DB) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536", // 64MiB, negative = KiB
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := d.conn.Exec(p); err != nil {
			return kberrors.DatabaseError(fmt.Sprintf("apply pragma %q", p), err)
		}
	}
	return nil
}

// Close releases the connection and any cross-process file lock.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.conn.Close()
	if d.lock != nil {
		_ = d.lock.Unlock()
	}
	return err
}

// ErrClosed reports a closed database. Store operations do not return
// it; after Close they fail with the driver's closed-database error.
var ErrClosed = stderrors.New("store: database is closed")

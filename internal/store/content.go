package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// DigestHex returns the hex-encoded SHA-256 digest of body, the content
// hash used throughout the store as a primary key.
func DigestHex(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Docid returns the 6-hex-character prefix of a content hash, the
// short user-visible document identifier.
func Docid(hash string) string {
	if len(hash) < 6 {
		return hash
	}
	return hash[:6]
}

// InsertContent idempotently stores body under its digest. Re-inserting
// the same hash is a no-op; bodies are never mutated.
func (d *DB) InsertContent(hash, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO content(hash, body, created_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(hash) DO NOTHING`,
		hash, body,
	)
	if err != nil {
		return kberrors.StorageError("insert content", err)
	}
	return nil
}

// GetContent returns the body for hash, or ("", false) if absent.
func (d *DB) GetContent(hash string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var body string
	err := d.conn.QueryRow(`SELECT body FROM content WHERE hash = ?`, hash).Scan(&body)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, kberrors.StorageError("get content", err)
	}
	return body, true, nil
}

// deleteContentIfOrphaned removes a content row when no document
// references it any longer.
func deleteContentIfOrphaned(tx *sql.Tx, hash string) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM documents WHERE hash = ?`, hash).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := tx.Exec(`DELETE FROM content WHERE hash = ?`, hash)
		return err
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

package store

import (
	"database/sql"
	stderrors "errors"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
)

// GetCachedMetadata looks up a previously generated metadata JSON blob
// by its content-addressed cache key ("Cache key":
// digest(content || model_name)). Returns ok=false on a cache miss.
func (d *DB) GetCachedMetadata(cacheKey string) (json string, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.conn.QueryRow(`SELECT metadata_json FROM llm_cache WHERE cache_key = ?`, cacheKey).Scan(&json)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, kberrors.StorageError("get cached metadata", err)
	}
	return json, true, nil
}

// SetCachedMetadata stores a generated metadata JSON blob under its
// cache key, overwriting any prior entry for the same key.
func (d *DB) SetCachedMetadata(cacheKey, metadataJSON string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(
		`INSERT INTO llm_cache(cache_key, metadata_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET metadata_json = excluded.metadata_json`,
		cacheKey, metadataJSON, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return kberrors.StorageError("set cached metadata", err)
	}
	return nil
}

// DeleteCachedMetadata removes a cache entry, used when a document is
// force-reindexed and its stale metadata must not resurface.
func (d *DB) DeleteCachedMetadata(cacheKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.Exec(`DELETE FROM llm_cache WHERE cache_key = ?`, cacheKey)
	if err != nil {
		return kberrors.StorageError("delete cached metadata", err)
	}
	return nil
}

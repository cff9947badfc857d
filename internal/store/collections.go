package store

import (
	"database/sql"
	"encoding/json"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Collection registers a source root with the engine: a name, its
// provider type and config, and an inclusion pattern.
type Collection struct {
	Name           string
	Path           string
	Pattern        string
	ProviderType   string
	ProviderConfig string
	CreatedAt      string
	UpdatedAt      string
}

// UpsertCollection creates or updates a collection registration.
func (d *DB) UpsertCollection(c Collection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO collections(name, path, pattern, provider_type, provider_config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			path = excluded.path, pattern = excluded.pattern,
			provider_type = excluded.provider_type, provider_config = excluded.provider_config,
			updated_at = excluded.updated_at`,
		c.Name, c.Path, c.Pattern, c.ProviderType, c.ProviderConfig, nowISO(), nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("upsert collection", err)
	}
	return nil
}

// GetCollection returns a registered collection by name.
func (d *DB) GetCollection(name string) (*Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var c Collection
	err := d.conn.QueryRow(
		`SELECT name, path, pattern, provider_type, COALESCE(provider_config,''), created_at, updated_at
		 FROM collections WHERE name = ?`, name,
	).Scan(&c.Name, &c.Path, &c.Pattern, &c.ProviderType, &c.ProviderConfig, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get collection", err)
	}
	return &c, nil
}

// ListCollections returns every registered collection, ordered by name.
func (d *DB) ListCollections() ([]Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT name, path, pattern, provider_type, COALESCE(provider_config,''), created_at, updated_at
		 FROM collections ORDER BY name`,
	)
	if err != nil {
		return nil, kberrors.StorageError("list collections", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.Name, &c.Path, &c.Pattern, &c.ProviderType, &c.ProviderConfig, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, kberrors.StorageError("scan collection", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCollection removes a collection registration. Documents
// already indexed under it are untouched; callers deactivate them
// separately if a full removal is intended.
func (d *DB) DeleteCollection(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return kberrors.StorageError("delete collection", err)
	}
	return nil
}

// UpsertContext stores an arbitrary context blob keyed by path, used
// to cache directory-level summaries consumed by metadata generation.
func (d *DB) UpsertContext(path, context string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO contexts(path, context, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET context = excluded.context`,
		path, context, nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("upsert context", err)
	}
	return nil
}

// GetContext returns the context blob stored for path, if any.
func (d *DB) GetContext(path string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var context string
	err := d.conn.QueryRow(`SELECT context FROM contexts WHERE path = ?`, path).Scan(&context)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, kberrors.StorageError("get context", err)
	}
	return context, true, nil
}

// ProviderOptions decodes ProviderConfig's JSON object into the
// string map handed to providers; malformed or empty config yields an
// empty map rather than an error.
func (c Collection) ProviderOptions() map[string]string {
	out := make(map[string]string)
	if c.ProviderConfig == "" {
		return out
	}
	_ = json.Unmarshal([]byte(c.ProviderConfig), &out)
	return out
}

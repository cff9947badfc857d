package store

import (
	"database/sql"
	"path"
	"sort"
	"strings"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Directory is the aggregated per-directory index entry: rollup
// stats and a union of concepts for every document
// beneath it, used to answer "what's in this area of the tree"
// queries without scanning every document.
type Directory struct {
	Path             string
	Collection       string
	Depth            int
	FileCount        int
	ChildDirCount    int
	Summary          string
	DominantLanguage string
	DominantCategory string
	Concepts         []string
	UpdatedAt        string
}

// UpsertDirectory writes (or replaces) a directory's aggregated entry.
func (d *DB) UpsertDirectory(dir Directory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(
		`INSERT INTO directories(path, collection, depth, file_count, child_dir_count,
			summary, dominant_language, dominant_category, concepts, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			collection = excluded.collection, depth = excluded.depth,
			file_count = excluded.file_count, child_dir_count = excluded.child_dir_count,
			summary = excluded.summary, dominant_language = excluded.dominant_language,
			dominant_category = excluded.dominant_category, concepts = excluded.concepts,
			updated_at = excluded.updated_at`,
		dir.Path, dir.Collection, dir.Depth, dir.FileCount, dir.ChildDirCount,
		dir.Summary, dir.DominantLanguage, dir.DominantCategory, joinCSV(dir.Concepts), nowISO(),
	)
	if err != nil {
		return kberrors.StorageError("upsert directory", err)
	}
	return nil
}

// GetDirectory returns the aggregated entry for a directory path.
func (d *DB) GetDirectory(dirPath string) (*Directory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := d.conn.QueryRow(
		`SELECT path, collection, depth, file_count, child_dir_count,
			COALESCE(summary,''), COALESCE(dominant_language,''), COALESCE(dominant_category,''),
			COALESCE(concepts,''), updated_at
		 FROM directories WHERE path = ?`, dirPath,
	)
	dir, err := scanDirectory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.StorageError("get directory", err)
	}
	return dir, nil
}

// ListDirectories returns every directory registered under collection,
// ordered by path.
func (d *DB) ListDirectories(collection string) ([]*Directory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT path, collection, depth, file_count, child_dir_count,
			COALESCE(summary,''), COALESCE(dominant_language,''), COALESCE(dominant_category,''),
			COALESCE(concepts,''), updated_at
		 FROM directories WHERE collection = ? ORDER BY path`, collection,
	)
	if err != nil {
		return nil, kberrors.StorageError("list directories", err)
	}
	defer rows.Close()

	var out []*Directory
	for rows.Next() {
		dir, err := scanDirectory(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan directory", err)
		}
		out = append(out, dir)
	}
	return out, nil
}

// SearchDirectoriesFTS matches directories whose path or summary
// contains query via directories_fts.
func (d *DB) SearchDirectoriesFTS(query string, limit int) ([]*Directory, error) {
	match := SanitizeFTSQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	query = match
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(
		`SELECT dir.path, dir.collection, dir.depth, dir.file_count, dir.child_dir_count,
			COALESCE(dir.summary,''), COALESCE(dir.dominant_language,''), COALESCE(dir.dominant_category,''),
			COALESCE(dir.concepts,''), dir.updated_at
		 FROM directories_fts f JOIN directories dir ON dir.rowid = f.rowid
		 WHERE directories_fts MATCH ? ORDER BY rank LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, kberrors.StorageError("search directories", err)
	}
	defer rows.Close()

	var out []*Directory
	for rows.Next() {
		dir, err := scanDirectory(rows)
		if err != nil {
			return nil, kberrors.StorageError("scan directory", err)
		}
		out = append(out, dir)
	}
	return out, nil
}

func scanDirectory(row interface{ Scan(dest ...any) error }) (*Directory, error) {
	var dir Directory
	var concepts string
	err := row.Scan(
		&dir.Path, &dir.Collection, &dir.Depth, &dir.FileCount, &dir.ChildDirCount,
		&dir.Summary, &dir.DominantLanguage, &dir.DominantCategory, &concepts, &dir.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	dir.Concepts = splitCSV(concepts)
	return &dir, nil
}

// RebuildDirectoryIndex recomputes every directory entry under
// collection from its active documents: file counts, child directory
// counts, the majority language/category, and the union of document
// concepts truncated to 20 entries.
func (d *DB) RebuildDirectoryIndex(collection string) error {
	docs, err := d.ActiveDocuments(collection)
	if err != nil {
		return err
	}

	type agg struct {
		files      int
		childDirs  map[string]bool
		languages  map[string]int
		categories map[string]int
		concepts   map[string]bool
		depth      int
	}
	dirs := make(map[string]*agg)

	ensure := func(p string, depth int) *agg {
		a, ok := dirs[p]
		if !ok {
			a = &agg{
				childDirs:  make(map[string]bool),
				languages:  make(map[string]int),
				categories: make(map[string]int),
				concepts:   make(map[string]bool),
				depth:      depth,
			}
			dirs[p] = a
		}
		return a
	}

	for _, doc := range docs {
		dirPath := path.Dir(doc.Path)
		if dirPath == "." {
			dirPath = ""
		}
		depth := 0
		if dirPath != "" {
			depth = len(strings.Split(dirPath, "/"))
		}
		a := ensure(dirPath, depth)
		a.files++
		if doc.LLM.Category != "" {
			a.categories[doc.LLM.Category]++
		}
		lang := path.Ext(doc.Path)
		if lang != "" {
			a.languages[lang]++
		}
		for _, c := range doc.LLM.Concepts {
			a.concepts[c] = true
		}

		// register every ancestor so empty intermediate directories
		// still appear with a correct child_dir_count
		child := dirPath
		for child != "" {
			parent := path.Dir(child)
			if parent == "." {
				parent = ""
			}
			parentDepth := 0
			if parent != "" {
				parentDepth = len(strings.Split(parent, "/"))
			}
			ensure(parent, parentDepth).childDirs[child] = true
			child = parent
		}
	}

	for p, a := range dirs {
		concepts := make([]string, 0, len(a.concepts))
		for c := range a.concepts {
			concepts = append(concepts, c)
		}
		sort.Strings(concepts)
		if len(concepts) > 20 {
			concepts = concepts[:20]
		}

		// Stored paths are collection-qualified so directories from
		// different collections never collide on the primary key.
		qualified := collection
		if p != "" {
			qualified = collection + "/" + p
		}
		dir := Directory{
			Path:             qualified,
			Collection:       collection,
			Depth:            a.depth,
			FileCount:        a.files,
			ChildDirCount:    len(a.childDirs),
			DominantLanguage: majorityKey(a.languages),
			DominantCategory: majorityKey(a.categories),
			Concepts:         concepts,
		}
		if err := d.UpsertDirectory(dir); err != nil {
			return err
		}
	}
	return nil
}

func majorityKey(counts map[string]int) string {
	best, bestCount := "", 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

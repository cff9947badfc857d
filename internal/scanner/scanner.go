// Package scanner discovers the indexable files of a collection
// root: it walks the tree, applies the collection's include/exclude
// globs and any .gitignore rules, skips binary and oversized files,
// and streams what remains to the indexing pipeline.
package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	kberrors "github.com/localkb/engine/internal/errors"
	"github.com/localkb/engine/internal/gitignore"
)

// DefaultMaxFileSize caps file size unless the caller overrides it.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// sniffLen is how many leading bytes are inspected for binary
// content.
const sniffLen = 512

// alwaysSkippedDirs never contain indexable collection content.
var alwaysSkippedDirs = map[string]bool{
	".git":         true,
	".kbengine":    true,
	"node_modules": true,
}

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is slash-separated and relative to the scan root.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	Size     int64
	ModTime  time.Time
	Language string
}

// ScanOptions configures one scan.
type ScanOptions struct {
	// RootDir is the collection root; "" means the current directory.
	RootDir string

	// IncludePatterns restricts results to matching paths; empty
	// means every file. Globs support *, ?, and **.
	IncludePatterns []string

	// ExcludePatterns drops matching paths.
	ExcludePatterns []string

	// RespectGitignore applies .gitignore files found in the tree.
	RespectGitignore bool

	// MaxFileSize skips larger files; 0 uses the default.
	MaxFileSize int64
}

// ScanResult is one streamed entry: a file or a per-entry error. The
// scan itself continues past entry errors.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Scanner walks collection roots. It is stateless between scans and
// safe to reuse.
type Scanner struct{}

// New returns a scanner.
func New() (*Scanner, error) {
	return &Scanner{}, nil
}

// Scan streams the indexable files under opts.RootDir. The channel
// closes when the walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	root := opts.RootDir
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, kberrors.IOError("resolve scan root", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, kberrors.IOError("stat scan root", err)
	}
	if !info.IsDir() {
		return nil, kberrors.InvalidInput("scan root is not a directory: "+absRoot, nil)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	ignore := gitignore.New()
	if opts.RespectGitignore {
		_ = ignore.AddFile(filepath.Join(absRoot, ".gitignore"), "")
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		_ = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if walkErr != nil {
				results <- ScanResult{Error: walkErr}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(absRoot, p)
			if err != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if alwaysSkippedDirs[d.Name()] {
					return fs.SkipDir
				}
				if opts.RespectGitignore {
					// Nested ignore files scope to their own directory.
					_ = ignore.AddFile(filepath.Join(p, ".gitignore"), rel)
					if ignore.Match(rel, true) {
						return fs.SkipDir
					}
				}
				if matchesAny(rel, opts.ExcludePatterns) {
					return fs.SkipDir
				}
				return nil
			}

			if d.Name() == ".gitignore" {
				return nil
			}
			if opts.RespectGitignore && ignore.Match(rel, false) {
				return nil
			}
			if matchesAny(rel, opts.ExcludePatterns) {
				return nil
			}
			if len(opts.IncludePatterns) > 0 && !matchesAny(rel, opts.IncludePatterns) {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				results <- ScanResult{Error: err}
				return nil
			}
			if fi.Size() > maxSize {
				return nil
			}
			if isBinary(p) {
				return nil
			}

			results <- ScanResult{File: &FileInfo{
				Path:     rel,
				AbsPath:  p,
				Size:     fi.Size(),
				ModTime:  fi.ModTime(),
				Language: DetectLanguage(rel),
			}}
			return nil
		})
	}()
	return results, nil
}

// matchesAny reports whether rel matches any of the glob patterns.
// Patterns match either the full relative path or the base name, so
// "*.md" and "docs/**" both behave as collection configs expect.
func matchesAny(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if matchGlob(pattern, rel) || matchGlob(pattern, base) {
			return true
		}
		// "dir/**" also covers the directory itself.
		if trimmed, ok := strings.CutSuffix(pattern, "/**"); ok {
			if rel == trimmed || strings.HasPrefix(rel, trimmed+"/") {
				return true
			}
		}
	}
	return false
}

// matchGlob matches a path against a glob where "**" crosses
// directory separators and "*" does not.
func matchGlob(pattern, rel string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, rel)
		return err == nil && ok
	}
	parts := strings.Split(pattern, "**")
	// Only the common "prefix**suffix" shape needs custom handling.
	if len(parts) != 2 {
		return false
	}
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")
	if prefix != "" {
		if !strings.HasPrefix(rel, prefix+"/") && rel != prefix {
			return false
		}
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, prefix), "/")
	}
	if suffix == "" {
		return true
	}
	ok, err := filepath.Match(suffix, filepath.Base(rel))
	return err == nil && ok
}

// isBinary sniffs the file head for null bytes.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// languageByExt maps extensions to the language tags stored on
// documents and chunks.
var languageByExt = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sql":  "sql",
	".sh":   "shell",
	".txt":  "text",
	".csv":  "csv",
	".html": "html",
	".css":  "css",
}

// DetectLanguage returns the language tag for a path, or "".
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

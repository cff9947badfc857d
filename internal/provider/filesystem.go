package provider

import (
	"context"
	"os"
	"path/filepath"

	"github.com/localkb/engine/internal/scanner"
)

// FilesystemType is the provider type tag for local directory trees.
const FilesystemType = "filesystem"

// FilesystemProvider is the reference provider: it walks a directory
// tree with the project scanner, honoring .gitignore and the
// collection's glob pattern. Item URIs are absolute file paths.
type FilesystemProvider struct {
	scanner *scanner.Scanner
}

var _ Provider = (*FilesystemProvider)(nil)

// NewFilesystemProvider builds the provider. If scanner construction
// fails, the provider starts without one and ListItems retries it,
// returning that error if it fails again.
func NewFilesystemProvider() *FilesystemProvider {
	s, err := scanner.New()
	if err != nil {
		return &FilesystemProvider{}
	}
	return &FilesystemProvider{scanner: s}
}

// ProviderType implements Provider.
func (p *FilesystemProvider) ProviderType() string { return FilesystemType }

// ListItems implements Provider: it streams the scanner and reads
// every matched file. Unreadable files are skipped.
func (p *FilesystemProvider) ListItems(ctx context.Context, cfg Config) ([]SourceItem, error) {
	if p.scanner == nil {
		s, err := scanner.New()
		if err != nil {
			return nil, err
		}
		p.scanner = s
	}

	opts := &scanner.ScanOptions{
		RootDir:          cfg.BasePath,
		RespectGitignore: true,
	}
	if cfg.Pattern != "" {
		opts.IncludePatterns = []string{cfg.Pattern}
	}
	if exclude, ok := cfg.Options["exclude"]; ok && exclude != "" {
		opts.ExcludePatterns = []string{exclude}
	}

	results, err := p.scanner.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var items []SourceItem
	for result := range results {
		if result.Error != nil || result.File == nil {
			continue
		}
		item, err := p.readItem(result.File.AbsPath, result.File.Path)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchItem implements Provider for an absolute file path URI.
func (p *FilesystemProvider) FetchItem(_ context.Context, uri string) (SourceItem, error) {
	info, err := os.Stat(uri)
	if err != nil || info.IsDir() {
		return SourceItem{}, NotFound(uri)
	}
	return p.readItem(uri, filepath.Base(uri))
}

func (p *FilesystemProvider) readItem(absPath, relPath string) (SourceItem, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return SourceItem{}, NotFound(absPath)
	}
	content := string(data)
	return SourceItem{
		URI:        absPath,
		Title:      filepath.Base(relPath),
		Content:    content,
		Hash:       HashContent(content),
		SourceType: FilesystemType,
		Metadata:   map[string]string{"path": relPath},
	}, nil
}

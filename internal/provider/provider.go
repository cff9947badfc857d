// Package provider defines the source-adapter contract: a provider
// enumerates and fetches the items of a collection (filesystem trees,
// CSV rows, JSON documents, database tables, remote repositories).
// Only the abstract contract and the reference filesystem provider
// live here; richer adapters plug in behind the same interface.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	kberrors "github.com/localkb/engine/internal/errors"
)

// SourceItem is one indexable unit produced by a provider.
type SourceItem struct {
	// URI identifies the item in the provider's own scheme
	// (a filesystem path, csv://file/row_3, sql://db/42, ...).
	URI string

	// Title is the human-readable name, typically the file name.
	Title string

	// Content is the canonical text representation; the hash is
	// computed over exactly this.
	Content string

	// Hash is the content digest; providers may leave it empty and
	// let HashContent fill it in.
	Hash string

	// SourceType names the provider that produced the item.
	SourceType string

	// Metadata carries provider-specific attributes (row numbers,
	// commit ids, MIME types).
	Metadata map[string]string
}

// Config configures one collection's provider instance.
type Config struct {
	// BasePath is the provider-specific root: a directory, a file, a
	// connection string.
	BasePath string

	// Pattern is a glob restricting which items are listed.
	Pattern string

	// Options carries provider-specific settings.
	Options map[string]string
}

// Provider is the abstract source-adapter contract.
type Provider interface {
	// ProviderType returns the stable type tag stored on collections.
	ProviderType() string

	// ListItems enumerates every indexable item under cfg.
	ListItems(ctx context.Context, cfg Config) ([]SourceItem, error)

	// FetchItem retrieves a single item by its URI.
	FetchItem(ctx context.Context, uri string) (SourceItem, error)
}

// HashContent computes the canonical content digest used for
// SourceItem.Hash and the content store.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NotFound builds the typed failure for a missing item.
func NotFound(uri string) error {
	return kberrors.DocumentNotFound("source item not found: " + uri)
}

// Registry maps provider type tags to constructors, so collections
// can be rehydrated from their stored provider_type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Provider)}
}

// Register adds a constructor for a provider type; later
// registrations replace earlier ones.
func (r *Registry) Register(providerType string, factory func() Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

// Get constructs a provider for the given type tag.
func (r *Registry) Get(providerType string) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[providerType]
	r.mu.RUnlock()
	if !ok {
		return nil, kberrors.InvalidInput("unknown provider type: "+providerType, nil)
	}
	return factory(), nil
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FilesystemType, func() Provider { return NewFilesystemProvider() })
	return r
}

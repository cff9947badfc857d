package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/localkb/engine/internal/provider"
	"github.com/localkb/engine/internal/store"
	"github.com/localkb/engine/internal/watcher"
)

// Coordinator applies file-watcher events to a filesystem-backed
// collection, keeping the index current without a full re-list.
type Coordinator struct {
	pipeline   *Pipeline
	collection store.Collection
	provider   provider.Provider
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewCoordinator binds a pipeline to one watched collection.
func NewCoordinator(pipeline *Pipeline, col store.Collection, prov provider.Provider) *Coordinator {
	return &Coordinator{
		pipeline:   pipeline,
		collection: col,
		provider:   prov,
		logger:     pipeline.Logger,
	}
}

// HandleEvents processes one debounced batch of file events. Failures
// on individual events are logged and skipped so one unreadable file
// cannot stall the watch loop.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, event := range events {
		if event.IsDir {
			continue
		}
		if err := c.handleEvent(ctx, event); err != nil {
			c.logger.Warn("failed to apply file event",
				slog.String("path", event.Path),
				slog.String("error", err.Error()))
			continue
		}
		changed++
	}

	if changed > 0 {
		if err := c.pipeline.DB.RebuildDirectoryIndex(c.collection.Name); err != nil {
			c.logger.Warn("directory index rebuild failed",
				slog.String("collection", c.collection.Name),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.reindexPath(ctx, event.Path)
	case watcher.OpDelete:
		_, err := c.pipeline.Deactivate(c.collection.Name, filepath.ToSlash(event.Path))
		return err
	case watcher.OpRename:
		if event.OldPath != "" {
			if _, err := c.pipeline.Deactivate(c.collection.Name, filepath.ToSlash(event.OldPath)); err != nil {
				return err
			}
		}
		return c.reindexPath(ctx, event.Path)
	}
	return nil
}

func (c *Coordinator) reindexPath(ctx context.Context, relPath string) error {
	abs := filepath.Join(c.collection.Path, relPath)
	item, err := c.provider.FetchItem(ctx, abs)
	if err != nil {
		// The file may be gone again already; treat as a delete.
		_, derr := c.pipeline.Deactivate(c.collection.Name, filepath.ToSlash(relPath))
		return derr
	}
	item.Metadata["path"] = filepath.ToSlash(relPath)
	_, err = c.pipeline.indexItem(ctx, c.collection, item, false)
	return err
}

package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/engine/internal/provider"
	"github.com/localkb/engine/internal/store"
	"github.com/localkb/engine/internal/watcher"
)

func coordinatorFixture(t *testing.T) (*Coordinator, *store.DB, string) {
	t.Helper()
	root := t.TempDir()
	pipeline, db := testPipeline(t)
	col := store.Collection{Name: "live", Path: root, ProviderType: provider.FilesystemType}
	coordinator := NewCoordinator(pipeline, col, provider.NewFilesystemProvider())
	return coordinator, db, root
}

func TestCoordinatorCreateAndModify(t *testing.T) {
	coordinator, db, root := coordinatorFixture(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("first draft"), 0o644))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "note.md", Operation: watcher.OpCreate},
	}))

	doc, err := db.FindActiveDocument("live", "note.md")
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("second draft"), 0o644))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "note.md", Operation: watcher.OpModify},
	}))

	doc, err = db.FindActiveDocument("live", "note.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, provider.HashContent("second draft"), doc.Hash)
}

func TestCoordinatorDelete(t *testing.T) {
	coordinator, db, root := coordinatorFixture(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.md"), []byte("soon removed"), 0o644))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "gone.md", Operation: watcher.OpCreate},
	}))
	require.NoError(t, os.Remove(filepath.Join(root, "gone.md")))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "gone.md", Operation: watcher.OpDelete},
	}))

	doc, err := db.FindActiveDocument("live", "gone.md")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestCoordinatorRename(t *testing.T) {
	coordinator, db, root := coordinatorFixture(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "old.md"), []byte("movable"), 0o644))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "old.md", Operation: watcher.OpCreate},
	}))
	require.NoError(t, os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "new.md")))
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "new.md", OldPath: "old.md", Operation: watcher.OpRename},
	}))

	old, err := db.FindActiveDocument("live", "old.md")
	require.NoError(t, err)
	assert.Nil(t, old)
	moved, err := db.FindActiveDocument("live", "new.md")
	require.NoError(t, err)
	assert.NotNil(t, moved)
}

func TestCoordinatorSkipsDirectoriesAndBadEvents(t *testing.T) {
	coordinator, _, _ := coordinatorFixture(t)
	ctx := context.Background()

	// Directory events and events for missing files are absorbed
	// without failing the batch.
	require.NoError(t, coordinator.HandleEvents(ctx, []watcher.FileEvent{
		{Path: "subdir", Operation: watcher.OpCreate, IsDir: true},
		{Path: "missing.md", Operation: watcher.OpModify},
	}))
}

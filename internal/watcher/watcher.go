// Package watcher observes a collection root for changes so the
// index coordinator can apply incremental updates instead of
// re-listing the whole collection. Raw fsnotify events are filtered
// through .gitignore rules and debounced into batches, since editors
// and git produce bursts of writes for a single logical change.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	kberrors "github.com/localkb/engine/internal/errors"
	"github.com/localkb/engine/internal/gitignore"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	// OpCreate reports a new file or directory.
	OpCreate Operation = iota
	// OpModify reports a content change.
	OpModify
	// OpDelete reports a removal.
	OpDelete
	// OpRename reports a move; OldPath carries the previous name when
	// it is known.
	OpRename
)

// String returns the operation's log tag.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change, with Path relative to the
// watched root.
type FileEvent struct {
	Path      string
	OldPath   string
	Operation Operation
	IsDir     bool
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces events per path; 0 uses the default.
	DebounceWindow time.Duration

	// RespectGitignore filters events through the root's .gitignore
	// rules.
	RespectGitignore bool
}

// DefaultDebounceWindow is long enough to merge editor save bursts
// without making index updates feel sluggish.
const DefaultDebounceWindow = 300 * time.Millisecond

// skippedDirs are never watched; they churn constantly and hold no
// collection content.
var skippedDirs = map[string]bool{
	".git":         true,
	".kbengine":    true,
	"node_modules": true,
}

// Watcher tails one collection root.
type Watcher struct {
	opts      Options
	root      string
	fsWatcher *fsnotify.Watcher
	ignore    *gitignore.Matcher
	debouncer *Debouncer

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// New builds a watcher; Start attaches it to a root.
func New(opts Options) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, kberrors.IOError("create filesystem watcher", err)
	}
	return &Watcher{
		opts:      opts,
		fsWatcher: fsw,
		ignore:    gitignore.New(),
		debouncer: NewDebouncer(opts.DebounceWindow),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching root and every directory beneath it. Events
// flow from Events() until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return kberrors.InvalidInput("watcher already started", nil)
	}
	w.started = true
	w.mu.Unlock()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return kberrors.IOError("resolve watch root", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return kberrors.IOError("stat watch root", err)
	}
	if !info.IsDir() {
		return kberrors.InvalidInput("watch root is not a directory: "+absRoot, nil)
	}
	w.root = absRoot

	if w.opts.RespectGitignore {
		_ = w.ignore.AddFile(filepath.Join(absRoot, ".gitignore"), "")
	}
	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Events returns debounced event batches. The channel closes when
// the watcher stops.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Batches()
}

// Stop detaches the watcher and closes the event channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	err := w.fsWatcher.Close()
	w.debouncer.Stop()
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if skippedDirs[d.Name()] {
			return fs.SkipDir
		}
		if rel := w.relPath(p); rel != "" && w.opts.RespectGitignore && w.ignore.Match(rel, true) {
			return fs.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			// fsnotify errors are transient (queue overflow); the
			// next full index reconciles anything missed.
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel := w.relPath(event.Name)
	if rel == "" || w.ignored(rel) {
		return
	}

	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	switch {
	case event.Op.Has(fsnotify.Create):
		if isDir {
			// New subtrees need their own watches.
			_ = w.addRecursive(event.Name)
		}
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, IsDir: isDir})
	case event.Op.Has(fsnotify.Write):
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpModify, IsDir: isDir})
	case event.Op.Has(fsnotify.Remove):
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpDelete})
	case event.Op.Has(fsnotify.Rename):
		// fsnotify reports the old name; the create at the new name
		// arrives as its own event, so surface this as a delete.
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpDelete})
	}
}

// ignored applies the directory skip list and gitignore rules to a
// relative path.
func (w *Watcher) ignored(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if skippedDirs[seg] {
			return true
		}
	}
	if w.opts.RespectGitignore && w.ignore.Match(rel, false) {
		return true
	}
	return false
}

func (w *Watcher) relPath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces events per path within a window before handing
// the coordinator one batch. Events for the same path merge:
//
//	CREATE then MODIFY -> CREATE (the file is still new)
//	CREATE then DELETE -> dropped (it never really existed)
//	MODIFY then DELETE -> DELETE
//	DELETE then CREATE -> MODIFY (the file was replaced)
type Debouncer struct {
	window  time.Duration
	batches chan []FileEvent

	mu      sync.Mutex
	pending map[string]FileEvent
	order   []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer builds a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		batches: make(chan []FileEvent, 16),
		pending: make(map[string]FileEvent),
	}
}

// Batches returns the output channel; one slice per flushed window.
func (d *Debouncer) Batches() <-chan []FileEvent {
	return d.batches
}

// Add enqueues an event, merging it with any pending event for the
// same path, and (re)arms the flush timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	prev, exists := d.pending[event.Path]
	if !exists {
		d.pending[event.Path] = event
		d.order = append(d.order, event.Path)
	} else {
		merged, keep := mergeEvents(prev, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
			for i, p := range d.order {
				if p == event.Path {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		}
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	} else {
		d.timer.Reset(d.window)
	}
}

// Stop flushes nothing further and closes the output channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.batches)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}
	batch := make([]FileEvent, 0, len(d.pending))
	for _, path := range d.order {
		if ev, ok := d.pending[path]; ok {
			batch = append(batch, ev)
		}
	}

	select {
	case d.batches <- batch:
		d.pending = make(map[string]FileEvent)
		d.order = nil
		d.timer = nil
	default:
		// The consumer is behind; keep the batch pending and retry
		// after another window.
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

// mergeEvents folds a new event into the pending one for the same
// path; keep=false drops the pair entirely.
func mergeEvents(prev, next FileEvent) (merged FileEvent, keep bool) {
	switch {
	case prev.Operation == OpCreate && next.Operation == OpModify:
		return prev, true
	case prev.Operation == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case prev.Operation == OpModify && next.Operation == OpDelete:
		return next, true
	case prev.Operation == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

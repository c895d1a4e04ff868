package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher reports inbox changes from fsnotify, or from a
// PollingWatcher where the platform has no notification support. Either
// way events pass through a Debouncer before reaching Events.
type HybridWatcher struct {
	opts    Options
	notify  *fsnotify.Watcher // nil in polling mode
	poller  *PollingWatcher   // nil in notify mode
	batcher *Debouncer

	root    string
	out     chan []FileEvent
	errs    chan error
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

var _ Source = (*HybridWatcher)(nil)

// New prefers fsnotify and drops to polling when it cannot be initialised
// or opts.ForcePolling is set.
func New(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	h := &HybridWatcher{
		opts:    opts,
		batcher: NewDebouncer(opts.Debounce, opts.EventBufferSize),
		out:     make(chan []FileEvent, opts.EventBufferSize),
		errs:    make(chan error, 10),
		done:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		n, err := fsnotify.NewWatcher()
		if err == nil {
			h.notify = n
			return h, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	h.poller = NewPollingWatcher(opts.PollInterval)
	return h, nil
}

func (h *HybridWatcher) UsesPolling() bool { return h.notify == nil }

// Start blocks watching root until ctx ends or Stop is called. root must be
// an existing directory.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil {
		return fmt.Errorf("stat watch dir: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("watch path %s is not a directory", abs)
	}
	h.root = abs

	go h.drainBatches(ctx)

	if h.notify == nil {
		go h.pump(ctx, h.poller.Events(), h.poller.Errors())
		err := h.poller.Start(ctx, h.root)
		if ctx.Err() != nil {
			_ = h.Stop()
		}
		return err
	}

	if err := h.watchTree(h.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	go h.pump(ctx, nil, h.notify.Errors)
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.done:
			return nil
		case ev, ok := <-h.notify.Events:
			if !ok {
				return nil
			}
			if fe, ok := h.translate(ev); ok {
				h.batcher.Add(fe)
			}
		}
	}
}

// translate maps an fsnotify event to a FileEvent relative to the root.
// Directory events are not reported; a created directory is added to the
// watch so its files are seen.
func (h *HybridWatcher) translate(ev fsnotify.Event) (FileEvent, bool) {
	rel, err := filepath.Rel(h.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if isHidden(rel) {
		return FileEvent{}, false
	}

	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			_ = h.notify.Add(ev.Name)
		}
		return FileEvent{}, false
	}

	fe := FileEvent{Path: rel, Timestamp: time.Now()}
	switch {
	case ev.Has(fsnotify.Create):
		fe.Operation = OpCreate
	case ev.Has(fsnotify.Write):
		fe.Operation = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		fe.Operation = OpDelete
	default:
		return FileEvent{}, false
	}
	return fe, true
}

// pump feeds polled events into the debouncer and forwards backend errors.
// events is nil in notify mode.
func (h *HybridWatcher) pump(ctx context.Context, events <-chan FileEvent, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !isHidden(ev.Path) {
				h.batcher.Add(ev)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			h.mu.Lock()
			if !h.closed {
				offer(h.errs, err)
			}
			h.mu.Unlock()
		}
	}
}

func (h *HybridWatcher) drainBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case batch, ok := <-h.batcher.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			h.mu.Lock()
			if !h.closed && !offer(h.out, batch) {
				n := h.dropped.Add(1)
				slog.Warn("watcher_events_dropped",
					slog.Int("batch_size", len(batch)),
					slog.Uint64("total_dropped", n))
			}
			h.mu.Unlock()
		}
	}
}

// offer is a non-blocking send.
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

func (h *HybridWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil, !d.IsDir():
			return nil
		case path != root && isHidden(d.Name()):
			return filepath.SkipDir
		}
		return h.notify.Add(path)
	})
}

// isHidden matches dot-prefixed entries and editor backups ending in "~"
// anywhere along relPath.
func isHidden(relPath string) bool {
	for part := range strings.SplitSeq(filepath.ToSlash(relPath), "/") {
		if part == "" || part == "." {
			continue
		}
		if part[0] == '.' || strings.HasSuffix(part, "~") {
			return true
		}
	}
	return false
}

// DroppedBatches counts batches discarded because Events was not drained.
func (h *HybridWatcher) DroppedBatches() uint64 { return h.dropped.Load() }

// Stop closes the backend and both output channels. Safe to call twice.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.done)
	h.batcher.Stop()

	var err error
	if h.notify != nil {
		err = h.notify.Close()
	}
	if h.poller != nil {
		_ = h.poller.Stop()
	}
	close(h.out)
	close(h.errs)
	return err
}

func (h *HybridWatcher) Events() <-chan []FileEvent { return h.out }
func (h *HybridWatcher) Errors() <-chan error       { return h.errs }

// Package watcher observes a drop directory and reports document
// changes as debounced batches. It backs `membank ingest --watch`,
// where files copied into the watched tree are ingested as they
// settle and editor save bursts must collapse into a single event.
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
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/membank-io/membank/internal/logging"
)

// Operation describes what happened to a file.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates file content changed.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file moved away from its watched path.
	OpRename
)

// String returns a human-readable operation name.
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

// FileEvent is a single document change, with Path relative to the
// watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before its
	// coalesced event is emitted.
	DebounceWindow time.Duration

	// EventBufferSize caps the batch output channel. When the consumer
	// falls behind, whole batches are dropped rather than blocking the
	// notify loop.
	EventBufferSize int

	// Extensions lists the file suffixes that count as documents,
	// lowercase with the leading dot. Empty means the default set.
	Extensions []string
}

// DefaultOptions returns options tuned for a drop directory of
// markdown and plain-text notes.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		EventBufferSize: 64,
		Extensions:      []string{".md", ".markdown", ".txt", ".text"},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = def.Extensions
	}
	return o
}

// Watcher streams debounced document changes from a directory tree.
// Subdirectories created while watching are picked up automatically.
type Watcher struct {
	opts Options
	log  *slog.Logger

	fsw *fsnotify.Watcher
	deb *Debouncer

	root   string
	exts   map[string]struct{}
	events chan []FileEvent
	errs   chan error

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// New builds a Watcher. Call Start to begin observing a directory.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Watcher{
		opts:   opts,
		log:    logging.Component(logger, "watcher"),
		fsw:    fsw,
		deb:    NewDebouncer(opts.DebounceWindow),
		exts:   exts,
		events: make(chan []FileEvent, opts.EventBufferSize),
		errs:   make(chan error, 8),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins watching root and returns once the initial watches are
// registered. Events flow until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", abs)
	}
	w.root = abs

	if err := w.addRecursive(abs); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.translate(ctx)
	go w.forward(ctx)

	w.log.Info("watching drop directory",
		slog.String("root", abs),
		slog.Duration("debounce", w.opts.DebounceWindow))
	return nil
}

// Stop halts the watcher and closes its channels. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsw.Close()
		w.wg.Wait()
		w.deb.Stop()
		close(w.events)
		close(w.errs)
	})
}

// Events returns the batch channel. Each batch holds the coalesced
// changes from one quiet period.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of watch failures.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Dropped reports how many batches were discarded because the
// consumer fell behind.
func (w *Watcher) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// translate converts raw fsnotify events into FileEvents and feeds
// the debouncer.
func (w *Watcher) translate(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}

	// Stat fails for deletes and renames; the entry is already gone.
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.ignored(rel) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// New subtrees must be watched before files land in them.
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
			return
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		// Chmod and other noise.
		return
	}

	if isDir || !w.isDocument(rel) {
		return
	}

	w.deb.Add(FileEvent{
		Path:      rel,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// forward moves debounced batches to the output channel without ever
// blocking on a slow consumer.
func (w *Watcher) forward(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.deb.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case w.events <- batch:
			default:
				w.mu.Lock()
				w.dropped++
				n := w.dropped
				w.mu.Unlock()
				w.log.Warn("dropped event batch, consumer too slow",
					slog.Int("batch_size", len(batch)),
					slog.Int("total_dropped", n))
			}
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// addRecursive registers root and every subdirectory beneath it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && w.ignored(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch %s: %w", path, addErr)
		}
		return nil
	})
}

// ignored reports whether any component of the relative path is
// hidden. Editor swap files and VCS metadata all live under dot
// prefixes.
func (w *Watcher) ignored(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (w *Watcher) isDocument(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	_, ok := w.exts[ext]
	return ok
}

// Package watch turns a drop folder into an ingestion source. New or
// modified tabular files are debounced and published as ingestion jobs;
// ingestion is idempotent by content hash, so re-publishing the same file
// is harmless.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/surisearch/suri-search/internal/bus"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// defaultBatchDelay coalesces editor save bursts into one job per file.
const defaultBatchDelay = 2 * time.Second

// ingestibleExtensions lists the file kinds the analyzer can parse.
var ingestibleExtensions = map[string]bool{
	".csv":   true,
	".tsv":   true,
	".txt":   true,
	".json":  true,
	".jsonl": true,
}

// Config configures the watcher.
type Config struct {
	// Dir is the drop folder to watch, recursively.
	Dir string

	// SchemaSlug pins every published job to a schema. Empty lets the
	// registry match per document.
	SchemaSlug string

	// Partition is the default partition for identifier-less chunks.
	Partition string

	// BatchDelay is the debounce window before a changed file is
	// published. Defaults to 2s.
	BatchDelay time.Duration

	// InitialSync publishes every eligible file already in the folder
	// on startup.
	InitialSync bool
}

// Watcher publishes ingestion jobs for files dropped into a folder.
type Watcher struct {
	cfg        Config
	dispatcher bus.Dispatcher
	log        *logger.Logger

	pendingMu  sync.Mutex
	pending    map[string]struct{}
	batchTimer *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over the configured drop folder.
func New(cfg Config, dispatcher bus.Dispatcher, log *logger.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, apperrors.ValidationError("watch dir cannot be empty")
	}
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, apperrors.ValidationError("invalid watch dir: " + err.Error())
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, apperrors.ValidationError("watch dir is not a directory: " + abs)
	}
	cfg.Dir = abs
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = defaultBatchDelay
	}

	return &Watcher{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start watches until the context is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cfg.InitialSync {
		if err := w.syncExisting(ctx); err != nil {
			return err
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.InternalError("creating fs watcher", err)
	}
	defer fsWatcher.Close()

	err = filepath.WalkDir(w.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("walk error", "path", path, "error", err)
			return filepath.SkipDir
		}
		if d.IsDir() {
			return fsWatcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return apperrors.InternalError("registering watch dirs", err)
	}

	w.log.Info("watching drop folder", "dir", w.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, fsWatcher)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("fs watcher error")
		}
	}
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) handleEvent(event fsnotify.Event, fsWatcher *fsnotify.Watcher) {
	// New subdirectories join the watch set.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = fsWatcher.Add(event.Name)
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !eligible(event.Name) {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[event.Name] = struct{}{}
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.batchTimer = time.AfterFunc(w.cfg.BatchDelay, w.publishPending)
}

func (w *Watcher) publishPending() {
	w.pendingMu.Lock()
	files := make([]string, 0, len(w.pending))
	for path := range w.pending {
		files = append(files, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, path := range files {
		if err := w.publishFile(ctx, path); err != nil {
			w.log.WithError(err).Warn("failed to publish file", "path", path)
		}
	}
}

func (w *Watcher) publishFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between the event and the batch. Nothing to do.
			return nil
		}
		return apperrors.InternalError("reading dropped file", err)
	}
	if len(content) == 0 {
		return nil
	}

	job := bus.NewJob("document", "watch", filepath.Base(path), content)
	job.SchemaSlug = w.cfg.SchemaSlug
	job.Partition = w.cfg.Partition

	if err := w.dispatcher.Publish(ctx, bus.TopicDocumentProcess, job); err != nil {
		return err
	}

	w.log.Info("published dropped document", "file", filepath.Base(path), "job_id", job.ID)
	return nil
}

// syncExisting publishes every eligible file already present.
func (w *Watcher) syncExisting(ctx context.Context) error {
	return filepath.WalkDir(w.cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !eligible(path) {
			return nil
		}
		if err := w.publishFile(ctx, path); err != nil {
			w.log.WithError(err).Warn("failed to publish existing file", "path", path)
		}
		return nil
	})
}

// eligible reports whether the file looks like ingestible tabular data.
// Hidden files and editor temp files are skipped.
func eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return ingestibleExtensions[strings.ToLower(filepath.Ext(base))]
}

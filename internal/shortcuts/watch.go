package shortcuts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts into a single reload.
const reloadDebounce = 150 * time.Millisecond

// Watcher reloads an overlay file into a Source when it changes on disk.
// A file that fails to parse leaves the previous table in place.
type Watcher struct {
	path   string
	src    *Source
	logger *slog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	onReload []func(*Table)
}

// NewWatcher returns a Watcher for the overlay at path.
func NewWatcher(path string, src *Source, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:   path,
		src:    src,
		logger: logger,
	}
}

// OnReload registers a callback invoked after each successful reload.
// Must be called before Start.
func (w *Watcher) OnReload(fn func(*Table)) {
	w.onReload = append(w.onReload, fn)
}

// Start begins watching. The parent directory is watched so that editors
// replacing the file by rename are seen.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.watcher = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx, fw)
	return nil
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fw, cancel, done := w.watcher, w.cancel, w.done
	w.watcher = nil
	w.mu.Unlock()

	if fw == nil {
		return nil
	}
	cancel()
	err := fw.Close()
	<-done
	return err
}

// Reload re-reads the overlay and publishes the merged table.
func (w *Watcher) Reload() error {
	t, err := Load(w.path)
	if err != nil {
		return err
	}
	w.src.Store(t)
	for _, fn := range w.onReload {
		fn(t)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := w.Reload(); err != nil {
					w.logger.Warn("shortcut reload failed; keeping previous table", "path", w.path, "error", err)
					return
				}
				w.logger.Info("shortcuts reloaded", "path", w.path, "count", w.src.Table().Len())
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("shortcut watcher error", "error", err)
		}
	}
}

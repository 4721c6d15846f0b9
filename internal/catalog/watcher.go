package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/pkg/log"
)

// WatcherConfig holds configuration for a catalog Watcher.
type WatcherConfig struct {
	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 200 milliseconds
	DebounceDelay time.Duration
}

// Watcher reloads the catalog when its file changes. Editors often write a
// file in several steps, so reloads are debounced. A catalog that fails to
// load is logged and ignored; the previous one stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   log.Logger
	onChange func(*domain.Catalog)

	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatcher creates a watcher for the catalog at path. onChange receives
// every successfully reloaded catalog.
func NewWatcher(path string, cfg WatcherConfig, logger log.Logger, onChange func(*domain.Catalog)) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Watcher{
		path:     path,
		debounce: cfg.DebounceDelay,
		logger:   logger,
		onChange: onChange,
	}
}

// Run watches until ctx is canceled. The parent directory is watched so
// that atomic rename-over saves are seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("watching zone catalog", log.String("path", w.path))

	target := filepath.Clean(w.path)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		if w.timer.Stop() {
			w.wg.Done()
		}
	}
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	catalog, err := Load(w.path)
	if err != nil {
		w.logger.Warn("zone catalog reload failed, keeping previous catalog",
			log.String("path", w.path),
			log.Err(err),
		)
		return
	}
	w.logger.Info("zone catalog reloaded",
		log.String("path", w.path),
		log.Int("zones", catalog.Len()),
	)
	w.onChange(catalog)
}

// stop cancels a pending reload and waits for a running one.
func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

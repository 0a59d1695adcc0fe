// Package index provides dataset watching for automatic re-indexing.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/tablerag/pkg/types"
)

// Reindexer rebuilds the collection from the dataset.
type Reindexer interface {
	ForceReindex(ctx context.Context) (*types.CollectionInfo, error)
}

// Watcher watches the dataset file and triggers re-indexing after it changes.
type Watcher struct {
	path      string
	reindexer Reindexer
	onReindex func(*types.CollectionInfo, error)

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingSince time.Time
	debounceTime time.Duration
	lastHash     string
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	DatasetPath  string
	Reindexer    Reindexer
	OnReindex    func(*types.CollectionInfo, error)
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new dataset watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	path, err := filepath.Abs(cfg.DatasetPath)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:         path,
		reindexer:    cfg.Reindexer,
		onReindex:    cfg.OnReindex,
		watcher:      watcher,
		debounceTime: debounceTime,
	}
	w.lastHash, _ = fileHash(path)
	return w, nil
}

// Watch starts watching the dataset.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	// Editors often replace the file, so watch its directory.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	slog.Info("watching dataset for changes", "path", w.path)

	// Start debounce processor
	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent records a change of the dataset file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if filepath.Clean(event.Name) != w.path {
		return
	}

	w.pendingMu.Lock()
	w.pendingSince = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("dataset changed", "path", event.Name, "op", event.Op.String())
}

// processDebounced re-indexes once the dataset has been stable for the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	tick := w.debounceTime / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.due() {
				w.reindex(ctx)
			}
		}
	}
}

func (w *Watcher) due() bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.pendingSince.IsZero() || time.Since(w.pendingSince) < w.debounceTime {
		return false
	}
	w.pendingSince = time.Time{}
	return true
}

// reindex rebuilds the collection unless the dataset content is unchanged.
func (w *Watcher) reindex(ctx context.Context) {
	hash, err := fileHash(w.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("dataset removed, keeping current index", "path", w.path)
		return
	}
	if err != nil {
		slog.Warn("failed to read dataset", "path", w.path, "error", err)
		return
	}
	if hash == w.lastHash {
		slog.Debug("dataset content unchanged", "path", w.path)
		return
	}

	slog.Info("re-indexing changed dataset", "path", w.path)
	info, err := w.reindexer.ForceReindex(ctx)
	if err == nil {
		w.lastHash = hash
		slog.Info("re-indexed dataset", "info", info.String())
	}
	if w.onReindex != nil {
		w.onReindex(info, err)
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

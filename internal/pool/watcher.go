package pool

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// OnSwap is called after the watcher successfully reloads and publishes a
// new pool.
type OnSwap func(p *Pool)

// Watcher monitors the agents document and refreshes the registry when it
// changes. A reload that fails validation is logged and dropped; the
// running pool stays as it was, same as an explicit refresh.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	registry  *Registry
	filePath  string
	callbacks []OnSwap
	mu        sync.Mutex
	done      chan struct{}
}

// WatchDocument starts watching the registry's agents document. The parent
// directory is watched rather than the file so that atomic saves
// (write tmp + rename) are caught.
func WatchDocument(registry *Registry) (*Watcher, error) {
	absPath, err := filepath.Abs(registry.Path())
	if err != nil {
		return nil, fmt.Errorf("pool watcher: resolving path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pool watcher: creating fsnotify watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("pool watcher: watching directory %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		registry:  registry,
		filePath:  absPath,
		done:      make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

// OnChange registers a callback invoked with each successfully published
// pool.
func (w *Watcher) OnChange(fn OnSwap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	// Same debounce as the config watcher: one save can fire several
	// filesystem events.
	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.refresh)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("agents watcher error")
		}
	}
}

func (w *Watcher) refresh() {
	p, err := w.registry.Reload()
	if err != nil {
		log.Warn().Err(err).Str("file", w.filePath).Msg("agents document reload failed; keeping previous pool")
		return
	}

	h := p.Health()
	log.Info().
		Str("file", w.filePath).
		Int("agents", h.AgentsLoaded).
		Int("active_models", h.ActiveModels).
		Msg("agent pool refreshed from document change")

	w.mu.Lock()
	cbs := make([]OnSwap, len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	for _, cb := range cbs {
		cb(p)
	}
}

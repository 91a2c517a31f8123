// Package watcher reports changes to a single file, such as the pages file
// backing the route table.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called with the watched path once changes settle.
type ChangeHandler func(path string)

// Config contains watcher configuration
type Config struct {
	// Debounce is the quiet period after the last change before the handler
	// runs. Editors often write a file in several steps.
	Debounce time.Duration
	// PollInterval is used when polling instead of fsnotify.
	PollInterval time.Duration
	// Poll skips fsnotify and compares mtime and size on a ticker.
	Poll bool
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		Debounce:     250 * time.Millisecond,
		PollInterval: 2 * time.Second,
	}
}

// Mode names how a running Watcher detects changes.
type Mode string

const (
	ModeNotify Mode = "notify"
	ModePoll   Mode = "poll"
)

// Watcher watches one file and calls its handler after each settled change.
type Watcher struct {
	path      string
	config    Config
	logger    *slog.Logger
	handler   ChangeHandler
	debouncer *Debouncer

	mu     sync.Mutex
	mode   Mode
	last   fileState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

// New creates a watcher for path. Nothing is observed until Start.
func New(path string, config Config, logger *slog.Logger, handler ChangeHandler) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{
		path:      filepath.Clean(path),
		config:    config,
		logger:    logger,
		handler:   handler,
		debouncer: NewDebouncer(config.Debounce),
	}
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Mode reports the detection mode; empty before Start.
func (w *Watcher) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Start begins watching until ctx is done or Stop is called. It prefers
// fsnotify on the parent directory, so atomic renames are seen, and falls
// back to polling when that is unavailable.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return errors.New("watcher already started")
	}
	w.last = stat(w.path)
	ctx, w.cancel = context.WithCancel(ctx)

	if !w.config.Poll {
		fw, err := w.newNotifier()
		if err == nil {
			w.mode = ModeNotify
			w.wg.Add(1)
			go w.notifyLoop(ctx, fw)
			w.logger.Info("watching file", "path", w.path, "mode", w.mode)
			return nil
		}
		w.logger.Warn("fsnotify unavailable, polling instead", "path", w.path, "error", err)
	}

	w.mode = ModePoll
	w.wg.Add(1)
	go w.pollLoop(ctx)
	w.logger.Info("watching file", "path", w.path, "mode", w.mode, "interval", w.config.PollInterval)
	return nil
}

// Stop stops watching and discards a pending handler call.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.debouncer.Cancel()
}

func (w *Watcher) newNotifier() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}

func (w *Watcher) notifyLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer func() { _ = fw.Close() }()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("file event", "path", w.path, "op", ev.Op.String())
			w.changed()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "path", w.path, "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkFile()
		case <-ctx.Done():
			return
		}
	}
}

// checkFile compares the file against the last observed state.
func (w *Watcher) checkFile() {
	current := stat(w.path)

	w.mu.Lock()
	changed := current != w.last
	w.last = current
	w.mu.Unlock()

	if changed {
		w.changed()
	}
}

func (w *Watcher) changed() {
	w.debouncer.Trigger(func() {
		w.logger.Debug("file changed", "path", w.path)
		if w.handler != nil {
			w.handler(w.path)
		}
	})
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

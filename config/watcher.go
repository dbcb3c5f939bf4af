package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchEvent describes a reload of a watched config file.
type WatchEvent struct {
	Path    string
	OldHash string
	NewHash string
	File    *File
	Time    time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce sets the debounce duration for file change events.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher reloads a config file when its content changes and hands the
// parsed document to a callback. It watches the containing directory so
// editors that save by renaming over the file are picked up too. A burst of
// events is collapsed into one reload once the file has been quiet for the
// debounce period.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(WatchEvent)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	lastHash  string
}

// NewWatcher creates a Watcher for path. onChange runs on the watcher
// goroutine, only for content that parsed and validated.
func NewWatcher(path string, onChange func(WatchEvent), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the watched file, cleaned.
func (w *Watcher) Path() string { return w.path }

// Start records the current content hash and begins watching.
func (w *Watcher) Start() error {
	hash, err := hashFile(w.path)
	if err != nil {
		return fmt.Errorf("config watcher: initial hash: %w", err)
	}
	w.lastHash = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: create fsnotify: %w", err)
	}
	if dir := filepath.Dir(w.path); fsw.Add(dir) != nil {
		_ = fsw.Close()
		return fmt.Errorf("config watcher: cannot watch %s", dir)
	}
	w.fsWatcher = fsw

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine to
// exit. Calling Stop more than once is a no-op.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

// loop restarts the debounce timer on every relevant event and reloads when
// it fires.
func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "path", w.path, "err", err)
		case <-timer.C:
			w.processChange()
		}
	}
}

func (w *Watcher) processChange() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("config watcher: failed to read config", "path", w.path, "err", err)
		return
	}
	newHash := hashBytes(data)
	if newHash == w.lastHash {
		w.logger.Debug("config watcher: content unchanged, skipping", "path", w.path)
		return
	}

	f, err := Load(data)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		w.logger.Error("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	oldHash := w.lastHash
	w.lastHash = newHash
	w.logger.Info("config changed", "path", w.path, "old_hash", oldHash[:8], "new_hash", newHash[:8])

	w.onChange(WatchEvent{
		Path:    w.path,
		OldHash: oldHash,
		NewHash: newHash,
		File:    f,
		Time:    time.Now(),
	})
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ChangeCallback is called once a burst of changes under the store settles.
type ChangeCallback func(path string) error

// Watcher monitors a LocalStore directory and reports script changes.
type Watcher struct {
	watcher            *fsnotify.Watcher
	root               string
	extension          string
	stabilityThreshold time.Duration
	onChange           ChangeCallback
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Root               string
	Extension          string
	StabilityThreshold time.Duration
	OnChange           ChangeCallback
}

// NewWatcher creates a new store watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		root:               config.Root,
		extension:          config.Extension,
		stabilityThreshold: config.StabilityThreshold,
		onChange:           config.OnChange,
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start starts watching the store directory
func (w *Watcher) Start() error {
	if err := w.addDirectoryRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch store: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("path", w.root).
		Msg("Store watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Store watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if shouldIgnore(event.Name) {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
			return
		}
	}

	// deletions of directories arrive without an extension
	if w.extension != "" && filepath.Ext(event.Name) != w.extension &&
		event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.debounceEvent(event)
}

// debounceEvent collapses a burst of events into one callback per store.
func (w *Watcher) debounceEvent(event fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[w.root]; exists {
		timer.Stop()
	}

	name := event.Name
	w.debounceTimers[w.root] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, w.root)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
			w.notify(name)
		}
	})
}

func (w *Watcher) notify(path string) {
	if w.onChange == nil {
		return
	}
	if err := w.onChange(path); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Error handling store change")
	}
}

func (w *Watcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if walkPath != path && shouldIgnore(walkPath) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(walkPath); err != nil {
			log.Warn().
				Err(err).
				Str("path", walkPath).
				Msg("Failed to watch path")
		}

		return nil
	})
}

// shouldIgnore skips dotfiles and editor swap files
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	return strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Watcher reloads the tunables section of the YAML file when it changes.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.RWMutex
	current  Tunables
	onChange map[int]func(Tunables)
	nextID   int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher starts from initial and watches path for edits.
func NewWatcher(path string, initial Tunables, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors often save by rename, so watch the directory too
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     path,
		watcher:  fw,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		current:  initial,
		onChange: make(map[int]func(Tunables)),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

// Current returns the tunables in effect
func (w *Watcher) Current() Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback for reloaded tunables. The returned func
// removes it.
func (w *Watcher) OnChange(handler func(Tunables)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.onChange[id] = handler
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.onChange, id)
	}
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer
	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := readTunables(w.path, w.Current())
	if err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = next
	handlers := make([]func(Tunables), 0, len(w.onChange))
	for _, h := range w.onChange {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	if old == next {
		return
	}
	w.logger.Info("Tunables reloaded",
		zap.Duration("saveContent", next.SaveContent),
		zap.Duration("saveIdle", next.SaveIdle),
		zap.Duration("throttleInterval", next.ThrottleInterval),
		zap.Int("maxRoomSize", next.MaxRoomSize))
	for _, h := range handlers {
		h(next)
	}
}

// readTunables parses the tunables section of path on top of base
func readTunables(path string, base Tunables) (Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	doc := struct {
		Tunables Tunables `yaml:"tunables"`
	}{Tunables: base}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return base, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := validate.Struct(doc.Tunables); err != nil {
		return base, fmt.Errorf("invalid tunables: %w", err)
	}
	return doc.Tunables, nil
}

// TunablesSource yields the tunables currently in effect
type TunablesSource interface {
	Current() Tunables
	// OnChange registers a reload callback and returns its removal
	OnChange(handler func(Tunables)) func()
}

// StaticTunables is a TunablesSource that never changes
type StaticTunables Tunables

// Current implements TunablesSource
func (s StaticTunables) Current() Tunables { return Tunables(s) }

// OnChange implements TunablesSource. Static tunables never reload.
func (s StaticTunables) OnChange(func(Tunables)) func() { return func() {} }

var (
	_ TunablesSource = (*Watcher)(nil)
	_ TunablesSource = StaticTunables{}
)

// Package skeleton loads the template skeleton compiled documents start from.
//
// The skeleton is read once at startup and optionally reloaded when the file
// changes. Readers always get a private clone of the current snapshot; the
// snapshot itself is swapped atomically and never mutated.
package skeleton

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Loader holds the current template skeleton.
type Loader struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	current  atomic.Pointer[document.Object]

	// OnReload is called after every reload attempt, successful or not.
	OnReload func(error)
}

// NewLoader creates a loader for path and performs the initial load.
// An empty path yields a loader whose skeleton is the empty object.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, debounce: DefaultDebounce, logger: logger}
	if path == "" {
		l.current.Store(document.NewObject())
		return l, nil
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the watched file, empty for a static loader.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the skeleton file and swaps it in. On error the previous
// snapshot stays in place.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read skeleton: %w", err)
	}
	if len(data) > types.MaxDocumentSize {
		return fmt.Errorf("skeleton %s: %w", l.path, types.ErrDocumentTooLarge)
	}
	obj, err := document.Decode(data)
	if err != nil {
		return fmt.Errorf("decode skeleton %s: %w", l.path, err)
	}
	l.current.Store(obj)
	return nil
}

// Current returns a clone of the current skeleton.
func (l *Loader) Current() *document.Object {
	return l.current.Load().Clone()
}

// Watch reloads the skeleton on file changes until ctx is cancelled.
// The parent directory is watched so atomic rename-on-save is seen.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.path, err)
	}
	l.logger.Info("skeleton watcher started", "path", l.path, "debounce_ms", l.debounce.Milliseconds())

	target := filepath.Clean(l.path)
	var (
		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
		running sync.WaitGroup
	)
	// No reload starts after Watch returns, and one in flight is waited for.
	defer func() {
		mu.Lock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		running.Wait()
	}()
	reload := func() {
		mu.Lock()
		if stopped || ctx.Err() != nil {
			mu.Unlock()
			return
		}
		running.Add(1)
		mu.Unlock()
		defer running.Done()
		l.reload()
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("skeleton watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			l.logger.Error("skeleton watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	err := l.Load()
	if err != nil {
		l.logger.Error("skeleton reload failed", "path", l.path, "error", err)
	} else {
		l.logger.Info("skeleton reloaded", "path", l.path)
	}
	if l.OnReload != nil {
		l.OnReload(err)
	}
}

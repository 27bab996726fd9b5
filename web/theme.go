package web

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/deepresearch/domstyle"
)

// reloadDebounce collapses editor save bursts into one reload.
const reloadDebounce = 200 * time.Millisecond

// Theme holds the active style registry and an optional CSS overlay. Both
// are reloaded from disk when their files change.
type Theme struct {
	themePath string
	cssPath   string
	logger    *slog.Logger

	mu      sync.RWMutex
	reg     *domstyle.Registry
	overlay string

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// NewTheme loads the theme. Empty paths mean the default registry and no
// overlay.
func NewTheme(themePath, cssPath string, logger *slog.Logger) (*Theme, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Theme{themePath: themePath, cssPath: cssPath, logger: logger}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Registry returns the current registry.
func (t *Theme) Registry() *domstyle.Registry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reg
}

// Stylesheet is the registry's baseline stylesheet followed by the overlay.
func (t *Theme) Stylesheet() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.overlay == "" {
		return t.reg.Stylesheet()
	}
	return t.reg.Stylesheet() + "\n" + t.overlay + "\n"
}

// Reload re-reads both files. On error the previous theme stays active.
func (t *Theme) Reload() error {
	reg := domstyle.DefaultRegistry()
	if t.themePath != "" {
		r, err := domstyle.LoadRegistry(t.themePath)
		if err != nil {
			return err
		}
		reg = r
	}
	var overlay string
	if t.cssPath != "" {
		data, err := os.ReadFile(t.cssPath)
		if err != nil {
			return fmt.Errorf("web: read theme css: %w", err)
		}
		overlay = string(data)
	}
	t.mu.Lock()
	t.reg, t.overlay = reg, overlay
	t.mu.Unlock()
	return nil
}

// Watch reloads the theme whenever one of its files is written or
// recreated, until ctx ends. It is a no-op without theme files.
func (t *Theme) Watch(ctx context.Context) error {
	files := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range []string{t.themePath, t.cssPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("web: theme path: %w", err)
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(files) == 0 {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("web: theme watcher: %w", err)
	}
	// Watching directories survives editors that replace files on save.
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return fmt.Errorf("web: watch %s: %w", d, err)
		}
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !files[filepath.Clean(ev.Name)] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t.reloadDebounced()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.logger.Warn("web: theme watcher", "error", err)
			}
		}
	}()
	t.logger.Info("web: watching theme", "files", len(files))
	return nil
}

func (t *Theme) reloadDebounced() {
	t.debounceMu.Lock()
	defer t.debounceMu.Unlock()
	if t.debounce != nil {
		t.debounce.Stop()
	}
	t.debounce = time.AfterFunc(reloadDebounce, func() {
		if err := t.Reload(); err != nil {
			t.logger.Warn("web: theme reload failed", "error", err)
			return
		}
		t.logger.Info("web: theme reloaded", "palette", t.Registry().Palette().Name)
	})
}

// Package restyle keeps external dashboard pages styled. It opens each
// configured page in Chrome and runs a domstyle.Runner against it for as
// long as the daemon lives.
package restyle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/domstyle/roddom"
	"github.com/hazyhaar/deepresearch/restyle/internal/browser"
	"github.com/hazyhaar/deepresearch/restyle/internal/config"
)

// Config re-exports the YAML configuration type.
type Config = config.Config

// PageConfig re-exports one page entry.
type PageConfig = config.PageConfig

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) { return config.LoadFile(path) }

// backend opens the trees the daemon styles. The Chrome implementation is
// chromeBackend; tests substitute in-memory documents.
type backend interface {
	Start(ctx context.Context) error
	// OnRecycle registers fn to run after every tab has been lost.
	OnRecycle(fn func())
	Open(ctx context.Context, pc PageConfig, logger *slog.Logger) (domstyle.Tree, func() error, error)
	Close() error
}

type chromeBackend struct {
	mgr *browser.Manager
}

func (b chromeBackend) Start(ctx context.Context) error {
	_, err := b.mgr.Start(ctx)
	return err
}

func (b chromeBackend) OnRecycle(fn func()) {
	b.mgr.OnRecycle(func(*rod.Browser) { fn() })
}

func (b chromeBackend) Open(ctx context.Context, pc PageConfig, logger *slog.Logger) (domstyle.Tree, func() error, error) {
	page, err := b.mgr.OpenPage(ctx, pc.URL)
	if err != nil {
		return nil, nil, err
	}
	return roddom.New(page, roddom.WithMount(pc.Mount), roddom.WithLogger(logger)), page.Close, nil
}

func (b chromeBackend) Close() error { return b.mgr.Close() }

// Daemon owns the browser and one runner per page.
type Daemon struct {
	cfg      *Config
	registry *domstyle.Registry
	backend  backend
	logger   *slog.Logger

	mu    sync.Mutex
	pages map[string]*attached
}

type attached struct {
	cfg    PageConfig
	close  func() error
	runner *domstyle.Runner
}

// New creates a Daemon. A nil registry means domstyle.DefaultRegistry().
func New(cfg *Config, reg *domstyle.Registry, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headless:        cfg.Browser.HeadlessOrDefault(),
		RecycleInterval: cfg.Browser.RecycleInterval,
		BlockResources:  cfg.Browser.BlockResources,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Logger:          logger,
	})
	return newDaemon(cfg, reg, chromeBackend{mgr: mgr}, logger)
}

func newDaemon(cfg *Config, reg *domstyle.Registry, b backend, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = domstyle.DefaultRegistry()
	}
	return &Daemon{
		cfg:      cfg,
		registry: reg,
		backend:  b,
		logger:   logger,
		pages:    make(map[string]*attached),
	}
}

// Start launches Chrome and attaches every configured page. A page that
// fails to attach is logged and skipped.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.backend.Start(ctx); err != nil {
		return fmt.Errorf("restyle: start browser: %w", err)
	}
	d.backend.OnRecycle(func() { d.reattach(ctx) })

	for _, p := range d.cfg.Pages {
		if err := d.Attach(ctx, p); err != nil {
			d.logger.Error("restyle: attach failed", "page", p.ID, "url", p.URL, "error", err)
		}
	}
	return nil
}

// Attach opens a page and starts its runner.
func (d *Daemon) Attach(ctx context.Context, pc PageConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attachLocked(ctx, pc)
}

func (d *Daemon) attachLocked(ctx context.Context, pc PageConfig) error {
	if _, ok := d.pages[pc.ID]; ok {
		return fmt.Errorf("restyle: page %s already attached", pc.ID)
	}
	log := d.logger.With("page", pc.ID)
	tree, closeTab, err := d.backend.Open(ctx, pc, log)
	if err != nil {
		return err
	}
	runner, err := domstyle.NewRunner(domstyle.Config{
		Registry:     d.registry,
		Tree:         tree,
		PollInterval: pc.PollInterval,
		Logger:       log,
	})
	if err != nil {
		closeTab()
		return err
	}
	if err := runner.Start(ctx); err != nil {
		closeTab()
		return fmt.Errorf("restyle: start runner: %w", err)
	}
	d.pages[pc.ID] = &attached{cfg: pc, close: closeTab, runner: runner}
	log.Info("restyle: page attached", "url", pc.URL)
	return nil
}

// Detach stops a page's runner and closes its tab.
func (d *Daemon) Detach(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked(id)
}

func (d *Daemon) detachLocked(id string) {
	a, ok := d.pages[id]
	if !ok {
		return
	}
	a.runner.Stop()
	if err := a.close(); err != nil {
		d.logger.Debug("restyle: close tab", "page", id, "error", err)
	}
	delete(d.pages, id)
}

// Pages returns the IDs of attached pages, sorted.
func (d *Daemon) Pages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.pages))
	for id := range d.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop detaches every page and closes Chrome.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	for id := range d.pages {
		d.detachLocked(id)
	}
	d.mu.Unlock()
	return d.backend.Close()
}

// reattach runs after a Chrome recycle: the old tabs are gone, so every
// runner is stopped and its page reopened.
func (d *Daemon) reattach(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cfgs []PageConfig
	for id, a := range d.pages {
		a.runner.Stop()
		delete(d.pages, id)
		cfgs = append(cfgs, a.cfg)
	}
	for _, pc := range cfgs {
		if err := d.attachLocked(ctx, pc); err != nil {
			d.logger.Error("restyle: reattach failed", "page", pc.ID, "error", err)
		}
	}
}

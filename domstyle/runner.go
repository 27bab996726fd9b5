package domstyle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the safety-net interval between polling passes.
const DefaultPollInterval = 500 * time.Millisecond

// Config configures a Runner.
type Config struct {
	Registry *Registry
	Tree     Tree

	// PollInterval between fallback passes. Default: DefaultPollInterval.
	PollInterval time.Duration

	// OnPass, if set, is called on the runner goroutine after every pass.
	OnPass func(PassStats)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Registry == nil {
		c.Registry = DefaultRegistry()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runner drives a Reconciler from mutation notifications and a polling
// ticker. Both producers post into a single-slot trigger channel; one
// consumer goroutine runs the passes, so passes never overlap.
type Runner struct {
	cfg Config
	rec *Reconciler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	trigger chan struct{}
	passes  atomic.Uint64
}

// NewRunner validates cfg and returns a stopped Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Tree == nil {
		return nil, errors.New("domstyle: runner needs a tree")
	}
	cfg.defaults()
	return &Runner{
		cfg:     cfg,
		rec:     NewReconciler(cfg.Registry, cfg.Tree, cfg.Logger),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Start runs an initial pass synchronously, then starts the producers and
// the consumer. It returns an error if the runner is already running or the
// tree refuses a watch subscription. Without a Watchable tree, only polling
// drives passes.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("domstyle: runner already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	var events <-chan struct{}
	if w, ok := r.cfg.Tree.(Watchable); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			cancel()
			return err
		}
		events = ch
	}

	r.runPass(ctx)

	r.cancel = cancel
	r.running = true

	r.wg.Add(2)
	go r.consume(ctx)
	go r.poll(ctx)
	if events != nil {
		r.wg.Add(1)
		go r.watch(ctx, events)
	}

	r.cfg.Logger.Info("domstyle: runner started",
		"rules", len(r.cfg.Registry.rules),
		"poll_interval", r.cfg.PollInterval,
		"watch", events != nil)
	return nil
}

// Stop tears down both producers and the consumer and waits for them. A
// pass in progress finishes first; a pending trigger is dropped. Stop on a
// stopped runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()

	// Drain so a restart does not inherit a stale trigger.
	select {
	case <-r.trigger:
	default:
	}
	r.cfg.Logger.Info("domstyle: runner stopped", "passes", r.passes.Load())
}

// Trigger schedules a pass. Calls made while one is already pending
// coalesce into it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Passes returns how many passes have completed since construction.
func (r *Runner) Passes() uint64 { return r.passes.Load() }

func (r *Runner) consume(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			r.runPass(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Trigger()
		}
	}
}

func (r *Runner) watch(ctx context.Context, events <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				r.cfg.Logger.Debug("domstyle: watch channel closed, polling only")
				return
			}
			r.Trigger()
		}
	}
}

func (r *Runner) runPass(ctx context.Context) {
	st := r.rec.Pass(ctx)
	r.passes.Add(1)
	r.cfg.Logger.Debug("domstyle: pass",
		"matched", st.Matched,
		"written", st.Written,
		"failures", st.Failures,
		"duration", st.Duration)
	if r.cfg.OnPass != nil {
		r.cfg.OnPass(st)
	}
}

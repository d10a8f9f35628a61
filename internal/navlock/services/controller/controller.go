// Package controller drives recompute cycles: it loads settings, compiles the
// allow-list and hands the rule set to the reconciler, once on startup and
// again after every settings change.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/common/metrics"
	"github.com/haukened/navlock/internal/navlock/common/utils"
	"github.com/haukened/navlock/internal/navlock/domain"
	"github.com/haukened/navlock/internal/navlock/services/allowlist"
	"github.com/haukened/navlock/internal/navlock/services/compiler"
	"github.com/haukened/navlock/internal/navlock/services/reconciler"
)

// SettingsSource provides the persisted settings and reports changes to them.
type SettingsSource interface {
	Load() (domain.Settings, error)
	Watch(ctx context.Context, onChange func()) error
}

// Reconciler installs a rule set and returns the state for the next call.
type Reconciler interface {
	Reconcile(ctx context.Context, prev reconciler.State, set domain.RuleSet, debug bool) (reconciler.State, error)
}

// Metrics receives per-cycle counters. *metrics.Metrics satisfies it.
type Metrics interface {
	ObserveReconcile(outcome string)
	AddDropped(n int)
	SetAllowList(entries, sites int)
}

// Options configures a Controller. Source and Reconciler are required.
type Options struct {
	Source     SettingsSource
	Reconciler Reconciler
	Logger     log.Logger
	Metrics    Metrics
	// Initial is the reconcile state to start from. The zero value is untracked.
	Initial reconciler.State
}

// Controller is the single writer to the matching engine. Triggers arriving
// while a cycle runs collapse into one follow-up cycle.
type Controller struct {
	source     SettingsSource
	reconciler Reconciler
	normalizer *allowlist.Normalizer
	logger     log.Logger
	metrics    Metrics
	trigger    chan struct{}

	mu    sync.Mutex
	state reconciler.State
}

// New constructs a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Source == nil || opts.Reconciler == nil {
		return nil, fmt.Errorf("controller: settings source and reconciler are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Controller{
		source:     opts.Source,
		reconciler: opts.Reconciler,
		normalizer: allowlist.NewNormalizer(logger),
		logger:     logger,
		metrics:    opts.Metrics,
		trigger:    make(chan struct{}, 1),
		state:      opts.Initial,
	}, nil
}

// Trigger requests a cycle without blocking. A pending request absorbs new ones.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// State returns the reconcile state after the most recent cycle.
func (c *Controller) State() reconciler.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run performs the startup cycle, subscribes to settings changes, and then
// runs one cycle per trigger until ctx is done. Cycle errors are logged and
// never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.Trigger()
	if err := c.source.Watch(ctx, c.Trigger); err != nil {
		c.logger.Warn(map[string]any{"error": err.Error()}, "settings_watch_unavailable")
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info(nil, "controller_stopped")
			return nil
		case <-c.trigger:
			_ = c.Cycle(ctx)
		}
	}
}

// Cycle runs one full recompute: load, validate, compile, reconcile.
func (c *Controller) Cycle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings, err := c.source.Load()
	if err != nil {
		c.logger.Error(map[string]any{"error": err.Error()}, "settings_load_failed")
		c.observe(metrics.OutcomeAborted)
		return fmt.Errorf("load settings: %w", err)
	}

	entries := c.normalizer.Normalize(settings.AllowedList)
	// invalid entries plus duplicates merged into a later one
	dropped := len(settings.AllowedList) - len(entries)

	set, err := compiler.Assemble(entries)
	if err != nil {
		c.logger.Error(map[string]any{"error": err.Error(), "entries": len(entries)}, "compile_failed")
		c.observe(metrics.OutcomeAborted)
		return fmt.Errorf("compile allow-list: %w", err)
	}

	hosts := make([]string, 0, len(entries))
	for _, e := range entries {
		hosts = append(hosts, e.Domain)
	}
	sites := utils.CountSites(hosts)
	c.logger.Debug(map[string]any{
		"entries": len(entries),
		"dropped": dropped,
		"sites":   sites,
		"rules":   len(set.Rules),
	}, "allowlist_compiled")
	if c.metrics != nil {
		c.metrics.AddDropped(dropped)
		c.metrics.SetAllowList(len(entries), sites)
	}

	state, err := c.reconciler.Reconcile(ctx, c.state, set, settings.Debug)
	c.state = state
	return err
}

func (c *Controller) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveReconcile(outcome)
	}
}

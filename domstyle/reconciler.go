package domstyle

import (
	"context"
	"log/slog"
	"time"
)

// PassStats summarises one reconciliation pass. It is informational only.
type PassStats struct {
	Rules    int
	Matched  int
	Written  int
	Failures int
	Duration time.Duration
}

// Reconciler applies a Registry to a Tree. It keeps no state between passes.
type Reconciler struct {
	registry        *Registry
	tree            Tree
	logger          *slog.Logger
	stylesheetHover bool
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithStylesheetHover leaves hover to the :hover rules of
// Registry.Stylesheet. Properties a rule's Hover overrides are not written
// inline and no hover binding is installed. Trees that are serialised and
// served next to the stylesheet need this: an inline !important value
// outranks a stylesheet :hover rule.
func WithStylesheetHover() ReconcilerOption {
	return func(r *Reconciler) { r.stylesheetHover = true }
}

// NewReconciler returns a Reconciler. A nil logger means slog.Default().
func NewReconciler(reg *Registry, tree Tree, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{registry: reg, tree: tree, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Pass sweeps every rule over the current tree. Each rule's matches are
// re-derived from scratch, so a pass never depends on an earlier one having
// completed. Failures are counted and logged; they never abort the pass.
func (r *Reconciler) Pass(ctx context.Context) PassStats {
	start := time.Now()
	var st PassStats
	hb, _ := r.tree.(HoverBinder)
	if r.stylesheetHover {
		hb = nil
	}

	for _, rule := range r.registry.rules {
		if ctx.Err() != nil {
			break
		}
		st.Rules++

		nodes, err := r.tree.QueryAll(ctx, rule.Selector)
		if err != nil {
			st.Failures++
			r.logger.Debug("domstyle: query failed", "role", rule.Role, "selector", rule.Selector.String(), "error", err)
			continue
		}
		st.Matched += len(nodes)

		base := rule.Properties
		if r.stylesheetHover && rule.Hover != nil {
			base = base.Without(rule.Hover)
		}
		for _, n := range nodes {
			props := base
			if rule.Hover != nil && hb != nil {
				if err := hb.BindHover(ctx, n, rule.Properties, rule.Hover); err != nil {
					st.Failures++
					r.logger.Debug("domstyle: bind hover failed", "role", rule.Role, "error", err)
				} else if hb.Hovered(ctx, n) {
					props = base.Merge(rule.Hover)
				}
			}
			if err := r.tree.SetStyle(ctx, n, props); err != nil {
				st.Failures++
				r.logger.Debug("domstyle: set style failed", "role", rule.Role, "error", err)
				continue
			}
			st.Written++
		}
	}

	st.Duration = time.Since(start)
	return st
}

// Package roddom is a domstyle.Tree backed by a live Chrome page driven
// through go-rod.
//
// Structural changes are reported by an injected MutationObserver that calls
// a CDP binding; writes use inline "!important" styles so they beat the host
// framework's stylesheets.
package roddom

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/deepresearch/domstyle"
)

// BindingName is the CDP binding the injected observer calls.
const BindingName = "__domstyle_binding"

const observerJS = `(name, mount) => {
	if (window.__domstyleObserver) return false;
	const root = document.querySelector(mount) || document.body || document.documentElement;
	let queued = false;
	const obs = new MutationObserver(() => {
		if (queued) return;
		queued = true;
		queueMicrotask(() => { queued = false; if (window[name]) window[name]("mutation"); });
	});
	obs.observe(root, {childList: true, subtree: true});
	window.__domstyleObserver = obs;
	return true;
}`

const setStyleJS = `function (props) {
	for (const [k, v] of Object.entries(props)) this.style.setProperty(k, v, "important");
}`

const bindHoverJS = `function (base, hover) {
	const el = this;
	el.__domstyleBase = base;
	el.__domstyleHover = hover;
	if (el.__domstyleBound) return;
	el.__domstyleBound = true;
	const apply = (p) => { for (const [k, v] of Object.entries(p)) el.style.setProperty(k, v, "important"); };
	el.addEventListener("pointerenter", () => { el.__domstyleHovered = true; apply(el.__domstyleHover); });
	el.addEventListener("pointerleave", () => { el.__domstyleHovered = false; apply(el.__domstyleBase); });
}`

const hoveredJS = `function () { return !!this.__domstyleHovered; }`

// Page adapts a rod page to domstyle.Tree, domstyle.Watchable and
// domstyle.HoverBinder.
type Page struct {
	page   *rod.Page
	mount  string
	logger *slog.Logger
	inject func(context.Context) error
}

// Option customises a Page.
type Option func(*Page)

// WithMount sets the selector of the subtree the observer watches.
// Default: "body".
func WithMount(sel string) Option { return func(p *Page) { p.mount = sel } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(p *Page) { p.logger = l } }

// New wraps page.
func New(page *rod.Page, opts ...Option) *Page {
	p := &Page{page: page, mount: "body", logger: slog.Default()}
	p.inject = p.injectObserver
	for _, o := range opts {
		o(p)
	}
	return p
}

// QueryAll runs querySelectorAll with the selector's CSS text.
func (p *Page) QueryAll(ctx context.Context, sel domstyle.Selector) ([]domstyle.Node, error) {
	els, err := p.page.Context(ctx).Elements(sel.String())
	if err != nil {
		return nil, fmt.Errorf("roddom: query %s: %w", sel, err)
	}
	out := make([]domstyle.Node, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

// SetStyle writes props as important inline declarations.
func (p *Page) SetStyle(ctx context.Context, n domstyle.Node, props domstyle.Properties) error {
	el, err := asElement(n)
	if err != nil {
		return err
	}
	if _, err := el.Context(ctx).Eval(setStyleJS, map[string]string(props)); err != nil {
		return fmt.Errorf("roddom: set style: %w", err)
	}
	return nil
}

// BindHover installs pointerenter/pointerleave listeners once per element
// and refreshes the property sets on every call.
func (p *Page) BindHover(ctx context.Context, n domstyle.Node, base, hover domstyle.Properties) error {
	el, err := asElement(n)
	if err != nil {
		return err
	}
	if _, err := el.Context(ctx).Eval(bindHoverJS, map[string]string(base), map[string]string(hover)); err != nil {
		return fmt.Errorf("roddom: bind hover: %w", err)
	}
	return nil
}

// Hovered reports whether the pointer is over n. Errors read as false.
func (p *Page) Hovered(ctx context.Context, n domstyle.Node) bool {
	el, err := asElement(n)
	if err != nil {
		return false
	}
	res, err := el.Context(ctx).Eval(hoveredJS)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// Watch registers the CDP binding, injects the MutationObserver and relays
// binding calls until ctx ends. A full navigation or reload discards the
// observer with the old document; it is injected again on every load event
// and the load itself counts as a mutation.
func (p *Page) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(p.page); err != nil {
		p.logger.Warn("roddom: addBinding failed (may already exist)", "error", err)
	}
	if err := (proto.PageEnable{}).Call(p.page); err != nil {
		p.logger.Warn("roddom: page events unavailable, reloads fall back to polling", "error", err)
	}

	ch := make(chan struct{}, 1)
	notify := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == BindingName {
				notify()
			}
		},
		func(*proto.PageLoadEventFired) { p.reloaded(ctx, notify) },
	)
	go func() {
		wait()
		close(ch)
	}()

	if err := p.inject(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// reloaded runs on every load event. Event handlers must not block on CDP
// round trips, so the injection runs on its own goroutine.
func (p *Page) reloaded(ctx context.Context, notify func()) {
	go func() {
		if err := p.inject(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("roddom: reinject observer", "error", err)
		}
	}()
	notify()
}

func (p *Page) injectObserver(ctx context.Context) error {
	res, err := p.page.Context(ctx).Eval(observerJS, BindingName, p.mount)
	if err != nil {
		return fmt.Errorf("roddom: inject observer: %w", err)
	}
	p.logger.Debug("roddom: observer injected", "mount", p.mount, "fresh", res.Value.Bool())
	return nil
}

func asElement(n domstyle.Node) (*rod.Element, error) {
	el, ok := n.(*rod.Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("roddom: foreign node %T", n)
	}
	return el, nil
}

// Package memdom is an in-memory domstyle.Tree over golang.org/x/net/html.
//
// It emits a watch notification on every structural change made through
// AppendHTML or Remove, and simulates pointer enter and leave for hover
// bindings. The web server also uses it to style pages before serving them.
package memdom

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/deepresearch/domstyle"
)

// Document is a mutable HTML tree. All methods are safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	watchers []chan struct{}
	hover    map[*html.Node]*hoverBinding
}

type hoverBinding struct {
	base   domstyle.Properties
	over   domstyle.Properties
	active bool
}

// Parse builds a Document from HTML.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Document{root: root, hover: make(map[*html.Node]*hoverBinding)}, nil
}

// ParseString is Parse on a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// New returns an empty document with html, head and body elements.
func New() *Document {
	d, _ := ParseString("<!DOCTYPE html><html><head></head><body></body></html>")
	return d
}

// QueryAll returns every element matching sel, in document order.
func (d *Document) QueryAll(ctx context.Context, sel domstyle.Selector) ([]domstyle.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []domstyle.Node
	walk(d.root, func(n *html.Node) {
		if sel.Match(element{n}) {
			out = append(out, n)
		}
	})
	return out, nil
}

// First returns the first element matching sel, or nil.
func (d *Document) First(sel string) domstyle.Node {
	nodes, err := d.QueryAll(context.Background(), domstyle.MustParse(sel))
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Body returns the body element.
func (d *Document) Body() domstyle.Node {
	return d.First("body")
}

// SetStyle writes props into the node's inline style attribute. Existing
// declarations keep their position; conflicting values are overwritten and
// new ones appended.
func (d *Document) SetStyle(ctx context.Context, n domstyle.Node, props domstyle.Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hn, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	setStyleLocked(hn, props)
	return nil
}

// Style returns the node's inline style declarations without "!important".
func (d *Document) Style(n domstyle.Node) domstyle.Properties {
	hn, err := asNode(n)
	if err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(domstyle.Properties)
	for _, decl := range parseStyle(attr(hn, "style")) {
		out[decl.prop] = decl.value
	}
	return out
}

// Attr returns an attribute of n.
func (d *Document) Attr(n domstyle.Node, key string) string {
	hn, err := asNode(n)
	if err != nil {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return attr(hn, key)
}

// Watch subscribes to structural change notifications.
func (d *Document) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.watchers = append(d.watchers, ch)
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, w := range d.watchers {
			if w == ch {
				d.watchers = append(d.watchers[:i], d.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (d *Document) notifyLocked() {
	for _, w := range d.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes as its last children. It returns the appended top-level
// element nodes.
func (d *Document) AppendHTML(parent domstyle.Node, fragment string) ([]domstyle.Node, error) {
	pn, err := asNode(parent)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ctxNode := &html.Node{Type: html.ElementNode, Data: pn.Data, DataAtom: pn.DataAtom}
	if ctxNode.DataAtom == 0 {
		ctxNode.Data, ctxNode.DataAtom = "div", atom.Div
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse fragment: %w", err)
	}
	var out []domstyle.Node
	for _, n := range nodes {
		pn.AppendChild(n)
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	d.notifyLocked()
	return out, nil
}

// Remove detaches n from the tree.
func (d *Document) Remove(n domstyle.Node) error {
	hn, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if hn.Parent == nil {
		return fmt.Errorf("memdom: node is detached")
	}
	hn.Parent.RemoveChild(hn)
	delete(d.hover, hn)
	d.notifyLocked()
	return nil
}

// BindHover records the base and hover property sets for n.
func (d *Document) BindHover(ctx context.Context, n domstyle.Node, base, hover domstyle.Properties) error {
	hn, err := asNode(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.hover[hn]
	if !ok {
		b = &hoverBinding{}
		d.hover[hn] = b
	}
	b.base, b.over = base.Clone(), hover.Clone()
	return nil
}

// Hovered reports whether the pointer is over n.
func (d *Document) Hovered(ctx context.Context, n domstyle.Node) bool {
	hn, err := asNode(n)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.hover[hn]
	return ok && b.active
}

// PointerEnter simulates the pointer entering n. Bound hover properties are
// applied immediately.
func (d *Document) PointerEnter(n domstyle.Node) {
	d.pointer(n, true)
}

// PointerLeave simulates the pointer leaving n; base properties are restored.
func (d *Document) PointerLeave(n domstyle.Node) {
	d.pointer(n, false)
}

func (d *Document) pointer(n domstyle.Node, enter bool) {
	hn, err := asNode(n)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.hover[hn]
	if !ok {
		return
	}
	b.active = enter
	if enter {
		setStyleLocked(hn, b.over)
	} else {
		setStyleLocked(hn, b.base)
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, or returns an empty string on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Fingerprint hashes the tree structure: node types, tags, text and every
// attribute except style. Two documents with equal fingerprints differ at
// most in inline styles.
func (d *Document) Fingerprint() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, _ := blake2b.New256(nil)
	var rec func(n *html.Node, depth int)
	rec = func(n *html.Node, depth int) {
		fmt.Fprintf(h, "%d|%d|%s|", depth, n.Type, n.Data)
		for _, a := range n.Attr {
			if a.Key == "style" {
				continue
			}
			fmt.Fprintf(h, "%s=%s;", a.Key, a.Val)
		}
		h.Write([]byte{'\n'})
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c, depth+1)
		}
	}
	rec(d.root, 0)
	return hex.EncodeToString(h.Sum(nil))
}

func asNode(n domstyle.Node) (*html.Node, error) {
	hn, ok := n.(*html.Node)
	if !ok || hn == nil {
		return nil, fmt.Errorf("memdom: foreign node %T", n)
	}
	return hn, nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// element adapts *html.Node to domstyle.Element.
type element struct{ n *html.Node }

func (e element) Tag() string { return e.n.Data }

func (e element) Attr(key string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (e element) Parent() domstyle.Element {
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return element{p}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

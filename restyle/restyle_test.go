package restyle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/domstyle/memdom"
)

const dashboard = `<html><body><div class="stChatInputContainer"><textarea></textarea><button>go</button></div></body></html>`

// memBackend opens in-memory documents instead of Chrome tabs.
type memBackend struct {
	mu        sync.Mutex
	docs      map[string]*memdom.Document
	opens     map[string]int
	closes    map[string]int
	recycle   func()
	closed    bool
	failPaths []string
}

func newMemBackend() *memBackend {
	return &memBackend{
		docs:   make(map[string]*memdom.Document),
		opens:  make(map[string]int),
		closes: make(map[string]int),
	}
}

func (b *memBackend) Start(context.Context) error { return nil }

func (b *memBackend) OnRecycle(fn func()) { b.recycle = fn }

func (b *memBackend) Open(_ context.Context, pc PageConfig, _ *slog.Logger) (domstyle.Tree, func() error, error) {
	for _, p := range b.failPaths {
		if strings.HasSuffix(pc.URL, p) {
			return nil, nil, errors.New("navigation failed")
		}
	}
	doc, err := memdom.ParseString(dashboard)
	if err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[pc.ID] = doc
	b.opens[pc.ID]++
	return doc, func() error {
		b.mu.Lock()
		b.closes[pc.ID]++
		b.mu.Unlock()
		return nil
	}, nil
}

func (b *memBackend) Close() error {
	b.closed = true
	return nil
}

func (b *memBackend) doc(id string) *memdom.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.docs[id]
}

func pages(ids ...string) *Config {
	cfg := &Config{}
	for _, id := range ids {
		cfg.Pages = append(cfg.Pages, PageConfig{ID: id, URL: "http://dash.local/" + id, Mount: "body", PollInterval: time.Hour})
	}
	return cfg
}

func styled(t *testing.T, doc *memdom.Document) {
	t.Helper()
	if doc == nil {
		t.Fatal("page never opened")
	}
	if doc.Style(doc.First(".stChatInputContainer"))["background-color"] == "" {
		t.Fatal("page not styled after attach")
	}
}

func TestDaemon_StartAndStop(t *testing.T) {
	b := newMemBackend()
	d := newDaemon(pages("a", "b"), nil, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(d.Pages(), ","); got != "a,b" {
		t.Fatalf("pages = %s", got)
	}
	styled(t, b.doc("a"))
	styled(t, b.doc("b"))

	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}
	if len(d.Pages()) != 0 || !b.closed {
		t.Fatalf("after stop: pages=%v backend closed=%v", d.Pages(), b.closed)
	}
	if b.closes["a"] != 1 || b.closes["b"] != 1 {
		t.Fatalf("closes = %v", b.closes)
	}
}

func TestDaemon_FailedPageSkipped(t *testing.T) {
	b := newMemBackend()
	b.failPaths = []string{"/broken"}
	d := newDaemon(pages("ok", "broken"), nil, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()
	if got := strings.Join(d.Pages(), ","); got != "ok" {
		t.Fatalf("pages = %s", got)
	}
}

func TestDaemon_AttachRefusesDuplicate(t *testing.T) {
	b := newMemBackend()
	d := newDaemon(pages("a"), nil, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()
	if err := d.Attach(context.Background(), d.cfg.Pages[0]); err == nil {
		t.Fatal("duplicate attach accepted")
	}
	if b.opens["a"] != 1 {
		t.Fatalf("opens = %d", b.opens["a"])
	}
}

func TestDaemon_Detach(t *testing.T) {
	b := newMemBackend()
	d := newDaemon(pages("a", "b"), nil, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	d.Detach("a")
	d.Detach("missing")
	if got := strings.Join(d.Pages(), ","); got != "b" {
		t.Fatalf("pages = %s", got)
	}
	if b.closes["a"] != 1 {
		t.Fatalf("tab a closed %d times", b.closes["a"])
	}
}

func TestDaemon_ReattachAfterRecycle(t *testing.T) {
	b := newMemBackend()
	d := newDaemon(pages("a", "b"), nil, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()
	first := b.doc("a")

	b.recycle()

	if b.opens["a"] != 2 || b.opens["b"] != 2 {
		t.Fatalf("opens = %v", b.opens)
	}
	if b.closes["a"] != 0 {
		t.Fatal("recycled tab closed again")
	}
	if b.doc("a") == first {
		t.Fatal("page not reopened")
	}
	styled(t, b.doc("a"))
	if got := strings.Join(d.Pages(), ","); got != "a,b" {
		t.Fatalf("pages = %s", got)
	}
}

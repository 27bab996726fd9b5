package memdom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/deepresearch/domstyle"
)

func TestHover_EnterLeave(t *testing.T) {
	d, err := ParseString(`<div class="stChatInputContainer"><button>go</button></div>`)
	if err != nil {
		t.Fatal(err)
	}
	reg := domstyle.DefaultRegistry()
	domstyle.NewReconciler(reg, d, nil).Pass(context.Background())

	btn := d.First(".stChatInputContainer button")
	if got := d.Style(btn)["background-color"]; got != "#7f5af0" {
		t.Fatalf("base background = %q", got)
	}

	d.PointerEnter(btn)
	if got := d.Style(btn)["background-color"]; got != "#6a48d7" {
		t.Fatalf("hover background = %q, want #6a48d7", got)
	}
	if !d.Hovered(context.Background(), btn) {
		t.Fatal("Hovered = false after enter")
	}

	d.PointerLeave(btn)
	if got := d.Style(btn)["background-color"]; got != "#7f5af0" {
		t.Fatalf("after leave background = %q, want #7f5af0", got)
	}
}

func TestPointer_UnboundNodeIgnored(t *testing.T) {
	d, _ := ParseString(`<p>x</p>`)
	p := d.First("p")
	d.PointerEnter(p)
	if d.Attr(p, "style") != "" {
		t.Fatal("pointer on unbound node wrote a style")
	}
}

func TestWatch_NotifiesOnStructure(t *testing.T) {
	d := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	nodes, err := d.AppendHTML(d.Body(), `<div class="a"></div><div class="b"></div>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("appended %d element nodes, want 2", len(nodes))
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after append")
	}

	// Style writes are not structural.
	d.SetStyle(context.Background(), nodes[0], domstyle.Properties{"color": "red"})
	select {
	case <-ch:
		t.Fatal("notification after style write")
	default:
	}

	if err := d.Remove(nodes[1]); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after remove")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestRemove_Detached(t *testing.T) {
	d := New()
	nodes, _ := d.AppendHTML(d.Body(), `<i></i>`)
	if err := d.Remove(nodes[0]); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(nodes[0]); err == nil {
		t.Fatal("second Remove: expected error")
	}
}

func TestSetStyle_ForeignNode(t *testing.T) {
	d := New()
	if err := d.SetStyle(context.Background(), "not a node", nil); err == nil {
		t.Fatal("expected error for foreign node")
	}
}

func TestSetStyle_MergesAndOverwrites(t *testing.T) {
	d, _ := ParseString(`<p style="color: red; background: url('a;b.png'); margin: 0">x</p>`)
	p := d.First("p")
	d.SetStyle(context.Background(), p, domstyle.Properties{"color": "blue", "padding": "1px"})

	got := d.Style(p)
	want := domstyle.Properties{"color": "blue", "background": "url('a;b.png')", "margin": "0", "padding": "1px"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	style := d.Attr(p, "style")
	if !strings.HasPrefix(style, "color: blue !important;") {
		t.Fatalf("existing declaration order lost: %q", style)
	}
}

func TestFingerprint_IgnoresStyle(t *testing.T) {
	d, _ := ParseString(`<div><span>a</span></div>`)
	before := d.Fingerprint()
	d.SetStyle(context.Background(), d.First("span"), domstyle.Properties{"color": "red"})
	if d.Fingerprint() != before {
		t.Fatal("style write changed the fingerprint")
	}
	d.AppendHTML(d.First("div"), "<b></b>")
	if d.Fingerprint() == before {
		t.Fatal("append did not change the fingerprint")
	}
}

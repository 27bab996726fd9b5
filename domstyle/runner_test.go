package domstyle_test

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/domstyle/memdom"
)

const userAvatar = `<div data-testid="stChatMessageAvatar" data-avatar-for-user="true"></div>`

// pollOnly hides memdom's Watch so only the ticker drives passes.
type pollOnly struct{ d *memdom.Document }

func (p pollOnly) QueryAll(ctx context.Context, s domstyle.Selector) ([]domstyle.Node, error) {
	return p.d.QueryAll(ctx, s)
}

func (p pollOnly) SetStyle(ctx context.Context, n domstyle.Node, props domstyle.Properties) error {
	return p.d.SetStyle(ctx, n, props)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRunner_InitialPass(t *testing.T) {
	d := mustDoc(t, fixture)
	r, err := domstyle.NewRunner(domstyle.Config{Tree: d, PollInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if r.Passes() != 1 {
		t.Fatalf("passes after Start = %d, want 1", r.Passes())
	}
	if got := d.Style(d.First(".stChatMessage"))["border-radius"]; got != "0.75rem" {
		t.Fatalf("initial pass not applied: border-radius = %q", got)
	}
}

func TestRunner_ConvergesAfterMutation(t *testing.T) {
	d := memdom.New()
	r, _ := domstyle.NewRunner(domstyle.Config{Tree: d, PollInterval: time.Hour})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	nodes, err := d.AppendHTML(d.Body(), userAvatar)
	if err != nil || len(nodes) != 1 {
		t.Fatalf("append: %v (%d nodes)", err, len(nodes))
	}
	waitFor(t, 2*time.Second, func() bool {
		return d.Style(nodes[0])["background-color"] == "#ffd803"
	})
}

func TestRunner_ConvergesByPollingAlone(t *testing.T) {
	d := memdom.New()
	r, _ := domstyle.NewRunner(domstyle.Config{Tree: pollOnly{d}, PollInterval: 20 * time.Millisecond})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	nodes, _ := d.AppendHTML(d.Body(), userAvatar)
	waitFor(t, 2*time.Second, func() bool {
		return d.Style(nodes[0])["background-color"] == "#ffd803"
	})
}

func TestRunner_DefaultPollInterval(t *testing.T) {
	if domstyle.DefaultPollInterval != 500*time.Millisecond {
		t.Fatalf("DefaultPollInterval = %v", domstyle.DefaultPollInterval)
	}
}

func TestRunner_StartStop(t *testing.T) {
	d := memdom.New()
	r, _ := domstyle.NewRunner(domstyle.Config{Tree: d, PollInterval: 10 * time.Millisecond})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("second Start: expected error")
	}
	r.Stop()
	r.Stop()

	n := r.Passes()
	time.Sleep(50 * time.Millisecond)
	if r.Passes() != n {
		t.Fatalf("passes kept running after Stop: %d -> %d", n, r.Passes())
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	r.Stop()
}

func TestRunner_ParentContextStops(t *testing.T) {
	d := memdom.New()
	ctx, cancel := context.WithCancel(context.Background())
	r, _ := domstyle.NewRunner(domstyle.Config{Tree: d, PollInterval: 10 * time.Millisecond})
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	time.Sleep(30 * time.Millisecond)
	n := r.Passes()
	time.Sleep(50 * time.Millisecond)
	if r.Passes() != n {
		t.Fatal("passes continued after parent context cancel")
	}
	r.Stop()
}

func TestRunner_PassesNeverOverlap(t *testing.T) {
	d := mustDoc(t, fixture)
	inFlight := make(chan struct{}, 1)
	overlap := false
	r, _ := domstyle.NewRunner(domstyle.Config{
		Tree:         d,
		PollInterval: time.Millisecond,
		OnPass: func(domstyle.PassStats) {
			select {
			case inFlight <- struct{}{}:
			default:
				overlap = true
			}
			time.Sleep(time.Millisecond)
			<-inFlight
		},
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		d.AppendHTML(d.Body(), "<span></span>")
		r.Trigger()
	}
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	if overlap {
		t.Fatal("two passes ran concurrently")
	}
}

func TestNewRunner_NeedsTree(t *testing.T) {
	if _, err := domstyle.NewRunner(domstyle.Config{}); err == nil {
		t.Fatal("expected error without a tree")
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/deepresearch/dbopen"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *clock) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(db, WithClock(clk.now)), clk
}

type payload struct {
	Query string   `json:"query"`
	URLs  []string `json:"urls"`
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	in := payload{Query: "fusion power", URLs: []string{"https://a.org", "https://b.edu"}}
	if err := c.Set(ctx, "fusion power", News, in); err != nil {
		t.Fatal(err)
	}
	var out payload
	ok, err := c.Get(ctx, "fusion power", &out)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if out.Query != in.Query || len(out.URLs) != 2 {
		t.Fatalf("got %+v", out)
	}

	ok, err = c.Get(ctx, "other", &out)
	if err != nil || ok {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
}

func TestExpiryByKind(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "news", News, "n")
	c.Set(ctx, "paper", Academic, "a")
	c.Set(ctx, "other", Kind("bogus"), "h")

	clk.t = clk.t.Add(4 * day)
	var s string
	if ok, _ := c.Get(ctx, "news", &s); ok {
		t.Fatal("news entry still valid after 4 days")
	}
	if ok, _ := c.Get(ctx, "paper", &s); !ok {
		t.Fatal("academic entry expired after 4 days")
	}

	clk.t = clk.t.Add(100 * day)
	if ok, _ := c.Get(ctx, "paper", &s); ok {
		t.Fatal("academic entry valid after 104 days")
	}
	if ok, _ := c.Get(ctx, "other", &s); !ok || s != "h" {
		t.Fatal("unknown kind should live as long as historical")
	}

	if n, _ := c.Len(ctx); n != 1 {
		t.Fatalf("expired entries not removed on read: %d left", n)
	}
}

func TestExpiry(t *testing.T) {
	if Expiry(News) != 3*day || Expiry(Academic) != 90*day || Expiry("x") != 360*day {
		t.Fatal("unexpected expirations")
	}
}

func TestInvalidateClearPurge(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "a", News, 1)
	c.Set(ctx, "b", News, 2)
	c.Set(ctx, "c", Historical, 3)

	if err := c.Invalidate(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	var v int
	if ok, _ := c.Get(ctx, "a", &v); ok {
		t.Fatal("invalidated entry returned")
	}

	clk.t = clk.t.Add(5 * day)
	n, err := c.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Purge = %d, %v; want 1", n, err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Fatalf("Len after Clear = %d", n)
	}
}

func TestSetOverwrites(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", News, "old")
	c.Set(ctx, "k", Academic, "new")
	var s string
	if ok, _ := c.Get(ctx, "k", &s); !ok || s != "new" {
		t.Fatalf("got %q", s)
	}
}

func TestKey(t *testing.T) {
	if Key("x") == Key("y") || len(Key("x")) != 64 {
		t.Fatal("bad key")
	}
}

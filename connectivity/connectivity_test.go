package connectivity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func counting(errs ...error) (Handler, *int) {
	n := 0
	return func(context.Context, []byte) ([]byte, error) {
		i := n
		n++
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		return []byte("ok"), nil
	}, &n
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}
	base, _ := counting()
	Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
}

func TestWithRetry_EventuallySucceeds(t *testing.T) {
	base, calls := counting(errors.New("flaky"), errors.New("flaky"))
	h := WithRetry(3, func(int) time.Duration { return time.Millisecond }, nil)(base)
	resp, err := h(context.Background(), nil)
	if err != nil || string(resp) != "ok" {
		t.Fatalf("resp=%q err=%v", resp, err)
	}
	if *calls != 3 {
		t.Fatalf("calls = %d, want 3", *calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	fail := errors.New("down")
	base, calls := counting(fail, fail, fail, fail, fail)
	h := WithRetry(2, func(int) time.Duration { return 0 }, nil)(base)
	if _, err := h(context.Background(), nil); !errors.Is(err, fail) {
		t.Fatalf("err = %v", err)
	}
	if *calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", *calls)
	}
}

func TestWithRetry_NonRetryableStops(t *testing.T) {
	base, calls := counting(&StatusError{Code: 401}, nil)
	h := WithRetry(3, func(int) time.Duration { return 0 }, nil)(base)
	_, err := h(context.Background(), nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 401 {
		t.Fatalf("err = %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls = %d, want 1", *calls)
	}
}

func TestBackoff(t *testing.T) {
	if got := Linear(2 * time.Second)(2); got != 6*time.Second {
		t.Fatalf("Linear(2s)(2) = %v", got)
	}
	if got := Exponential(100 * time.Millisecond)(3); got != 800*time.Millisecond {
		t.Fatalf("Exponential(100ms)(3) = %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("conn reset"), true},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 400}, false},
		{&ErrCircuitOpen{Service: "x"}, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v", tc.err, got)
		}
	}
}

func TestBreaker_Transitions(t *testing.T) {
	now := time.Unix(0, 0)
	var logs bytes.Buffer
	b := NewBreaker("search",
		Threshold(2),
		Cooldown(10*time.Second),
		Probes(1),
		BreakerClock(func() time.Time { return now }),
		BreakerLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	down := &StatusError{Code: 503}

	b.Observe(down)
	if b.State() != Closed {
		t.Fatal("opened after 1 failure")
	}
	b.Observe(down)
	if b.State() != Open {
		t.Fatal("not open after threshold")
	}

	now = now.Add(4 * time.Second)
	var open *ErrCircuitOpen
	if err := b.Check(); !errors.As(err, &open) || open.Service != "search" || open.RetryAfter != 6*time.Second {
		t.Fatalf("check = %v", err)
	}

	now = now.Add(7 * time.Second)
	if b.State() != HalfOpen || b.Check() != nil {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	b.Observe(down)
	if b.State() != Open {
		t.Fatal("half-open failure did not reopen")
	}

	now = now.Add(11 * time.Second)
	b.Observe(nil)
	if b.State() != Closed {
		t.Fatalf("state = %v after half-open success", b.State())
	}

	for _, want := range []string{"breaker opened", "breaker half-open", "breaker closed", "service=search"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log missing %q:\n%s", want, logs.String())
		}
	}
}

func TestBreaker_IgnoresClientErrorsAndCancellation(t *testing.T) {
	b := NewBreaker("llm", Threshold(1))
	b.Observe(&StatusError{Code: 400})
	b.Observe(context.Canceled)
	b.Observe(fmt.Errorf("call: %w", context.Canceled))
	if b.State() != Closed {
		t.Fatal("breaker tripped by a non-service failure")
	}
	b.Observe(errors.New("connection refused"))
	if b.State() != Open {
		t.Fatal("transport failure did not trip")
	}
	b.Reset()
	if b.State() != Closed || b.Check() != nil {
		t.Fatal("reset did not close")
	}
}

func TestWithBreaker(t *testing.T) {
	b := NewBreaker("search", Threshold(1))
	fail := &StatusError{Code: 500}
	base, calls := counting(fail, nil)
	h := WithBreaker(b)(base)

	h(context.Background(), nil)
	_, err := h(context.Background(), nil)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) || open.Service != "search" {
		t.Fatalf("err = %v, want circuit open", err)
	}
	if IsRetryable(err) {
		t.Fatal("open circuit must not be retried")
	}
	if *calls != 1 {
		t.Fatalf("calls = %d, want 1", *calls)
	}
}

func TestHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "k" || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer srv.Close()

	h := HTTPHandler(srv.Client(), srv.URL, map[string]string{"X-API-KEY": "k"})
	resp, err := h(context.Background(), []byte(`{"q":"x"}`))
	if err != nil || string(resp) != `{"q":"x"}` {
		t.Fatalf("resp=%q err=%v", resp, err)
	}

	bad := HTTPHandler(srv.Client(), srv.URL, nil)
	_, err = bad(context.Background(), nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := WithTimeout(5 * time.Millisecond)(slow)(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestWithRateLimit_Cancelled(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	base, calls := counting()
	h := WithRateLimit(lim)(base)
	if _, err := h(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h(ctx, nil); err == nil {
		t.Fatal("expected rate limit wait to fail")
	}
	if *calls != 1 {
		t.Fatalf("calls = %d", *calls)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:        "sk-test",
		BaseURL:       srv.URL + "/api/v1/",
		RetryDelay:    time.Millisecond,
		RatePerSecond: 1000,
		HTTPClient:    srv.Client(),
	})
}

var userMsg = []Message{{Role: RoleUser, Content: "hello"}}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" ||
			r.Header.Get("HTTP-Referer") != DefaultReferer ||
			r.Header.Get("X-Title") != DefaultTitle {
			t.Errorf("headers = %v", r.Header)
		}
		var req completionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != DefaultModel || req.Temperature != 0.7 || req.Stream {
			t.Errorf("request = %+v", req)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	})

	got, err := c.Complete(context.Background(), userMsg)
	if err != nil || got != "hi there" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"third time"}}]}`)
	})
	got, err := c.Complete(context.Background(), userMsg)
	if err != nil || got != "third time" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestComplete_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})
	_, err := c.Complete(context.Background(), userMsg)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "slow down" {
		t.Fatalf("err = %#v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestComplete_UnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := c.Complete(context.Background(), userMsg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestComplete_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	if _, err := c.Complete(context.Background(), userMsg); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateMessages(t *testing.T) {
	cases := [][]Message{
		nil,
		{{Role: "", Content: "x"}},
		{{Role: RoleUser, Content: ""}},
	}
	for i, msgs := range cases {
		if err := ValidateMessages(msgs); !errors.Is(err, ErrInvalidMessages) {
			t.Errorf("case %d: err = %v", i, err)
		}
	}
	if err := ValidateMessages(userMsg); err != nil {
		t.Fatal(err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(Config{})
	if _, err := c.Complete(context.Background(), userMsg); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Stream(context.Background(), userMsg, func(string) error { return nil }); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func sse(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, ": OPENROUTER PROCESSING\n\n")
	for _, d := range deltas {
		b, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]string{"content": d}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}
		sse(w, "Fusion ", "is ", "", "close.")
	})

	var b strings.Builder
	err := c.Stream(context.Background(), userMsg, func(d string) error {
		b.WriteString(d)
		return nil
	})
	if err != nil || b.String() != "Fusion is close." {
		t.Fatalf("got %q, %v", b.String(), err)
	}
}

func TestStream_RetriesBeforeFirstDelta(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		sse(w, "ok")
	})
	var got string
	err := c.Stream(context.Background(), userMsg, func(d string) error { got += d; return nil })
	if err != nil || got != "ok" || calls.Load() != 2 {
		t.Fatalf("got %q err %v calls %d", got, err, calls.Load())
	}
}

func TestStream_CallbackErrorAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sse(w, "a", "b", "c")
	})
	stop := errors.New("stop")
	n := 0
	err := c.Stream(context.Background(), userMsg, func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err = %v, n = %d", err, n)
	}
}

func TestReadEvents_MultilineData(t *testing.T) {
	in := "data: line1\ndata: line2\n\ndata: [DONE]\n\ndata: ignored\n\n"
	var got []string
	err := readEvents(strings.NewReader(in), func(d []byte) error {
		got = append(got, string(d))
		return nil
	})
	if err != nil || len(got) != 1 || got[0] != "line1\nline2" {
		t.Fatalf("got %q, %v", got, err)
	}
}

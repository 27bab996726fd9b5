package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/deepresearch/connectivity"
)

// Client talks to the chat completions endpoint. Safe for concurrent use.
type Client struct {
	cfg      Config
	complete connectivity.Handler
	limiter  *rate.Limiter
	breaker  *connectivity.Breaker
	backoff  connectivity.Backoff
	logger   *slog.Logger
}

// New builds a client. A client without an API key is valid and fails every
// call with ErrNotConfigured.
func New(cfg Config) *Client {
	cfg.defaults()
	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker: connectivity.NewBreaker("openrouter", connectivity.BreakerLogger(cfg.Logger)),
		backoff: connectivity.Linear(cfg.RetryDelay),
		logger:  cfg.Logger.With("service", "openrouter"),
	}
	c.complete = connectivity.Chain(
		connectivity.Logging(c.logger),
		connectivity.WithBreaker(c.breaker),
		connectivity.WithRetry(cfg.Attempts-1, c.backoff, c.logger),
		connectivity.WithRateLimit(c.limiter),
		connectivity.WithTimeout(cfg.Timeout),
	)(connectivity.HTTPHandler(cfg.HTTPClient, c.endpoint(), c.headers()))
	return c
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) endpoint() string { return c.cfg.BaseURL + "/chat/completions" }

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"HTTP-Referer":  c.cfg.Referer,
		"X-Title":       c.cfg.Title,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) request(msgs []Message, stream bool) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := ValidateMessages(msgs); err != nil {
		return nil, err
	}
	clean := make([]Message, len(msgs))
	for i, m := range msgs {
		clean[i] = Message{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    clean,
		Temperature: c.cfg.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal: %w", err)
	}
	return body, nil
}

// Complete returns the assistant's reply to msgs.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	body, err := c.request(msgs, false)
	if err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, body)
	if err != nil {
		return "", apiError(err)
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if resp.Error != nil {
		return "", &APIError{Status: http.StatusBadGateway, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends msgs with stream=true and calls fn with every content delta
// in order. Attempts that fail before the first delta are retried like
// Complete; once a delta reached fn the error is returned as is. An error
// from fn aborts the stream and is returned.
func (c *Client) Stream(ctx context.Context, msgs []Message, fn func(delta string) error) error {
	body, err := c.request(msgs, true)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Attempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.logger.WarnContext(ctx, "llm: retrying stream", "attempt", attempt, "backoff_ms", wait.Milliseconds(), "error", lastErr)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := c.breaker.Check(); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		started, err := c.streamOnce(ctx, body, fn)
		if !started || err == nil {
			c.breaker.Observe(err)
		}
		if err == nil {
			return nil
		}
		if started || ctx.Err() != nil || !connectivity.IsRetryable(err) {
			return apiError(err)
		}
		lastErr = err
	}
	return apiError(lastErr)
}

func (c *Client) streamOnce(ctx context.Context, body []byte, fn func(string) error) (started bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("llm: stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &connectivity.StatusError{Code: resp.StatusCode, Body: b}
	}

	err = readEvents(resp.Body, func(data []byte) error {
		var chunk completionResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return fmt.Errorf("llm: decode chunk: %w", err)
		}
		if chunk.Error != nil {
			return &APIError{Status: http.StatusBadGateway, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return nil
		}
		started = true
		return fn(chunk.Choices[0].Delta.Content)
	})
	return started, err
}

var errDone = errors.New("done")

// readEvents calls fn with the data of every SSE event until "[DONE]" or
// EOF. Comment lines (": OPENROUTER PROCESSING") are skipped.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data []byte
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		d := data
		data = nil
		if string(d) == "[DONE]" {
			return errDone
		}
		return fn(d)
	}
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if err := flush(); err != nil {
				if errors.Is(err, errDone) {
					return nil
				}
				return err
			}
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[5:], []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, v...)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("llm: read stream: %w", err)
	}
	if err := flush(); err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}

func apiError(err error) error {
	var se *connectivity.StatusError
	if errors.As(err, &se) {
		return &APIError{Status: se.Code, Message: errorMessage(se.Body)}
	}
	return err
}

// errorMessage extracts {"error":{"message":"..."}} from an error body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

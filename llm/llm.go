// Package llm is a client for OpenRouter's OpenAI-compatible chat
// completions API, with plain and server-sent-event streaming calls.
//
// Usage:
//
//	c := llm.New(llm.Config{APIKey: os.Getenv("OPENROUTER_API_KEY")})
//	text, err := c.Complete(ctx, []llm.Message{
//	    {Role: llm.RoleSystem, Content: "You are a research assistant."},
//	    {Role: llm.RoleUser, Content: "Summarise the state of fusion power."},
//	})
package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "deepseek/deepseek-r1:free"
	DefaultReferer = "https://github.com/deep-research"
	DefaultTitle   = "Deep Research Assistant"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNotConfigured   = errors.New("llm: OPENROUTER_API_KEY not configured")
	ErrInvalidMessages = errors.New("llm: invalid message format")
	ErrEmptyResponse   = errors.New("llm: empty response")
	ErrUnauthorized    = errors.New("llm: unauthorized")
	ErrRateLimited     = errors.New("llm: rate limited")
	ErrUnavailable     = errors.New("llm: service unavailable")
)

// Message is one chat turn. Only role and content are sent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidateMessages rejects an empty conversation and turns missing a role or
// content.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidMessages)
	}
	for i, m := range msgs {
		if strings.TrimSpace(m.Role) == "" || m.Content == "" {
			return fmt.Errorf("%w: message %d needs role and content", ErrInvalidMessages, i)
		}
	}
	return nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the package sentinels so callers can
// use errors.Is(err, llm.ErrRateLimited).
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// Config configures the client.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Referer and Title identify the application to OpenRouter.
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`

	// Temperature for every request. Default: 0.7.
	Temperature float64 `yaml:"temperature"`

	// Attempts per call, first try included. Default: 3.
	Attempts int `yaml:"attempts"`

	// RetryDelay is the linear backoff step: attempt n waits n*RetryDelay.
	// Default: 2s.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout bounds one non-streaming attempt. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond caps outgoing requests. Default: 2.
	RatePerSecond float64 `yaml:"rate_per_second"`

	HTTPClient *http.Client `yaml:"-"`
	Logger     *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Referer == "" {
		c.Referer = DefaultReferer
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 2
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

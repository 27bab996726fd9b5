// Package serper is a client for the Serper Google Search API.
//
// Usage:
//
//	c := serper.New(serper.Config{APIKey: os.Getenv("SERPER_API_KEY")})
//	results, err := c.Search(ctx, "solid state battery breakthroughs", 5)
package serper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/deepresearch/connectivity"
)

// DefaultEndpoint is the organic search endpoint.
const DefaultEndpoint = "https://google.serper.dev/search"

// ErrNotConfigured is returned by Search when no API key is set.
var ErrNotConfigured = errors.New("serper: SERPER_API_KEY not configured")

// Result is one organic search hit. Date is the provider's free-form date
// string ("3 days ago", "Mar 4, 2024") and may be empty.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

// APIError is a non-2xx response from the search API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serper: HTTP %d: %s", e.Status, e.Message)
}

// Config configures the client.
type Config struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`

	// Timeout per attempt. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries after the first attempt. Default: 2.
	MaxRetries int `yaml:"max_retries"`

	// RatePerSecond caps outgoing requests. Default: 5.
	RatePerSecond float64 `yaml:"rate_per_second"`

	HTTPClient *http.Client `yaml:"-"`
	Logger     *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client performs searches. Safe for concurrent use.
type Client struct {
	configured bool
	call       connectivity.Handler
	breaker    *connectivity.Breaker
	logger     *slog.Logger
}

// New builds a client. A client without an API key is valid and fails every
// Search with ErrNotConfigured.
func New(cfg Config) *Client {
	cfg.defaults()
	cb := connectivity.NewBreaker("serper", connectivity.BreakerLogger(cfg.Logger))
	call := connectivity.Chain(
		connectivity.Logging(cfg.Logger.With("service", "serper")),
		connectivity.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)),
		connectivity.WithBreaker(cb),
		connectivity.WithRetry(cfg.MaxRetries, connectivity.Exponential(500*time.Millisecond), cfg.Logger),
		connectivity.WithTimeout(cfg.Timeout),
	)(connectivity.HTTPHandler(cfg.HTTPClient, cfg.Endpoint, map[string]string{
		"X-API-KEY": cfg.APIKey,
	}))
	return &Client{
		configured: strings.TrimSpace(cfg.APIKey) != "",
		call:       call,
		breaker:    cb,
		logger:     cfg.Logger,
	}
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool { return c.configured }

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type searchResponse struct {
	Organic []Result `json:"organic"`
}

// Search returns up to num organic results for query, in provider order.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("serper: empty query")
	}
	if num <= 0 {
		num = 10
	}

	payload, err := json.Marshal(searchRequest{Q: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("serper: marshal: %w", err)
	}

	body, err := c.call(ctx, payload)
	if err != nil {
		var se *connectivity.StatusError
		if errors.As(err, &se) {
			return nil, &APIError{Status: se.Code, Message: apiMessage(se.Body)}
		}
		return nil, fmt.Errorf("serper: search %q: %w", query, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}
	if len(resp.Organic) > num {
		resp.Organic = resp.Organic[:num]
	}
	c.logger.Debug("serper: search done", "query", query, "results", len(resp.Organic))
	return resp.Organic, nil
}

// apiMessage extracts {"message": "..."} from an error body, falling back
// to the raw text.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

// Package research turns a question into a cited report: it asks the LLM
// for search queries, runs them concurrently, scores and deduplicates the
// hits, and has the LLM synthesise a Markdown report citing [Source N].
//
// Usage:
//
//	svc := research.New(research.Config{LLM: llmClient, Search: serperClient, Cache: c})
//	results, err := svc.SearchWeb(ctx, "state of solid state batteries", 3, 5)
//	report, err := svc.GenerateReport(ctx, "state of solid state batteries", results)
//	md, err := research.FormatReport(report, research.FormatOptions{ShowSources: true})
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/deepresearch/cache"
	"github.com/hazyhaar/deepresearch/llm"
	"github.com/hazyhaar/deepresearch/serper"
)

// Completer produces a single chat completion.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message) (string, error)
}

// Streamer is implemented by completers that can stream deltas.
type Streamer interface {
	Stream(ctx context.Context, msgs []llm.Message, fn func(delta string) error) error
}

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]serper.Result, error)
}

var (
	ErrNoSearch  = errors.New("research: search API not configured")
	ErrNoResults = errors.New("research: no search results")
)

// Config wires a Service.
type Config struct {
	LLM    Completer
	Search Searcher

	// Cache is optional. Search results are kept as cache.News, reports as
	// cache.Academic.
	Cache *cache.Cache

	// SearchTimeout bounds the whole fan-out of SearchWeb. Default: 30s.
	SearchTimeout time.Duration

	// MaxResults caps the deduplicated results of SearchWeb. Default: 10.
	MaxResults int

	// Concurrency bounds simultaneous searches. Default: 3.
	Concurrency int

	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 30 * time.Second
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service runs research. Safe for concurrent use.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Service.
func New(cfg Config) *Service {
	cfg.defaults()
	return &Service{cfg: cfg, logger: cfg.Logger}
}

func (s *Service) today() string { return s.cfg.Now().Format("2006-01-02") }

// SearchWeb answers question with up to MaxResults scored results: it
// generates numQueries search queries, runs each for perQuery hits, and
// keeps the first occurrence of every URL in query order. Failed queries
// are logged and skipped. Non-empty result sets are cached per question.
func (s *Service) SearchWeb(ctx context.Context, question string, numQueries, perQuery int) ([]Result, error) {
	if s.cfg.Search == nil {
		return nil, ErrNoSearch
	}
	if perQuery <= 0 {
		perQuery = 5
	}

	key := "search:" + question
	if s.cfg.Cache != nil {
		var cached []Result
		ok, err := s.cfg.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("research: cache read", "error", err)
		}
		if ok && len(cached) > 0 {
			s.logger.Info("research: search cache hit", "question", question)
			return cached, nil
		}
	}

	queries := s.GenerateQueries(ctx, question, numQueries)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()

	hits := make([][]serper.Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.cfg.Search.Search(gctx, q, perQuery)
			if err != nil {
				if errors.Is(err, serper.ErrNotConfigured) {
					return ErrNoSearch
				}
				s.logger.Warn("research: search failed", "query", q, "error", err)
				return nil
			}
			hits[i] = res
			s.logger.Debug("research: search done", "query", q, "results", len(res))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	seen := make(map[string]bool)
	var results []Result
	for _, batch := range hits {
		for _, h := range batch {
			if h.Link == "" || seen[h.Link] {
				continue
			}
			seen[h.Link] = true
			results = append(results, NewResult(h, now))
		}
	}
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}

	if s.cfg.Cache != nil && len(results) > 0 {
		if err := s.cfg.Cache.Set(ctx, key, cache.News, results); err != nil {
			s.logger.Warn("research: cache write", "error", err)
		}
	}
	s.logger.Info("research: search complete", "question", question, "queries", len(queries), "results", len(results))
	return results, nil
}

// Converse answers a follow-up turn. Only role and content of each message
// are forwarded; messages missing either are dropped.
func (s *Service) Converse(ctx context.Context, history []llm.Message) (string, error) {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == "" || m.Content == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("research: converse: %w", llm.ErrInvalidMessages)
	}
	reply, err := s.cfg.LLM.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("research: converse: %w", err)
	}
	return reply, nil
}

// ConverseStream is Converse with incremental output. Completers that
// cannot stream answer in one piece, replayed to fn in small chunks.
func (s *Service) ConverseStream(ctx context.Context, history []llm.Message, fn func(chunk string) error) (string, error) {
	st, ok := s.cfg.LLM.(Streamer)
	if !ok {
		reply, err := s.Converse(ctx, history)
		if err != nil {
			return "", err
		}
		return reply, replay(reply, fn)
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != "" && m.Content != "" {
			msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("research: converse: %w", llm.ErrInvalidMessages)
	}
	var b strings.Builder
	err := st.Stream(ctx, msgs, func(delta string) error {
		b.WriteString(delta)
		return fn(delta)
	})
	if err != nil {
		return "", fmt.Errorf("research: converse: %w", err)
	}
	return b.String(), nil
}

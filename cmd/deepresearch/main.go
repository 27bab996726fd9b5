// Command deepresearch serves the research chat UI, or exposes the
// research tools over MCP on stdio.
//
// Usage:
//
//	deepresearch                          # web server on :8080 (PORT overrides)
//	deepresearch -config deepresearch.yaml
//	deepresearch -mcp                     # MCP server on stdin/stdout
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/deepresearch/cache"
	"github.com/hazyhaar/deepresearch/chat"
	"github.com/hazyhaar/deepresearch/config"
	"github.com/hazyhaar/deepresearch/dbopen"
	"github.com/hazyhaar/deepresearch/feedback"
	"github.com/hazyhaar/deepresearch/llm"
	"github.com/hazyhaar/deepresearch/research"
	"github.com/hazyhaar/deepresearch/serper"
	"github.com/hazyhaar/deepresearch/shield"
	"github.com/hazyhaar/deepresearch/trace"
	"github.com/hazyhaar/deepresearch/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to deepresearch.yaml (optional)")
	mcpMode := flag.Bool("mcp", false, "serve the research tools over MCP on stdio instead of HTTP")
	listen := flag.String("listen", "", "listen address (overrides config and PORT)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout carries the MCP protocol in -mcp mode; logs always go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *mcpMode, logger); err != nil {
		logger.Error("deepresearch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mcpMode bool, logger *slog.Logger) error {
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	opts := []dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(chat.Schema),
		dbopen.WithSchema(feedback.Schema),
		dbopen.WithSchema(cache.Schema),
	}
	if cfg.TraceSQL.Enabled {
		trace.Configure(logger.With("component", "sql"), cfg.TraceSQL.Slow)
		opts = append(opts, dbopen.WithDriver(trace.DriverName))
		defer func() { logger.Info("sql trace", "stats", trace.Snapshot()) }()
	}
	db, err := dbopen.Open(cfg.DBPath, opts...)
	if err != nil {
		return err
	}
	defer db.Close()

	c := cache.New(db, cache.WithLogger(logger))
	if n, err := c.Purge(ctx); err != nil {
		logger.Warn("cache purge", "error", err)
	} else if n > 0 {
		logger.Info("cache purged", "expired", n)
	}

	svc := research.New(research.Config{
		LLM: llm.New(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			Logger:      logger,
		}),
		Search: serper.New(serper.Config{
			APIKey:   cfg.Search.APIKey,
			Endpoint: cfg.Search.Endpoint,
			Logger:   logger,
		}),
		Cache:         c,
		SearchTimeout: cfg.Search.Timeout,
		MaxResults:    cfg.Search.MaxResults,
		Logger:        logger,
	})

	if mcpMode {
		return serveMCP(ctx, svc, logger)
	}
	return serveHTTP(ctx, cfg, db, svc, logger)
}

func serveMCP(ctx context.Context, svc *research.Service, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "deepresearch", Version: version}, nil)
	svc.RegisterMCP(srv)
	logger.Info("mcp: serving on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, db *sql.DB, svc *research.Service, logger *slog.Logger) error {
	store := chat.NewStore(db,
		chat.WithLogger(logger),
		chat.WithMaxHistory(cfg.Chat.MaxHistory),
		chat.WithExpiry(cfg.Chat.Expiry),
	)

	theme, err := web.NewTheme(cfg.ThemeFile, cfg.ThemeCSS, logger)
	if err != nil {
		return err
	}
	if err := theme.Watch(ctx); err != nil {
		logger.Warn("theme watch disabled", "error", err)
	}

	rl := shield.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	rl.StartGC(ctx.Done(), 10*time.Minute)

	go purgeChats(ctx, store, logger)

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: web.New(web.Config{
			Chats:           store,
			Research:        svc,
			Theme:           theme,
			Feedback:        feedback.NewStore(db),
			RateLimiter:     rl,
			NumQueries:      cfg.Search.NumQueries,
			ResultsPerQuery: cfg.Search.ResultsPerQuery,
			Logger:          logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// Reports take a search fan-out plus a long completion.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Listen, "model", cfg.LLM.Model, "palette", theme.Registry().Palette().Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// purgeChats drops expired chats hourly.
func purgeChats(ctx context.Context, store *chat.Store, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := store.PurgeExpired(ctx); err != nil {
				logger.Warn("chat purge", "error", err)
			} else if n > 0 {
				logger.Info("chats purged", "expired", n)
			}
		}
	}
}

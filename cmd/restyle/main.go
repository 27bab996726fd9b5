// Command restyle keeps a hosted dashboard's chat widgets on-theme.
//
// Usage:
//
//	restyle -config restyle.yaml               # pages from YAML config
//	restyle -url http://localhost:8501         # single page
//	restyle -url http://localhost:8501 -theme theme.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/deepresearch/domstyle"
	"github.com/hazyhaar/deepresearch/restyle"
)

func main() {
	configPath := flag.String("config", "", "path to restyle.yaml")
	singleURL := flag.String("url", "", "restyle a single URL")
	themePath := flag.String("theme", "", "theme YAML (overrides the config file's theme)")
	remote := flag.String("remote", "", "DevTools WebSocket URL of an existing Chrome")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath, *singleURL, *remote)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: restyle -config <file> | -url <url>")
		os.Exit(2)
	}
	if *themePath != "" {
		cfg.Theme = *themePath
	}

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("restyle: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, url, remote string) (*restyle.Config, error) {
	var cfg *restyle.Config
	switch {
	case path != "":
		c, err := restyle.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	case url != "":
		cfg = &restyle.Config{Pages: []restyle.PageConfig{{ID: "main", URL: url, Mount: "body"}}}
	default:
		return nil, fmt.Errorf("restyle: no pages")
	}
	if remote != "" {
		cfg.Browser.Remote = remote
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *restyle.Config) error {
	reg := domstyle.DefaultRegistry()
	if cfg.Theme != "" {
		r, err := domstyle.LoadRegistry(cfg.Theme)
		if err != nil {
			return err
		}
		reg = r
	}

	d := restyle.New(cfg, reg, logger)
	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("restyle: running", "pages", d.Pages(), "palette", reg.Palette().Name)

	<-ctx.Done()
	logger.Info("restyle: shutting down")
	return d.Stop()
}

// Package config loads the deepresearch server configuration: a YAML file
// with defaults, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/deepresearch/llm"
	"github.com/hazyhaar/deepresearch/serper"
)

// Config is the top-level server configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	// ThemeFile is a domstyle theme (YAML palette). ThemeCSS is an extra
	// stylesheet appended to /static/theme.css and reloaded on change.
	ThemeFile string `yaml:"theme_file"`
	ThemeCSS  string `yaml:"theme_css"`

	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	TraceSQL  TraceConfig     `yaml:"trace_sql"`
}

// LLMConfig configures the OpenRouter client.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SearchConfig configures Serper and the research fan-out.
type SearchConfig struct {
	APIKey          string        `yaml:"api_key"`
	Endpoint        string        `yaml:"endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxResults      int           `yaml:"max_results"`
	NumQueries      int           `yaml:"num_queries"`
	ResultsPerQuery int           `yaml:"results_per_query"`
}

// ChatConfig bounds chat history.
type ChatConfig struct {
	MaxHistory int           `yaml:"max_history"`
	Expiry     time.Duration `yaml:"expiry"`
}

// RateLimitConfig is the per-client budget for POST requests.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// TraceConfig switches the database to the tracing driver. Statements
// slower than Slow log at warn level.
type TraceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Slow    time.Duration `yaml:"slow"`
}

// Load reads path (optional; "" means defaults only), applies defaults,
// then overrides from the process environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup: OPENROUTER_API_KEY, SERPER_API_KEY, PORT, DB_PATH, LOG_LEVEL,
// THEME_FILE, THEME_CSS, LLM_MODEL and TRACE_SQL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("OPENROUTER_API_KEY", &c.LLM.APIKey)
	str("SERPER_API_KEY", &c.Search.APIKey)
	str("DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("THEME_FILE", &c.ThemeFile)
	str("THEME_CSS", &c.ThemeCSS)
	str("LLM_MODEL", &c.LLM.Model)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Listen = ":" + strconv.Itoa(port)
	}
	if v, ok := lookup("TRACE_SQL"); ok && v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid TRACE_SQL %q", v)
		}
		c.TraceSQL.Enabled = on
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "deepresearch.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = llm.DefaultBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModel
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.Search.Endpoint == "" {
		c.Search.Endpoint = serper.DefaultEndpoint
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 30 * time.Second
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 10
	}
	if c.Search.NumQueries <= 0 {
		c.Search.NumQueries = 3
	}
	if c.Search.ResultsPerQuery <= 0 {
		c.Search.ResultsPerQuery = 5
	}
	if c.Chat.MaxHistory <= 0 {
		c.Chat.MaxHistory = 50
	}
	if c.Chat.Expiry <= 0 {
		c.Chat.Expiry = 24 * time.Hour
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 1
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.TraceSQL.Slow <= 0 {
		c.TraceSQL.Slow = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature %v out of range [0, 2]", c.LLM.Temperature)
	}
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("config: llm.base_url must be an http(s) URL")
	}
	return nil
}

// Warnings lists missing optional settings worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.LLM.APIKey == "" {
		w = append(w, "OPENROUTER_API_KEY not set: report generation disabled")
	}
	if c.Search.APIKey == "" {
		w = append(w, "SERPER_API_KEY not set: web search disabled")
	}
	return w
}

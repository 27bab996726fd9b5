// Package config parses the restyle YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level restyle configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Theme   string        `yaml:"theme"` // path to a domstyle theme file
	Pages   []PageConfig  `yaml:"pages"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headless        *bool         `yaml:"headless"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	BlockResources  []string      `yaml:"block_resources"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// PageConfig is one dashboard page to keep styled.
type PageConfig struct {
	ID           string        `yaml:"id"`
	URL          string        `yaml:"url"`
	Mount        string        `yaml:"mount"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HeadlessOrDefault reports the effective headless setting (default true).
func (b BrowserConfig) HeadlessOrDefault() bool {
	return b.Headless == nil || *b.Headless
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	for i := range c.Pages {
		p := &c.Pages[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("page-%d", i+1)
		}
		if p.Mount == "" {
			p.Mount = "body"
		}
		if p.PollInterval <= 0 {
			p.PollInterval = 500 * time.Millisecond
		}
	}
}

func (c *Config) validate() error {
	if len(c.Pages) == 0 {
		return fmt.Errorf("config: no pages configured")
	}
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %s: url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

package curator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all curator configuration.
type Config struct {
	// DBPath is the pipeline sqlite database.
	DBPath string `yaml:"db_path"`

	// DataDir holds scraped page content (scraped/) and per-run stats
	// (runs/).
	DataDir string `yaml:"data_dir"`

	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
	LLM      LLMConfig      `yaml:"llm"`
	Collect  CollectConfig  `yaml:"collect"`
	Classify ClassifyConfig `yaml:"classify"`
}

// FetchConfig selects and tunes the page fetcher.
type FetchConfig struct {
	// Mode is "http" or "browser" (headless Chrome with stealth).
	Mode string `yaml:"mode"`

	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`

	// BrowserURL connects to an external Chrome instead of launching
	// one (browser mode only).
	BrowserURL string `yaml:"browser_url"`
}

// CacheConfig controls the scrape cache.
type CacheConfig struct {
	// MaxAge re-fetches entries older than this. 0 = cache forever.
	MaxAge time.Duration `yaml:"max_age"`
}

// LLMConfig points at an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	// APIKey, or the CURATOR_API_KEY environment variable if empty.
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`

	// Pricing per million tokens, for run cost reporting.
	InputCostPerMTok  float64 `yaml:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `yaml:"output_cost_per_mtok"`
}

// CollectConfig tunes the collect worker.
type CollectConfig struct {
	// MinLinkRelevancy is the fan-out threshold for extracted links.
	// Links the extractor did not score always fan out.
	MinLinkRelevancy float64 `yaml:"min_link_relevancy"`
}

// ClassifyConfig tunes the classify worker.
type ClassifyConfig struct {
	// MinRelevancy skips records whose extraction-time relevancy is
	// below it. Records without one always qualify.
	MinRelevancy float64 `yaml:"min_relevancy"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "curator.db"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = "http"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("CURATOR_API_KEY")
	}
	if c.Collect.MinLinkRelevancy <= 0 {
		c.Collect.MinLinkRelevancy = 0.3
	}
}

func (c *Config) validate() error {
	switch c.Fetch.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: fetch.mode must be http or browser, got %q", c.Fetch.Mode)
	}
	return nil
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

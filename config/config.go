package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/region"
)

// Config holds scraper configuration.
type Config struct {
	// SeedURLs are category listing URLs; relative seeds resolve against BaseURL.
	SeedURLs      []string
	BaseURL       string
	Region        string
	DefaultRegion string
	Regions       map[string]region.Context
	Layout        string // html or api
	SitePath      string
	Selectors     parser.Selectors
	Currency      string

	// MaxPages bounds each seed's pagination chain; 0 means unbounded.
	MaxPages         int
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	CacheSize        int
	DetailQueueSize  int
	BatchSize        int
	OutputFile       string
	OutputFormat     string // csv, json, or dual
	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://alkoteka.com",
		DefaultRegion:    region.DefaultID,
		Layout:           parser.LayoutHTML,
		Currency:         "RUB",
		MaxPages:         50,
		Parallelism:      8,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		CacheSize:        4096,
		DetailQueueSize:  128,
		BatchSize:        64,
		OutputFile:       "output/products.json",
		OutputFormat:     "json",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.SeedURLs) == 0 {
		return fmt.Errorf("at least one seed URL is required")
	}
	if c.BaseURL != "" {
		parsedURL, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("base URL must include a host")
		}
	}
	for _, seed := range c.SeedURLs {
		if strings.TrimSpace(seed) == "" {
			return fmt.Errorf("seed URL cannot be empty")
		}
		if c.BaseURL == "" && !strings.Contains(seed, "://") {
			return fmt.Errorf("relative seed %q requires a base URL", seed)
		}
	}

	switch strings.ToLower(c.Layout) {
	case "", parser.LayoutHTML, parser.LayoutAPI:
	default:
		return fmt.Errorf("layout must be %s or %s", parser.LayoutHTML, parser.LayoutAPI)
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.DetailQueueSize <= 0 {
		return fmt.Errorf("detail queue size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// RegionSelector builds the selector for the built-in regions plus any
// configured in the site profile.
func (c *Config) RegionSelector() *region.Selector {
	return region.NewSelector(c.DefaultRegion, c.Regions)
}

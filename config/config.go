package config

import (
	"fmt"
	"net/url"
	"time"
)

// Discovery strategy names accepted by Config.DiscoveryMode.
const (
	ModeSitemap    = "sitemap"
	ModePagination = "pagination"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL         string
	SitemapIndexURL string
	CategoryPrefix  string
	DiscoveryMode   string // sitemap or pagination

	MaxConcurrentFetches int
	MaxRetries           int
	Timeout              time.Duration
	RetryBackoff         time.Duration
	RetryBackoffMax      time.Duration
	MaxPagesPerCategory  int

	UserAgent        string
	RespectRobotsTxt bool

	OutputFile   string
	OutputFormat string // json, csv, or dual
	MetricsAddr  string
	Verbose      bool

	SourceWebsite   string
	Currency        string
	ContactPhone    string
	ContactWhatsApp string
}

// DefaultConfig returns the defaults for the laptop.lk target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://www.laptop.lk",
		SitemapIndexURL:      "https://www.laptop.lk/sitemap_index.xml",
		CategoryPrefix:       "https://www.laptop.lk/index.php/product-category/",
		DiscoveryMode:        ModeSitemap,
		MaxConcurrentFetches: 10,
		MaxRetries:           2,
		Timeout:              10 * time.Second,
		RetryBackoff:         200 * time.Millisecond,
		RetryBackoffMax:      2 * time.Second,
		MaxPagesPerCategory:  50,
		UserAgent:            "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:     false,
		OutputFile:           "output/laptoplk_products.json",
		OutputFormat:         "json",
		SourceWebsite:        "laptop.lk",
		Currency:             "LKR",
		ContactPhone:         "+94 77 733 6464",
		ContactWhatsApp:      "+94 77 733 6464",
	}
}

// Clone returns an independent copy, so callers can layer overrides without
// mutating the source configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	switch c.DiscoveryMode {
	case ModeSitemap:
		if c.SitemapIndexURL == "" {
			return fmt.Errorf("sitemap discovery requires a sitemap index URL")
		}
	case ModePagination:
		if c.CategoryPrefix == "" {
			return fmt.Errorf("pagination discovery requires a category prefix")
		}
	default:
		return fmt.Errorf("discovery mode must be %s or %s", ModeSitemap, ModePagination)
	}

	if c.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("max concurrent fetches must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
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
	if c.MaxPagesPerCategory <= 0 {
		return fmt.Errorf("max pages per category must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be json, csv, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

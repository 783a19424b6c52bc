package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"laptopscraper/config"
	"laptopscraper/discover"
	"laptopscraper/extract"
	"laptopscraper/fetcher"
	"laptopscraper/models"
	"laptopscraper/pipeline"
)

func main() {
	defaultCfg := config.DefaultConfig()

	modeDefault := defaultCfg.DiscoveryMode
	if value, ok := config.EnvString("SCRAPER_MODE"); ok {
		modeDefault = value
	}
	concurrencyDefault := defaultCfg.MaxConcurrentFetches
	if value, ok, err := config.EnvInt("SCRAPER_CONCURRENCY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_CONCURRENCY: %v\n", err)
		os.Exit(1)
	} else if ok {
		concurrencyDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	mode := flag.String("mode", modeDefault, "Discovery strategy: sitemap or pagination")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Site root URL")
	sitemapIndex := flag.String("sitemap-index", defaultCfg.SitemapIndexURL, "Sitemap index URL (sitemap mode)")
	categoryPrefix := flag.String("category-prefix", defaultCfg.CategoryPrefix, "Category URL prefix (pagination mode)")
	concurrency := flag.Int("concurrency", concurrencyDefault, "Maximum concurrent fetch tasks")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per URL")
	timeoutSec := flag.Int("timeout", int(defaultCfg.Timeout/time.Second), "Per-attempt request timeout (seconds)")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	maxPages := flag.Int("max-pages", defaultCfg.MaxPagesPerCategory, "Maximum pages walked per category")
	respectRobots := flag.Bool("respect-robots", defaultCfg.RespectRobotsTxt, "Respect robots.txt directives")
	userAgent := flag.String("user-agent", defaultCfg.UserAgent, "User-Agent header")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: json, csv, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg.Clone()
	cfg.DiscoveryMode = strings.ToLower(*mode)
	cfg.BaseURL = *baseURL
	cfg.SitemapIndexURL = *sitemapIndex
	cfg.CategoryPrefix = *categoryPrefix
	cfg.MaxConcurrentFetches = *concurrency
	cfg.MaxRetries = *maxRetries
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.MaxPagesPerCategory = *maxPages
	cfg.RespectRobotsTxt = *respectRobots
	cfg.UserAgent = *userAgent
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("mode", cfg.DiscoveryMode),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("concurrency", cfg.MaxConcurrentFetches),
	)

	meta := &models.RunMetadata{
		SourceWebsite:   cfg.SourceWebsite,
		ScrapeTimestamp: time.Now().Format(time.RFC3339),
		ContactPhone:    cfg.ContactPhone,
		ContactWhatsApp: cfg.ContactWhatsApp,
	}

	f, err := fetcher.New(cfg)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		os.Exit(1)
	}

	policy := extract.DefaultPolicy()
	policy.Currency = cfg.Currency
	extractor := extract.New(policy, meta)

	discoverer, err := discover.New(cfg, f)
	if err != nil {
		slog.Error("initialising discovery", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg, meta.ScrapeTimestamp)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(f.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	coordinator := pipeline.NewCoordinator(cfg, f, extractor, discoverer)

	startTime := time.Now()
	result, err := coordinator.Run(ctx)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Write(result.Records); err != nil {
		slog.Error("writing output failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, f.ErrorsByType(), time.Since(startTime), cfg.OutputFile)
}

func createWriter(cfg *config.Config, timestamp string) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewArtifactWriter(cfg.OutputFile, timestamp)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		csvFilename := strings.TrimSuffix(cfg.OutputFile, ".json") + ".csv"
		return pipeline.NewDualWriter(cfg.OutputFile, csvFilename, timestamp)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(result *models.RunResult, errorsByType map[string]int, duration time.Duration, outputFile string) {
	summary := result.Summary

	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(summary.Extracted) / duration.Seconds()
	}
	successRate := 0.0
	if summary.Discovered > 0 {
		successRate = float64(summary.Extracted+summary.Duplicates) / float64(summary.Discovered) * 100
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Products:      %d\n", summary.Extracted)
	fmt.Printf("  Discovered:    %d\n", summary.Discovered)
	fmt.Printf("  Duplicates:    %d\n", summary.Duplicates)
	fmt.Printf("  Failed:        %d\n", summary.Failed)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	if len(errorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", errorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

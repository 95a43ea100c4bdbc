package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/fetcher"
	"github.com/aluiziolira/go-scrape-catalog/metrics"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		return 1
	}

	cfg, listRegions, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if listRegions {
		for _, id := range cfg.RegionSelector().Known() {
			fmt.Println(id)
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	m := metrics.New()
	f, err := fetcher.New(cfg, m)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}
	layout, err := parser.NewLayout(cfg.Layout, cfg.Selectors, cfg.Currency)
	if err != nil {
		slog.Error("initialising layout", slog.Any("error", err))
		return 1
	}
	s, err := scraper.New(cfg, f, layout, cfg.RegionSelector())
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}
	s.Metrics = m

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	p := pipeline.NewPipeline(writer, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight pages")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	slog.Info("starting scrape",
		slog.String("region", s.Region().ID),
		slog.String("layout", layout.Name()),
		slog.Any("seeds", s.Seeds()),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
	)

	result, err := s.Run(ctx)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		p.Close()
		return 1
	}

	if err := p.Emit(result.Records); err != nil {
		slog.Error("writing output failed", slog.Any("error", err))
		p.Close()
		return 1
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return 1
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}

	printSummary(result, f.Requests(), cfg.OutputFile, p.GetMetrics())
	return 0
}

// loadConfig layers defaults, the site profile, environment variables and
// explicitly set flags, in that order of precedence.
func loadConfig(args []string) (*config.Config, bool, error) {
	defaults := config.DefaultConfig()
	flags := flag.NewFlagSet("scraper", flag.ContinueOnError)

	var seeds []string
	flags.Func("seed", "Category URL to crawl; repeatable or comma-separated", func(v string) error {
		seeds = append(seeds, config.SplitList(v)...)
		return nil
	})
	regionName := flags.String("region", "", "Region to scope prices and stock to (default: site default region)")
	sitePath := flags.String("site", "", "YAML site profile")
	layout := flags.String("layout", defaults.Layout, "Catalog layout: html or api")
	baseURL := flags.String("base-url", defaults.BaseURL, "Base URL for relative seeds")
	currency := flags.String("currency", defaults.Currency, "Currency code when a page names none")
	maxPages := flags.Int("pages", defaults.MaxPages, "Maximum listing pages per seed (0 = unbounded)")
	parallelism := flags.Int("parallel", defaults.Parallelism, "Number of concurrent detail workers")
	delayMs := flags.Int("delay", 0, "Delay between requests (milliseconds)")
	randomDelayMs := flags.Int("random-delay", 0, "Random jitter added to delay (milliseconds)")
	timeout := flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	maxRetries := flags.Int("max-retries", defaults.MaxRetries, "Maximum retry attempts per URL")
	retryBackoffMs := flags.Int("retry-backoff", int(defaults.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flags.Int("retry-backoff-max", int(defaults.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	cacheSize := flags.Int("cache-size", defaults.CacheSize, "Recently queued detail URLs remembered to skip repeats")
	respectRobots := flags.Bool("respect-robots", false, "Respect robots.txt directives")
	outputFile := flags.String("output", defaults.OutputFile, "Output file path")
	outputFormat := flags.String("format", defaults.OutputFormat, "Output format: json, csv, or dual")
	verbose := flags.Bool("v", false, "Enable verbose logging")
	metricsAddr := flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	listRegions := flags.Bool("list-regions", false, "Print the known regions and exit")

	if err := flags.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := config.DefaultConfig()

	site := *sitePath
	if site == "" {
		site, _ = config.EnvString("SCRAPER_SITE")
	}
	if site != "" {
		profile, err := config.LoadSite(site)
		if err != nil {
			return nil, false, err
		}
		cfg.ApplySite(profile)
		cfg.SitePath = site
	}

	if err := applyEnv(cfg); err != nil {
		return nil, false, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.SeedURLs = seeds
		case "region":
			cfg.Region = *regionName
		case "layout":
			cfg.Layout = strings.ToLower(*layout)
		case "base-url":
			cfg.BaseURL = *baseURL
		case "currency":
			cfg.Currency = strings.ToUpper(*currency)
		case "pages":
			cfg.MaxPages = *maxPages
		case "parallel":
			cfg.Parallelism = *parallelism
		case "delay":
			cfg.Delay = time.Duration(*delayMs) * time.Millisecond
		case "random-delay":
			cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
		case "timeout":
			cfg.Timeout = *timeout
		case "max-retries":
			cfg.MaxRetries = *maxRetries
		case "retry-backoff":
			cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
		case "retry-backoff-max":
			cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
		case "cache-size":
			cfg.CacheSize = *cacheSize
		case "respect-robots":
			cfg.RespectRobotsTxt = *respectRobots
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "v":
			cfg.Verbose = *verbose
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})

	return cfg, *listRegions, nil
}

func applyEnv(cfg *config.Config) error {
	if seeds, ok := config.EnvList("SCRAPER_SEEDS"); ok {
		cfg.SeedURLs = seeds
	}
	if value, ok := config.EnvString("SCRAPER_REGION"); ok {
		cfg.Region = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

func printSummary(result *models.ScrapeResult, requests int, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.Interrupted {
		fmt.Println("Scrape interrupted")
	} else {
		fmt.Println("Scrape complete")
	}

	written := int64(0)
	if value, ok := metrics["written_records"].(int64); ok {
		written = value
	}
	duration := result.EndTime.Sub(result.StartTime)

	fmt.Printf("  Region:        %s\n", result.Region)
	fmt.Printf("  Records:       %d\n", written)
	fmt.Printf("  Listing pages: %d\n", result.ListingPages)
	fmt.Printf("  Detail pages:  %d\n", result.DetailPages)
	fmt.Printf("  Skipped:       %d (duplicates %d, extraction issues %d)\n",
		result.SkippedCount(), result.Duplicates, result.ExtractionIssues)
	if result.MalformedListings > 0 || result.CycleStops > 0 {
		fmt.Printf("  Listings:      %d malformed, %d cycle stops\n", result.MalformedListings, result.CycleStops)
	}
	fmt.Printf("  Requests:      %d\n", requests)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
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

package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/fetcher"
	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/metrics"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/region"
)

// ErrNoSeeds is returned by New when no seed URL survives resolution.
var ErrNoSeeds = errors.New("no seed urls configured")

const (
	errMalformedListing = "malformed_listing"
	errExtraction       = "extraction"
)

// Scraper walks category listings and extracts product records for one
// region. A Scraper may be Run repeatedly; runs share no state.
type Scraper struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	layout  parser.Layout
	region  region.Context
	seeds   []string
	Metrics *metrics.Metrics
}

type retryCounter interface {
	Retries() int
}

// New resolves the region and seeds. An unknown region fails here, before
// anything is fetched.
func New(cfg *config.Config, f fetcher.Fetcher, layout parser.Layout, selector *region.Selector) (*Scraper, error) {
	rc, err := selector.Resolve(cfg.Region)
	if err != nil {
		return nil, err
	}
	seeds, err := resolveSeeds(cfg, layout)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: f,
		layout:  layout,
		region:  rc,
		seeds:   seeds,
	}, nil
}

// Region returns the region every request of this scraper is scoped to.
func (s *Scraper) Region() region.Context {
	return s.region
}

// Seeds returns the normalized seed URLs.
func (s *Scraper) Seeds() []string {
	out := make([]string, len(s.seeds))
	copy(out, s.seeds)
	return out
}

func resolveSeeds(cfg *config.Config, layout parser.Layout) ([]string, error) {
	seen := make(map[string]struct{})
	var seeds []string
	for _, raw := range cfg.SeedURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var (
			abs string
			err error
		)
		if strings.Contains(raw, "://") || cfg.BaseURL == "" {
			abs, err = frontier.Normalize(raw)
		} else {
			abs, err = frontier.Resolve(cfg.BaseURL, raw)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", raw, err)
		}
		if layout.Name() == parser.LayoutAPI {
			if api, ok := parser.CatalogAPIURL(abs); ok {
				if abs, err = frontier.Normalize(api); err != nil {
					return nil, fmt.Errorf("invalid seed %q: %w", raw, err)
				}
			}
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		seeds = append(seeds, abs)
	}
	return seeds, nil
}

// Run crawls every seed's pagination chain and returns the records in
// discovery order. Per-URL failures are reported in the result, not as an
// error. A canceled ctx stops the crawl early and marks the result
// Interrupted.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	state, err := newCrawlState(s.seeds, s.cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	retriesBefore := 0
	if rc, ok := s.fetcher.(retryCounter); ok {
		retriesBefore = rc.Retries()
	}

	details := make(chan detailTask, s.cfg.DetailQueueSize)
	workers := s.cfg.Parallelism
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range details {
				if ctx.Err() != nil {
					continue
				}
				s.processDetail(ctx, state, task)
			}
		}()
	}

	s.crawlListings(ctx, state, details)
	close(details)
	wg.Wait()

	result := state.result()
	result.Region = s.region.ID
	result.StartTime = start
	result.EndTime = time.Now()
	result.Interrupted = ctx.Err() != nil
	if rc, ok := s.fetcher.(retryCounter); ok {
		result.RetryCount = rc.Retries() - retriesBefore
	}

	slog.Info("crawl finished",
		slog.String("region", result.Region),
		slog.Int("records", len(result.Records)),
		slog.Int("listing_pages", result.ListingPages),
		slog.Int("detail_pages", result.DetailPages),
		slog.Bool("interrupted", result.Interrupted),
	)
	return result, nil
}

func (s *Scraper) crawlListings(ctx context.Context, state *CrawlState, details chan<- detailTask) {
	for ctx.Err() == nil {
		task, ok := state.pop()
		if !ok {
			return
		}
		s.processListing(ctx, state, task, details)
	}
}

func (s *Scraper) processListing(ctx context.Context, state *CrawlState, task listingTask, details chan<- detailTask) {
	doc, err := s.fetcher.Fetch(ctx, fetcher.Request{URL: task.url, Phase: metrics.PhaseListing, Region: s.region})
	if err != nil {
		s.recordFetchFailure(ctx, state, task.url, err)
		return
	}

	page, err := s.layout.ParseListing(doc.Body, task.url)
	if err != nil {
		state.inc(&state.malformed)
		state.countError(errMalformedListing)
		s.Metrics.IncError(errMalformedListing)
		slog.Warn("malformed listing page",
			slog.String("url", task.url),
			slog.String("seed", task.seed),
			slog.Any("error", err),
		)
		return
	}
	state.inc(&state.listingPages)
	s.Metrics.IncListingPage()
	slog.Debug("listing page parsed",
		slog.String("url", page.URL),
		slog.Int("page", task.page),
		slog.Int("products", len(page.DetailURLs)),
	)

	for _, detailURL := range page.DetailURLs {
		dt, fresh := state.queueDetail(detailURL)
		if !fresh {
			s.Metrics.IncCacheHit()
			continue
		}
		select {
		case details <- dt:
		case <-ctx.Done():
			return
		}
	}

	if !page.HasNext() {
		return
	}
	switch {
	case state.wasVisited(page.NextURL):
		state.inc(&state.cycleStops)
		slog.Warn("pagination cycle detected",
			slog.String("url", page.URL),
			slog.String("next", page.NextURL),
			slog.String("seed", task.seed),
		)
	case s.cfg.MaxPages > 0 && task.page >= s.cfg.MaxPages:
		slog.Info("page bound reached",
			slog.String("seed", task.seed),
			slog.Int("max_pages", s.cfg.MaxPages),
		)
	case ctx.Err() != nil:
	default:
		state.push(listingTask{url: page.NextURL, seed: task.seed, page: task.page + 1})
	}
}

func (s *Scraper) processDetail(ctx context.Context, state *CrawlState, task detailTask) {
	doc, err := s.fetcher.Fetch(ctx, fetcher.Request{URL: task.url, Phase: metrics.PhaseDetail, Region: s.region})
	if err != nil {
		s.recordFetchFailure(ctx, state, task.url, err)
		return
	}
	state.inc(&state.detailPages)

	record, err := s.layout.Extract(doc.Body, task.url, s.region)
	if err != nil {
		state.inc(&state.extractionIssues)
		state.countError(errExtraction)
		s.Metrics.IncExtractionIssue(issueFields(err)...)
		slog.Warn("skipping product", slog.String("url", task.url), slog.Any("error", err))
		return
	}

	kept, duplicate := state.settle(task.seq, record)
	if duplicate {
		s.Metrics.IncDuplicate()
		slog.Debug("duplicate product settled",
			slog.String("id", record.ID),
			slog.String("url", task.url),
			slog.Bool("kept", kept),
		)
		return
	}
	s.Metrics.IncRecord()
}

func (s *Scraper) recordFetchFailure(ctx context.Context, state *CrawlState, url string, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	category := fetcher.ErrorType(err)
	state.addFailure(url, category)
	slog.Error("fetch failed",
		slog.String("url", url),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

func issueFields(err error) []string {
	var issue *parser.ExtractionIssue
	if !errors.As(err, &issue) {
		return nil
	}
	fields := append([]string(nil), issue.MissingFields...)
	if errors.Is(issue.Err, parser.ErrInvalidPrice) {
		fields = append(fields, parser.FieldPrice)
	}
	return fields
}

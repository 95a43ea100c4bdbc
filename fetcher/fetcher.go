// Package fetcher retrieves catalog documents with the region decoration
// applied, retrying transient failures with capped exponential backoff.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/metrics"
	"github.com/aluiziolira/go-scrape-catalog/region"
	"github.com/gocolly/colly/v2"
)

const (
	responseKey = "response"
	statusKey   = "status"
)

// Request names one document to fetch.
type Request struct {
	URL    string
	Phase  string
	Region region.Context
}

// Document is a fetched response body.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher retrieves documents. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Document, error)
}

// CollyFetcher issues requests through a synchronous colly collector.
type CollyFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *metrics.Metrics

	retries  atomic.Int64
	requests atomic.Int64
}

// New builds a fetcher from cfg. Requests are restricted to the hosts of the
// base URL and absolute seeds.
func New(cfg *config.Config, m *metrics.Metrics) (*CollyFetcher, error) {
	options := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	}
	if hosts := allowedHosts(cfg); len(hosts) > 0 {
		options = append(options, colly.AllowedDomains(hosts...))
	}
	collector := colly.NewCollector(options...)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.DisableCookies()
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(statusKey, r.StatusCode)
		}
	})

	return &CollyFetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   m,
	}, nil
}

// WithTransport replaces the HTTP transport.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Retries returns the number of retry attempts scheduled so far.
func (f *CollyFetcher) Retries() int {
	return int(f.retries.Load())
}

// Requests returns the number of HTTP requests issued so far.
func (f *CollyFetcher) Requests() int {
	return int(f.requests.Load())
}

// Fetch retrieves req.URL with the region decoration applied. Permanent
// failures and exhausted retries return a *FetchError; cancellation returns
// the context error.
func (f *CollyFetcher) Fetch(ctx context.Context, req Request) (*Document, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("parse url: %w", err)}
	}
	decorated := req.Region.Apply(target).String()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= f.cfg.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts = attempt

		doc, err := f.do(req, decorated)
		if err == nil {
			doc.URL = req.URL
			return doc, nil
		}

		lastErr = err
		category := ErrorType(err)
		f.metrics.IncError(category)
		slog.Debug("request error",
			slog.String("url", req.URL),
			slog.String("category", category),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if !Retryable(err) || attempt > f.cfg.MaxRetries {
			break
		}
		f.retries.Add(1)
		f.metrics.IncRetries()
		if err := sleep(ctx, f.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, &FetchError{URL: req.URL, Attempts: attempts, Err: lastErr}
}

func (f *CollyFetcher) do(req Request, target string) (*Document, error) {
	hdr := http.Header{}
	req.Region.Decorate(hdr)
	cctx := colly.NewContext()

	f.requests.Add(1)
	f.metrics.IncRequest(req.Phase)
	start := time.Now()
	err := f.collector.Request(http.MethodGet, target, nil, cctx, hdr)
	f.metrics.ObserveDuration(req.Phase, time.Since(start))

	if err != nil {
		status, _ := cctx.GetAny(statusKey).(int)
		return nil, classifyError(err, status)
	}
	resp, ok := cctx.GetAny(responseKey).(*colly.Response)
	if !ok {
		return nil, fmt.Errorf("no response recorded for %s", target)
	}

	doc := &Document{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
	if resp.Headers != nil {
		doc.ContentType = resp.Headers.Get("Content-Type")
	}
	return doc, nil
}

func (f *CollyFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowedHosts(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	var hosts []string
	add := func(raw string) {
		host, err := frontier.Host(raw)
		if err != nil {
			return
		}
		if _, dup := seen[host]; dup {
			return
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	if cfg.BaseURL != "" {
		add(cfg.BaseURL)
	}
	for _, seed := range cfg.SeedURLs {
		add(seed)
	}
	return hosts
}

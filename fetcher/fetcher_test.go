package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/metrics"
	"github.com/aluiziolira/go-scrape-catalog/region"
	"github.com/jarcoal/httpmock"
)

const listingURL = "http://shop.test/catalog/whisky"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://shop.test"
	cfg.SeedURLs = []string{"/catalog/whisky"}
	cfg.Parallelism = 2
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	return cfg
}

func testRegion() region.Context {
	return region.Context{
		ID:          "krasnodar",
		CookieName:  "city_uuid",
		CookieValue: "kr-1",
		QueryParam:  "city_uuid",
		QueryValue:  "kr-1",
	}
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *CollyFetcher {
	t.Helper()
	f, err := New(cfg, metrics.New())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)
	return f
}

func countingResponder(calls *int32, status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(calls, 1)
		return httpmock.NewStringResponse(status, body), nil
	}
}

func TestFetchAppliesRegion(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var gotCookie, gotQuery string
	transport.RegisterResponder("GET", listingURL, func(req *http.Request) (*http.Response, error) {
		gotCookie = req.Header.Get("Cookie")
		gotQuery = req.URL.Query().Get("city_uuid")
		resp := httpmock.NewStringResponse(http.StatusOK, "<html></html>")
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	})

	f := newTestFetcher(t, testConfig(), transport)
	doc, err := f.Fetch(context.Background(), Request{URL: listingURL, Phase: metrics.PhaseListing, Region: testRegion()})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if doc.URL != listingURL || doc.StatusCode != http.StatusOK {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("ContentType = %q", doc.ContentType)
	}
	if gotQuery != "kr-1" {
		t.Fatalf("region query = %q, want kr-1", gotQuery)
	}
	if gotCookie != "city_uuid=kr-1" {
		t.Fatalf("region cookie = %q", gotCookie)
	}
}

func TestFetchIgnoresServerCookies(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var cookies []string
	transport.RegisterResponder("GET", listingURL, func(req *http.Request) (*http.Response, error) {
		cookies = append(cookies, req.Header.Get("Cookie"))
		resp := httpmock.NewStringResponse(http.StatusOK, "<html></html>")
		resp.Header.Set("Set-Cookie", "city_uuid=msk-1; Path=/")
		return resp, nil
	})

	f := newTestFetcher(t, testConfig(), transport)
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), Request{URL: listingURL, Phase: metrics.PhaseListing, Region: testRegion()}); err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
	}
	for i, cookie := range cookies {
		if cookie != "city_uuid=kr-1" {
			t.Fatalf("request %d cookie = %q, want only the region cookie", i, cookie)
		}
	}
}

func TestFetchPermanentFailureNotRetried(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusForbidden, expected: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			var calls int32
			transport.RegisterResponder("GET", listingURL, countingResponder(&calls, tt.status, ""))

			f := newTestFetcher(t, testConfig(), transport)
			_, err := f.Fetch(context.Background(), Request{URL: listingURL, Phase: metrics.PhaseDetail, Region: testRegion()})

			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fetchErr.Attempts != 1 || atomic.LoadInt32(&calls) != 1 {
				t.Fatalf("attempts = %d, calls = %d, want 1", fetchErr.Attempts, calls)
			}
			if got := ErrorType(err); got != tt.expected {
				t.Fatalf("ErrorType() = %q, want %q", got, tt.expected)
			}
			if f.Retries() != 0 {
				t.Fatalf("retries = %d, want 0", f.Retries())
			}
		})
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var calls int32
	transport.RegisterResponder("GET", listingURL, countingResponder(&calls, http.StatusServiceUnavailable, ""))

	cfg := testConfig()
	f := newTestFetcher(t, cfg, transport)
	_, err := f.Fetch(context.Background(), Request{URL: listingURL, Phase: metrics.PhaseListing, Region: testRegion()})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if want := cfg.MaxRetries + 1; fetchErr.Attempts != want || int(atomic.LoadInt32(&calls)) != want {
		t.Fatalf("attempts = %d, calls = %d, want %d", fetchErr.Attempts, calls, want)
	}
	if ErrorType(err) != "server_error" {
		t.Fatalf("ErrorType() = %q", ErrorType(err))
	}
	if f.Retries() != cfg.MaxRetries {
		t.Fatalf("retries = %d, want %d", f.Retries(), cfg.MaxRetries)
	}
}

func TestFetchRecoversAfterRetry(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var calls int32
	transport.RegisterResponder("GET", listingURL, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return httpmock.NewStringResponse(http.StatusTooManyRequests, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	f := newTestFetcher(t, testConfig(), transport)
	doc, err := f.Fetch(context.Background(), Request{URL: listingURL, Phase: metrics.PhaseListing, Region: testRegion()})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(doc.Body) != "ok" || f.Retries() != 1 {
		t.Fatalf("body = %q, retries = %d", doc.Body, f.Retries())
	}
}

func TestFetchCanceled(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var calls int32
	transport.RegisterResponder("GET", listingURL, countingResponder(&calls, http.StatusOK, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t, testConfig(), transport)
	if _, err := f.Fetch(ctx, Request{URL: listingURL, Region: testRegion()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("canceled fetch must not issue requests")
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	f := &CollyFetcher{cfg: cfg}
	if got := f.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v", got)
	}
	if got := f.backoff(4); got != cfg.RetryBackoffMax {
		t.Fatalf("backoff(4) = %v, want %v", got, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
		retryable  bool
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout", retryable: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout", retryable: true},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection", retryable: true},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited", retryable: true},
		{name: "bad gateway", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server_error", retryable: true},
		{name: "gone", err: errors.New("Gone"), statusCode: http.StatusGone, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError(tt.err, tt.statusCode)
			if got := ErrorType(classified); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
			if got := Retryable(classified); got != tt.retryable {
				t.Fatalf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

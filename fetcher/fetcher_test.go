package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"laptopscraper/config"
)

func newTestFetcher(t *testing.T, mutate func(*config.Config)) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.SitemapIndexURL = "http://example.test/sitemap_index.xml"
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

func TestCollectorIsSynchronous(t *testing.T) {
	f, _ := newTestFetcher(t, nil)

	// attempt reads the captured body right after Visit returns, which is
	// only sound when the collector runs requests inline.
	if f.base.Async {
		t.Fatalf("collector is async; Visit would return before the response callbacks run")
	}
}

func TestFetchSuccess(t *testing.T) {
	f, transport := newTestFetcher(t, nil)
	transport.RegisterResponder("GET", "http://example.test/page",
		httpmock.NewStringResponder(http.StatusOK, "<html>ok</html>"))

	body, err := f.Fetch(context.Background(), "http://example.test/page")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchRetriesAreBounded(t *testing.T) {
	f, transport := newTestFetcher(t, func(cfg *config.Config) {
		cfg.MaxRetries = 2
	})
	transport.RegisterResponder("GET", "http://example.test/flaky",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	_, err := f.Fetch(context.Background(), "http://example.test/flaky")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}

	attempts := transport.GetCallCountInfo()["GET http://example.test/flaky"]
	if attempts != 3 {
		t.Fatalf("attempts = %d, want maxRetries+1 = 3", attempts)
	}
}

func TestFetchRecoversAfterTransientFailure(t *testing.T) {
	f, transport := newTestFetcher(t, nil)

	var calls int64
	transport.RegisterResponder("GET", "http://example.test/transient",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt64(&calls, 1) < 3 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "recovered"), nil
		})

	body, err := f.Fetch(context.Background(), "http://example.test/transient")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("body = %q", body)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestFetchNotFoundDoesNotRetry(t *testing.T) {
	f, transport := newTestFetcher(t, nil)
	transport.RegisterResponder("GET", "http://example.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := f.Fetch(context.Background(), "http://example.test/missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	attempts := transport.GetCallCountInfo()["GET http://example.test/missing"]
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 for 404", attempts)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	f, _ := newTestFetcher(t, func(cfg *config.Config) {
		cfg.RetryBackoff = 200 * time.Millisecond
		cfg.RetryBackoffMax = 500 * time.Millisecond
	})

	if got := f.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 200ms", got)
	}
	if got := f.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("backoff(2) = %v, want 400ms", got)
	}
	if got := f.backoff(4); got != 500*time.Millisecond {
		t.Fatalf("backoff(4) = %v, want capped at 500ms", got)
	}
}

// concurrencyTracker records the maximum number of simultaneous in-flight
// requests it observed.
type concurrencyTracker struct {
	mu      sync.Mutex
	current int
	max     int
}

func (ct *concurrencyTracker) RoundTrip(req *http.Request) (*http.Response, error) {
	ct.mu.Lock()
	ct.current++
	if ct.current > ct.max {
		ct.max = ct.current
	}
	ct.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	ct.mu.Lock()
	ct.current--
	ct.mu.Unlock()

	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestFetchConcurrencyBound(t *testing.T) {
	f, _ := newTestFetcher(t, func(cfg *config.Config) {
		cfg.MaxConcurrentFetches = 3
	})
	tracker := &concurrencyTracker{}
	f.WithTransport(tracker)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("http://example.test/product/%d", i)
			if _, err := f.Fetch(context.Background(), url); err != nil {
				t.Errorf("fetch %s: %v", url, err)
			}
		}(i)
	}
	wg.Wait()

	if tracker.max > 3 {
		t.Fatalf("observed %d simultaneous requests, bound is 3", tracker.max)
	}
}

func TestFetchContextCanceledWhileWaiting(t *testing.T) {
	f, _ := newTestFetcher(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://example.test/page")
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryableExcludesNotFound(t *testing.T) {
	if retryable(classifyError(nil, http.StatusNotFound)) {
		t.Fatalf("404 should not be retryable")
	}
	if !retryable(classifyError(nil, http.StatusInternalServerError)) {
		t.Fatalf("500 should be retryable")
	}
	if !retryable(classifyError(context.DeadlineExceeded, 0)) {
		t.Fatalf("timeout should be retryable")
	}
}

func TestErrorsByTypeSnapshot(t *testing.T) {
	f, transport := newTestFetcher(t, func(cfg *config.Config) {
		cfg.MaxRetries = 0
	})
	transport.RegisterResponder("GET", "http://example.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, _ = f.Fetch(context.Background(), "http://example.test/missing")

	snapshot := f.ErrorsByType()
	if snapshot["not_found"] != 1 {
		t.Fatalf("errors by type = %v, want one not_found", snapshot)
	}
}

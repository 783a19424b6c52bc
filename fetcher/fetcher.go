// Package fetcher implements the bounded-concurrency HTTP layer on top of a
// colly collector.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"laptopscraper/config"
)

// Fetcher issues single GET requests with retry, backoff, and a global
// admission gate. A task holds its concurrency slot for the full duration of
// all its retries, which bounds in-flight sockets at the cost of letting a
// slow host occupy slots; that trade-off is intentional.
type Fetcher struct {
	cfg     *config.Config
	base    *colly.Collector
	gate    chan struct{}
	Metrics *Metrics

	mu           sync.Mutex
	errorsByType map[string]int
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	// The collector stays synchronous: attempt relies on Visit returning
	// only after OnResponse/OnError ran. colly's Async option cannot express
	// that (it force-enables async regardless of its argument), so it must
	// not appear here.
	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		cfg:          cfg,
		base:         collector,
		gate:         make(chan struct{}, cfg.MaxConcurrentFetches),
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
	}, nil
}

// WithTransport replaces the underlying transport. Used by tests to inject
// an httpmock transport.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.base.WithTransport(rt)
}

// Fetch retrieves one URL, retrying transient failures with exponential
// backoff. Total attempts never exceed MaxRetries+1. The returned error is
// one of the typed errors in this package wrapped with the URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	select {
	case f.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire fetch slot: %w", ctx.Err())
	}
	f.Metrics.TrackInFlight(1)
	defer func() {
		<-f.gate
		f.Metrics.TrackInFlight(-1)
	}()

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			f.Metrics.IncRetries()
			if err := sleepCtx(ctx, f.backoff(attempt)); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
			}
		}

		f.Metrics.IncRequest("started")
		body, err := f.attempt(ctx, rawURL)
		if err == nil {
			f.Metrics.IncRequest("succeeded")
			return body, nil
		}

		lastErr = err
		f.recordError(err)
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

// ErrorsByType returns a snapshot of fetch errors grouped by category.
func (f *Fetcher) ErrorsByType() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return out
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	collector := f.base.Clone()

	var (
		body       []byte
		statusCode int
		attemptErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		attemptErr = err
	})

	start := time.Now()
	visitErr := f.visit(ctx, collector, rawURL)
	f.Metrics.ObserveDuration(time.Since(start))

	if attemptErr == nil {
		attemptErr = visitErr
	}
	if attemptErr != nil {
		return nil, classifyError(attemptErr, statusCode)
	}
	return body, nil
}

func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// backoff doubles per retry: attempt 1 waits the base unit, attempt k waits
// base * 2^(k-1), capped at RetryBackoffMax.
func (f *Fetcher) backoff(attempt int) time.Duration {
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

func (f *Fetcher) recordError(err error) {
	category := errorTypeLabel(err)
	f.Metrics.IncError(category)

	f.mu.Lock()
	f.errorsByType[category]++
	f.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

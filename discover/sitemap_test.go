package discover

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"laptopscraper/config"
	"laptopscraper/fetcher"
)

const sitemapIndex = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>http://example.test/product-sitemap1.xml</loc></sitemap>
  <sitemap><loc>http://example.test/product-sitemap2.xml</loc></sitemap>
  <sitemap><loc>http://example.test/page-sitemap.xml</loc></sitemap>
</sitemapindex>`

const productSitemap1 = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://example.test/product/alpha/</loc></url>
  <url><loc>http://example.test/product/beta/</loc></url>
</urlset>`

const productSitemap2 = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://example.test/product/beta/</loc></url>
  <url><loc>http://example.test/product/gamma/</loc></url>
</urlset>`

func newTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.SitemapIndexURL = "http://example.test/sitemap_index.xml"
	cfg.CategoryPrefix = "http://example.test/index.php/product-category/"
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config) (*fetcher.Fetcher, *httpmock.MockTransport) {
	t.Helper()

	f, err := fetcher.New(cfg)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

func TestSitemapDiscoverDeduplicatesLeafURLs(t *testing.T) {
	cfg := newTestConfig()
	f, transport := newTestFetcher(t, cfg)
	transport.RegisterResponder("GET", cfg.SitemapIndexURL,
		httpmock.NewStringResponder(http.StatusOK, sitemapIndex))
	transport.RegisterResponder("GET", "http://example.test/product-sitemap1.xml",
		httpmock.NewStringResponder(http.StatusOK, productSitemap1))
	transport.RegisterResponder("GET", "http://example.test/product-sitemap2.xml",
		httpmock.NewStringResponder(http.StatusOK, productSitemap2))

	d, err := NewSitemap(cfg, f)
	if err != nil {
		t.Fatalf("new sitemap discoverer: %v", err)
	}

	tasks, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks = %d, want 3 unique URLs", len(tasks))
	}

	seen := make(map[string]struct{})
	for _, task := range tasks {
		if _, dup := seen[task.URL]; dup {
			t.Fatalf("duplicate task URL %q", task.URL)
		}
		seen[task.URL] = struct{}{}
	}
	for _, want := range []string{
		"http://example.test/product/alpha/",
		"http://example.test/product/beta/",
		"http://example.test/product/gamma/",
	} {
		if _, ok := seen[want]; !ok {
			t.Fatalf("missing URL %q in %v", want, tasks)
		}
	}

	// The page sitemap does not match the product filter and must not be fetched.
	if calls := transport.GetCallCountInfo()["GET http://example.test/page-sitemap.xml"]; calls != 0 {
		t.Fatalf("page sitemap fetched %d times, want 0", calls)
	}
}

func TestSitemapDiscoverIndexFailure(t *testing.T) {
	cfg := newTestConfig()
	f, transport := newTestFetcher(t, cfg)
	transport.RegisterResponder("GET", cfg.SitemapIndexURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	d, err := NewSitemap(cfg, f)
	if err != nil {
		t.Fatalf("new sitemap discoverer: %v", err)
	}

	tasks, err := d.Discover(context.Background())
	if err == nil {
		t.Fatalf("expected error for unreachable index")
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %v, want none", tasks)
	}
}

func TestSitemapDiscoverPartialSitemapFailure(t *testing.T) {
	cfg := newTestConfig()
	f, transport := newTestFetcher(t, cfg)
	transport.RegisterResponder("GET", cfg.SitemapIndexURL,
		httpmock.NewStringResponder(http.StatusOK, sitemapIndex))
	transport.RegisterResponder("GET", "http://example.test/product-sitemap1.xml",
		httpmock.NewStringResponder(http.StatusOK, productSitemap1))
	transport.RegisterResponder("GET", "http://example.test/product-sitemap2.xml",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	d, err := NewSitemap(cfg, f)
	if err != nil {
		t.Fatalf("new sitemap discoverer: %v", err)
	}

	tasks, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2 from the healthy sitemap", len(tasks))
	}
}

func TestDiscovererSelection(t *testing.T) {
	cfg := newTestConfig()
	f, _ := newTestFetcher(t, cfg)

	cfg.DiscoveryMode = config.ModeSitemap
	d, err := New(cfg, f)
	if err != nil {
		t.Fatalf("sitemap selection: %v", err)
	}
	if _, ok := d.(*Sitemap); !ok {
		t.Fatalf("expected *Sitemap, got %T", d)
	}

	cfg.DiscoveryMode = config.ModePagination
	d, err = New(cfg, f)
	if err != nil {
		t.Fatalf("pagination selection: %v", err)
	}
	if _, ok := d.(*Pagination); !ok {
		t.Fatalf("expected *Pagination, got %T", d)
	}

	cfg.DiscoveryMode = "spider"
	if _, err := New(cfg, f); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSeenSetAdd(t *testing.T) {
	seen, err := newSeenSet()
	if err != nil {
		t.Fatalf("new seen set: %v", err)
	}

	if !seen.add("http://example.test/a") {
		t.Fatalf("first add should report new")
	}
	if seen.add("http://example.test/a") {
		t.Fatalf("second add should report duplicate")
	}
}

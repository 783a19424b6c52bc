package discover

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"

	"laptopscraper/config"
	"laptopscraper/fetcher"
	"laptopscraper/models"
)

// productSitemapFilter selects which nested sitemaps of the index hold
// product URLs.
const productSitemapFilter = "product-sitemap"

// Sitemap discovers product URLs by walking the sitemap index: index →
// product sitemaps → leaf <url><loc> entries.
type Sitemap struct {
	fetcher  *fetcher.Fetcher
	indexURL string
	filter   string
	seen     *seenSet
}

// NewSitemap builds the sitemap strategy.
func NewSitemap(cfg *config.Config, f *fetcher.Fetcher) (*Sitemap, error) {
	seen, err := newSeenSet()
	if err != nil {
		return nil, err
	}
	return &Sitemap{
		fetcher:  f,
		indexURL: cfg.SitemapIndexURL,
		filter:   productSitemapFilter,
		seen:     seen,
	}, nil
}

// Discover fetches the index, then every matching product sitemap. The
// nested fetches run concurrently; the fetcher's admission gate bounds them.
// Individual sitemap failures only shrink the result.
func (s *Sitemap) Discover(ctx context.Context) ([]models.CrawlTask, error) {
	body, err := s.fetcher.Fetch(ctx, s.indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index: %w", err)
	}

	sitemaps, err := s.productSitemaps(body)
	if err != nil {
		return nil, err
	}
	slog.Info("sitemap index parsed",
		slog.String("index", s.indexURL),
		slog.Int("product_sitemaps", len(sitemaps)),
	)

	var (
		mu    sync.Mutex
		tasks []models.CrawlTask
		wg    sync.WaitGroup
	)
	for _, sitemapURL := range sitemaps {
		wg.Add(1)
		go func(sitemapURL string) {
			defer wg.Done()

			body, err := s.fetcher.Fetch(ctx, sitemapURL)
			if err != nil {
				slog.Error("fetch product sitemap failed",
					slog.String("url", sitemapURL),
					slog.Any("error", err),
				)
				return
			}
			locations, err := leafLocations(body)
			if err != nil {
				slog.Error("parse product sitemap failed",
					slog.String("url", sitemapURL),
					slog.Any("error", err),
				)
				return
			}

			label := sitemapLabel(sitemapURL)
			mu.Lock()
			for _, loc := range locations {
				if s.seen.add(loc) {
					tasks = append(tasks, models.CrawlTask{URL: loc, Label: label})
				}
			}
			mu.Unlock()
		}(sitemapURL)
	}
	wg.Wait()

	return tasks, nil
}

// productSitemaps extracts the nested sitemap locations matching the
// product filter from the index document.
func (s *Sitemap) productSitemaps(body []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}

	var sitemaps []string
	for _, node := range xmlquery.Find(doc, "//loc") {
		loc := strings.TrimSpace(node.InnerText())
		if loc != "" && strings.Contains(loc, s.filter) {
			sitemaps = append(sitemaps, loc)
		}
	}
	return sitemaps, nil
}

func leafLocations(body []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	var locations []string
	for _, node := range xmlquery.Find(doc, "//url/loc") {
		if loc := strings.TrimSpace(node.InnerText()); loc != "" {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

func sitemapLabel(sitemapURL string) string {
	parsed, err := url.Parse(sitemapURL)
	if err != nil {
		return sitemapURL
	}
	return strings.TrimSuffix(path.Base(parsed.Path), ".xml")
}

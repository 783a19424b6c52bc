// Package discover produces the deduplicated set of product-page URLs for a
// run, via either sitemap traversal or category pagination.
package discover

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"laptopscraper/config"
	"laptopscraper/fetcher"
	"laptopscraper/models"
)

// Discoverer yields the crawl tasks for one run. A non-nil error means the
// discovery root itself was unreachable; the pipeline treats that as a
// zero-work degraded run, not a crash.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.CrawlTask, error)
}

// New selects the strategy named by cfg.DiscoveryMode.
func New(cfg *config.Config, f *fetcher.Fetcher) (Discoverer, error) {
	switch cfg.DiscoveryMode {
	case config.ModeSitemap:
		return NewSitemap(cfg, f)
	case config.ModePagination:
		return NewPagination(cfg, f)
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.DiscoveryMode)
	}
}

// seenCacheSize bounds the discovery dedup cache. Eviction can at worst let
// a duplicate task through; the aggregator re-enforces exact uniqueness.
const seenCacheSize = 1 << 16

type seenSet struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenSet() (*seenSet, error) {
	cache, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	return &seenSet{cache: cache}, nil
}

// add records the URL and reports whether it was new.
func (s *seenSet) add(rawURL string) bool {
	present, _ := s.cache.ContainsOrAdd(rawURL, struct{}{})
	return !present
}

func absoluteURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}

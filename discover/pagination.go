package discover

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"laptopscraper/config"
	"laptopscraper/fetcher"
	"laptopscraper/models"
)

// productLinkSelector matches the product anchors on a WooCommerce category
// listing page.
const productLinkSelector = "a.woocommerce-LoopProduct-link"

// Pagination discovers product URLs by scanning the site root for category
// links and walking each category's page sequence.
type Pagination struct {
	fetcher  *fetcher.Fetcher
	baseURL  string
	prefix   string
	maxPages int
	seen     *seenSet
}

type category struct {
	name string
	url  string
}

// NewPagination builds the pagination strategy.
func NewPagination(cfg *config.Config, f *fetcher.Fetcher) (*Pagination, error) {
	seen, err := newSeenSet()
	if err != nil {
		return nil, err
	}
	return &Pagination{
		fetcher:  f,
		baseURL:  cfg.BaseURL,
		prefix:   cfg.CategoryPrefix,
		maxPages: cfg.MaxPagesPerCategory,
		seen:     seen,
	}, nil
}

// Discover fetches the site root, extracts category links, and walks each
// category sequentially. Page N+1 of a category is only requested after
// page N parsed, because its existence is unknown before that.
func (p *Pagination) Discover(ctx context.Context) ([]models.CrawlTask, error) {
	body, err := p.fetcher.Fetch(ctx, p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch site root: %w", err)
	}

	categories, err := p.categories(body)
	if err != nil {
		return nil, err
	}
	slog.Info("categories discovered", slog.Int("count", len(categories)))

	var tasks []models.CrawlTask
	for _, cat := range categories {
		if ctx.Err() != nil {
			break
		}
		tasks = append(tasks, p.walkCategory(ctx, cat)...)
	}
	return tasks, nil
}

// categories collects anchors under the category prefix, deduplicated by
// exact URL with the first-seen label winning.
func (p *Pagination) categories(body []byte) ([]category, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse site root: %w", err)
	}

	var categories []category
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !strings.HasPrefix(href, p.prefix) || href == p.prefix {
			return
		}
		name := strings.TrimSpace(s.Text())
		if name == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		categories = append(categories, category{name: name, url: href})
	})
	return categories, nil
}

// walkCategory fetches page/1, page/2, … until a page 404s, errors, or
// yields zero product links. The 404 is the expected end-of-pagination
// signal, not a failure.
func (p *Pagination) walkCategory(ctx context.Context, cat category) []models.CrawlTask {
	var tasks []models.CrawlTask
	for page := 1; page <= p.maxPages; page++ {
		pageURL := cat.url
		if page > 1 {
			pageURL = fmt.Sprintf("%s/page/%d/", strings.TrimRight(cat.url, "/"), page)
		}

		body, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if fetcher.IsNotFound(err) {
				slog.Debug("pagination ended",
					slog.String("category", cat.name),
					slog.Int("page", page),
				)
			} else {
				slog.Error("category page fetch failed",
					slog.String("url", pageURL),
					slog.Any("error", err),
				)
			}
			break
		}

		links, err := p.productLinks(body, pageURL)
		if err != nil {
			slog.Error("category page parse failed",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			break
		}
		if len(links) == 0 {
			break
		}

		for _, link := range links {
			if p.seen.add(link) {
				tasks = append(tasks, models.CrawlTask{URL: link, Label: cat.name})
			}
		}
	}
	return tasks
}

func (p *Pagination) productLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	var links []string
	doc.Find(productLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if href == "" {
			return
		}
		if abs := absoluteURL(pageURL, href); abs != "" {
			links = append(links, abs)
		}
	})
	return links, nil
}

// Package extract turns fetched product pages into normalized records.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"laptopscraper/models"
)

// ErrNoContainer marks a page without a recognizable product container:
// not a product page, or an unrecognized layout. It is an expected absence,
// not a failure of the run.
var ErrNoContainer = errors.New("extract: no product container")

// Extractor applies a Policy to fetched pages.
type Extractor struct {
	policy Policy
	meta   *models.RunMetadata
	brands map[string]struct{}
}

// New builds an extractor. meta is attached by reference to every record.
func New(policy Policy, meta *models.RunMetadata) *Extractor {
	brands := make(map[string]struct{}, len(policy.KnownBrands))
	for _, b := range policy.KnownBrands {
		brands[strings.ToLower(b)] = struct{}{}
	}
	return &Extractor{policy: policy, meta: meta, brands: brands}
}

// Extract parses one page into a ProductRecord. Only the container check is
// fatal for the page; every scalar field degrades to absent when its whole
// fallback chain misses. Structural panics are recovered into an error so a
// malformed page can never abort the run.
func (e *Extractor) Extract(body []byte, pageURL string) (rec *models.ProductRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("extract %s: recovered: %v", pageURL, r)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	container := doc.Find(e.policy.ContainerSelector).First()
	if container.Length() == 0 {
		return nil, ErrNoContainer
	}

	title, _ := firstText(container, e.policy.Title)

	priceCurrent := "0"
	if text, ok := firstText(container, e.policy.PriceCurrent); ok {
		if normalized := NormalizePrice(text); normalized != "" {
			priceCurrent = normalized
		}
	}
	priceOriginal := ""
	if text, ok := firstText(container, e.policy.PriceOriginal); ok {
		priceOriginal = NormalizePrice(text)
	}

	brand, categoryPath := e.splitBrand(categoryLabels(container, e.policy.CategoryLabels))

	availability := models.InStock
	if container.Find(e.policy.OutOfStockMarker).Length() > 0 {
		availability = models.OutOfStock
	}

	description := firstOuterHTML(container, e.policy.Description)
	specs, specsFound := e.specifications(doc)

	return &models.ProductRecord{
		Identifier:      e.identifier(container, pageURL),
		SourceURL:       pageURL,
		Title:           title,
		Brand:           brand,
		CategoryPath:    categoryPath,
		PriceCurrent:    priceCurrent,
		PriceOriginal:   priceOriginal,
		Currency:        e.policy.Currency,
		Availability:    availability,
		Warranty:        e.warranty(doc, container),
		DescriptionHTML: description,
		Specifications:  specs,
		SpecsFound:      specsFound,
		Images:          e.images(container, pageURL),
		Rating:          firstAttr(doc.Selection, e.policy.Rating),
		Metadata:        e.meta,
	}, nil
}

// identifier prefers the native numeric ID from the container element,
// falling back to the canonicalized page URL.
func (e *Extractor) identifier(container *goquery.Selection, pageURL string) string {
	if id, ok := container.Attr("id"); ok {
		if idx := strings.LastIndex(id, "-"); idx >= 0 && idx+1 < len(id) {
			return id[idx+1:]
		}
	}
	return canonicalURL(pageURL)
}

func (e *Extractor) splitBrand(labels []string) (string, []string) {
	brand := ""
	for _, label := range labels {
		if _, ok := e.brands[strings.ToLower(label)]; ok {
			brand = label
			break
		}
	}

	path := make([]string, 0, len(labels))
	for _, label := range labels {
		if brand != "" && strings.EqualFold(label, brand) {
			continue
		}
		path = append(path, label)
	}
	return brand, path
}

// warranty prefers an image whose alt text mentions a warranty, respacing
// hyphenated tokens; otherwise the first page-text line mentioning one.
func (e *Extractor) warranty(doc *goquery.Document, container *goquery.Selection) string {
	found := ""
	container.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		alt := s.AttrOr("alt", "")
		if strings.Contains(strings.ToLower(alt), "warranty") {
			found = respaceWarranty(alt)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	for _, line := range strings.Split(doc.Text(), "\n") {
		if strings.Contains(strings.ToLower(line), "warranty") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// specifications reads the structured attribute table, falling back to
// colon-delimited lines inside the specification block. The boolean reports
// whether any source yielded entries.
func (e *Extractor) specifications(doc *goquery.Document) (map[string]string, bool) {
	specs := make(map[string]string)

	doc.Find(e.policy.SpecTable).First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if header != "" && value != "" {
			specs[header] = value
		}
	})
	if len(specs) > 0 {
		return specs, true
	}

	block := doc.Find(e.policy.SpecBlock).First()
	if block.Length() > 0 {
		for _, line := range strings.Split(block.Text(), "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if key != "" && value != "" {
				specs[key] = value
			}
		}
	}
	return specs, len(specs) > 0
}

func (e *Extractor) images(container *goquery.Selection, pageURL string) []string {
	urls := make([]string, 0, 4)
	seen := make(map[string]struct{})

	for _, rule := range e.policy.Images {
		container.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			raw, ok := s.Attr(rule.Attr)
			if !ok || raw == "" {
				return
			}
			abs := absoluteURL(pageURL, raw)
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			urls = append(urls, abs)
		})
		if len(urls) > 0 {
			break
		}
	}
	return urls
}

var priceRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// NormalizePrice reduces a price text to digits and at most one decimal
// point: the first numeric run is kept and thousands separators stripped.
// The function is idempotent. An empty string means no number was found.
func NormalizePrice(text string) string {
	match := priceRe.FindString(text)
	if match == "" {
		return ""
	}
	return strings.ReplaceAll(match, ",", "")
}

func respaceWarranty(alt string) string {
	alt = strings.ReplaceAll(alt, "Year-warranty", " Year Warranty")
	alt = strings.ReplaceAll(alt, "-", " ")
	return strings.Join(strings.Fields(alt), " ")
}

func firstText(root *goquery.Selection, selectors []string) (string, bool) {
	for _, selector := range selectors {
		node := root.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text, true
		}
	}
	return "", false
}

func firstOuterHTML(root *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		node := root.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if html, err := goquery.OuterHtml(node); err == nil && strings.TrimSpace(html) != "" {
			return html
		}
	}
	return ""
}

func firstAttr(root *goquery.Selection, rules []AttrRule) string {
	for _, rule := range rules {
		node := root.Find(rule.Selector).First()
		if node.Length() == 0 {
			continue
		}
		if value := strings.TrimSpace(node.AttrOr(rule.Attr, "")); value != "" {
			return value
		}
	}
	return ""
}

func categoryLabels(container *goquery.Selection, selector string) []string {
	labels := make([]string, 0, 4)
	container.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			labels = append(labels, text)
		}
	})
	return labels
}

func canonicalURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSuffix(parsed.String(), "/")
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

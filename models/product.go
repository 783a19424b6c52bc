// Package models defines the data structures shared across the scraper.
package models

import "time"

// Availability is the binary stock state read off a product page.
type Availability string

const (
	InStock    Availability = "In Stock"
	OutOfStock Availability = "Out of Stock"
)

// RunMetadata describes one scrape run. A single instance is shared by
// reference across every record of the run and is read-only after start.
type RunMetadata struct {
	SourceWebsite   string `json:"source_website"`
	ScrapeTimestamp string `json:"scrape_timestamp"`
	ContactPhone    string `json:"shop_contact_phone,omitempty"`
	ContactWhatsApp string `json:"shop_contact_whatsapp,omitempty"`
}

// ProductRecord is the normalized unit of output.
//
// Specifications carries an explicit SpecsFound flag so an empty map can be
// told apart from "no specification source on the page"; both fields always
// serialize.
type ProductRecord struct {
	Identifier      string            `json:"identifier"`
	SourceURL       string            `json:"source_url"`
	Title           string            `json:"title,omitempty"`
	Brand           string            `json:"brand,omitempty"`
	CategoryPath    []string          `json:"category_path"`
	PriceCurrent    string            `json:"price_current"`
	PriceOriginal   string            `json:"price_original,omitempty"`
	Currency        string            `json:"currency"`
	Availability    Availability      `json:"availability"`
	Warranty        string            `json:"warranty,omitempty"`
	DescriptionHTML string            `json:"description_html,omitempty"`
	Specifications  map[string]string `json:"specifications"`
	SpecsFound      bool              `json:"specs_found"`
	Images          []string          `json:"image_urls"`
	Rating          string            `json:"rating,omitempty"`
	Metadata        *RunMetadata      `json:"metadata"`
}

// CrawlTask is one unit of work produced by discovery. The retry attempt
// counter is owned by the fetcher's retry loop, not by the task.
type CrawlTask struct {
	URL   string
	Label string
}

// RunSummary aggregates the counters of one completed run.
// Failed is derived: Discovered - Extracted - Duplicates.
type RunSummary struct {
	Discovered int
	Extracted  int
	Duplicates int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunResult is what the coordinator hands back to the caller.
type RunResult struct {
	Records []*ProductRecord
	Summary RunSummary
}

// ExtractionInfo is the artifact header block.
type ExtractionInfo struct {
	TotalProductsExtracted int    `json:"total_products_extracted"`
	ExtractionTimestamp    string `json:"extraction_timestamp"`
}

// Artifact is the JSON document written at the end of a run.
type Artifact struct {
	ExtractionInfo ExtractionInfo   `json:"extraction_info"`
	Products       []*ProductRecord `json:"products"`
}

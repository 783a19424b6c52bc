package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"laptopscraper/models"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.ProductRecord) error
	Close() error
	Validate() error
}

// ArtifactWriter writes the enveloped JSON document:
// {"extraction_info": {...}, "products": [...]}.
type ArtifactWriter struct {
	filename  string
	file      *os.File
	timestamp string

	mu      sync.Mutex
	records []*models.ProductRecord
}

// NewArtifactWriter initialises the artifact writer. timestamp is the
// run's scrape timestamp, emitted as extraction_timestamp.
func NewArtifactWriter(filename, timestamp string) (*ArtifactWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}

	return &ArtifactWriter{
		filename:  filename,
		file:      f,
		timestamp: timestamp,
	}, nil
}

// Write appends records and rewrites the full document, so the file is a
// valid artifact after every call.
func (aw *ArtifactWriter) Write(records []*models.ProductRecord) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	aw.records = append(aw.records, records...)

	if err := aw.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate artifact file: %w", err)
	}
	if _, err := aw.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind artifact file: %w", err)
	}

	artifact := models.Artifact{
		ExtractionInfo: models.ExtractionInfo{
			TotalProductsExtracted: len(aw.records),
			ExtractionTimestamp:    aw.timestamp,
		},
		Products: aw.records,
	}

	encoder := json.NewEncoder(aw.file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(artifact); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (aw *ArtifactWriter) Close() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.file.Close()
}

// Validate re-reads the artifact and checks the header count matches the
// product list.
func (aw *ArtifactWriter) Validate() error {
	data, err := os.ReadFile(aw.filename)
	if err != nil {
		return fmt.Errorf("read artifact file: %w", err)
	}

	var artifact models.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	if artifact.ExtractionInfo.TotalProductsExtracted != len(artifact.Products) {
		return fmt.Errorf("artifact count mismatch: header says %d, found %d products",
			artifact.ExtractionInfo.TotalProductsExtracted, len(artifact.Products))
	}
	return nil
}

// CSVWriter writes flat records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

var csvHeader = []string{
	"identifier", "source_url", "title", "brand", "category_path",
	"price_current", "price_original", "currency", "availability",
	"warranty", "rating", "image_urls", "specs_found",
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []*models.ProductRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range records {
		row := []string{
			record.Identifier,
			record.SourceURL,
			record.Title,
			record.Brand,
			strings.Join(record.CategoryPath, " > "),
			record.PriceCurrent,
			record.PriceOriginal,
			record.Currency,
			string(record.Availability),
			record.Warranty,
			record.Rating,
			strings.Join(record.Images, ";"),
			strconv.FormatBool(record.SpecsFound),
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

package pipeline

import (
	"fmt"
	"sync"

	"laptopscraper/models"
)

// DualWriter emits the JSON artifact and a flat CSV side by side.
type DualWriter struct {
	artifact *ArtifactWriter
	csv      *CSVWriter
	mu       sync.Mutex
}

// NewDualWriter creates writers for both output files.
func NewDualWriter(jsonFilename, csvFilename, timestamp string) (*DualWriter, error) {
	artifact, err := NewArtifactWriter(jsonFilename, timestamp)
	if err != nil {
		return nil, fmt.Errorf("create artifact writer: %w", err)
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		artifact.Close()
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	return &DualWriter{
		artifact: artifact,
		csv:      csvWriter,
	}, nil
}

// Write writes records to both outputs.
func (dw *DualWriter) Write(records []*models.ProductRecord) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.artifact.Write(records); err != nil {
		return fmt.Errorf("artifact write failed: %w", err)
	}
	if err := dw.csv.Write(records); err != nil {
		return fmt.Errorf("csv write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.artifact.Close(); err != nil {
		errs = append(errs, fmt.Errorf("artifact close failed: %w", err))
	}
	if err := dw.csv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.artifact.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("artifact validation failed: %w", err))
	}
	if err := dw.csv.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv validation failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

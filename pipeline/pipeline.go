// Package pipeline wires discovery, fetching, and extraction into a bounded
// worker pool and aggregates the deduplicated result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"laptopscraper/config"
	"laptopscraper/discover"
	"laptopscraper/extract"
	"laptopscraper/fetcher"
	"laptopscraper/models"
)

// Coordinator runs one crawl: discovery produces tasks, workers fetch and
// extract, a single aggregator goroutine consumes results. Because only the
// aggregator touches the output collection, no lock guards it.
type Coordinator struct {
	cfg        *config.Config
	fetcher    *fetcher.Fetcher
	extractor  *extract.Extractor
	discoverer discover.Discoverer
}

// NewCoordinator assembles a pipeline from its stages.
func NewCoordinator(cfg *config.Config, f *fetcher.Fetcher, e *extract.Extractor, d discover.Discoverer) *Coordinator {
	return &Coordinator{cfg: cfg, fetcher: f, extractor: e, discoverer: d}
}

// Run executes the pipeline to completion and returns the aggregated
// records with a run summary. Per-task failures only reduce the output
// count. A failed discovery root yields an empty, still-valid result. When
// ctx is canceled mid-run, the records aggregated so far are returned.
func (c *Coordinator) Run(ctx context.Context) (*models.RunResult, error) {
	start := time.Now()

	tasks, err := c.discoverer.Discover(ctx)
	if err != nil {
		slog.Error("discovery failed, completing with empty output", slog.Any("error", err))
		return &models.RunResult{
			Records: []*models.ProductRecord{},
			Summary: models.RunSummary{StartedAt: start, FinishedAt: time.Now()},
		}, nil
	}
	slog.Info("discovery complete", slog.Int("tasks", len(tasks)))

	workers := c.cfg.MaxConcurrentFetches
	taskCh := make(chan models.CrawlTask)
	resultCh := make(chan *models.ProductRecord, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, taskCh, resultCh)
		}()
	}

	records := make([]*models.ProductRecord, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	duplicates := 0
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for record := range resultCh {
			if _, dup := seen[record.Identifier]; dup {
				duplicates++
				continue
			}
			seen[record.Identifier] = struct{}{}
			records = append(records, record)
		}
	}()

feed:
	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			slog.Info("stopping task dispatch", slog.Any("cause", ctx.Err()))
			break feed
		}
	}
	close(taskCh)
	wg.Wait()
	close(resultCh)
	<-aggDone

	summary := models.RunSummary{
		Discovered: len(tasks),
		Extracted:  len(records),
		Duplicates: duplicates,
		Failed:     len(tasks) - len(records) - duplicates,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	slog.Info("run complete",
		slog.Int("discovered", summary.Discovered),
		slog.Int("extracted", summary.Extracted),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("failed", summary.Failed),
	)

	return &models.RunResult{Records: records, Summary: summary}, nil
}

func (c *Coordinator) worker(ctx context.Context, taskCh <-chan models.CrawlTask, resultCh chan<- *models.ProductRecord) {
	for task := range taskCh {
		body, err := c.fetcher.Fetch(ctx, task.URL)
		if err != nil {
			slog.Debug("task fetch failed",
				slog.String("url", task.URL),
				slog.String("category", task.Label),
				slog.Any("error", err),
			)
			continue
		}

		record, err := c.extractor.Extract(body, task.URL)
		if err != nil {
			if errors.Is(err, extract.ErrNoContainer) {
				slog.Debug("no product container", slog.String("url", task.URL))
			} else {
				slog.Debug("extract failed",
					slog.String("url", task.URL),
					slog.Any("error", err),
				)
			}
			continue
		}

		resultCh <- record
	}
}

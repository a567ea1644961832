package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawl/internal/model"
)

// DefaultConcurrency is the number of seeds crawled at once unless
// WithConcurrency says otherwise.
const DefaultConcurrency = 1

// BatchProcessor crawls multiple seeds and delivers their records through
// one pipeline. It uses errgroup to manage goroutines and respect the
// concurrency limit.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on delivering records
// 2. It owns the per-seed lifecycle (spider, stats, timing)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// spiders creates the spider of each job. A fresh spider per job lets
	// per-site settings (depth, patterns) differ between seeds while the
	// factory shares the fetcher and rate limiter.
	spiders SpiderFactory

	// pipeline receives every record of every job.
	pipeline *Pipeline

	// concurrency is the maximum number of seeds crawled at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// now is the clock for run timing.
	now func() time.Time
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of seeds crawled at once.
// Non-positive values keep the default of one.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchClock sets the clock used for timing runs.
func WithBatchClock(now func() time.Time) BatchOption {
	return func(b *BatchProcessor) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(spiders SpiderFactory, p *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		spiders:     spiders,
		pipeline:    p,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns one summary per seed in input
// order.
//
// A failing seed never stops the others: its summary carries the error.
// When ctx is cancelled, running seeds stop after their current page and
// seeds that had not started get a summary with the context error. The
// returned error is ctx.Err(), so callers can tell an interrupted batch from
// a completed one.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each seed gets its own goroutine, but only 'concurrency' goroutines
// run simultaneously.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) (*model.RunSummary, error) {
	bp.logger.Info("starting batch",
		"seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	summary := &model.RunSummary{
		Started: bp.now(),
		Seeds:   make([]model.SeedSummary, len(seeds)),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			job := Job{Index: i, Seed: seed}
			result := bp.processJob(ctx, job)

			mu.Lock()
			summary.Seeds[i] = result
			mu.Unlock()
			return nil
		})
	}

	// Jobs never return errors; failures are recorded in their summaries.
	_ = g.Wait()
	summary.Finished = bp.now()

	bp.logger.Info("batch complete",
		"seeds", len(seeds),
		"fetched_ok", summary.Total().FetchedOK,
		"elapsed", summary.Duration(),
	)

	return summary, ctx.Err()
}

// processJob crawls one seed through the pipeline.
func (bp *BatchProcessor) processJob(ctx context.Context, job Job) model.SeedSummary {
	result := model.SeedSummary{Seed: job.Seed}

	// Check for cancellation before starting
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	started := bp.now()

	spider, err := bp.spiders(job)
	if err != nil {
		result.Error = fmt.Sprintf("configure spider: %v", err)
		bp.logger.Error("seed skipped", "seed", job.Seed, "error", err)
		return result
	}

	if err := bp.pipeline.Begin(ctx, job); err != nil {
		result.Error = err.Error()
		return result
	}

	bp.logger.Info("crawling seed",
		"seed", job.Seed,
		"index", job.Index+1,
	)

	run := spider.Crawl(job.Seed)
	var deliverErr error
	for rec := range run.Pages(ctx) {
		if deliverErr = bp.pipeline.Deliver(ctx, job, rec); deliverErr != nil {
			break
		}
	}

	result.Stats = run.Stats()
	switch {
	case deliverErr != nil:
		result.Error = deliverErr.Error()
	case run.Err() != nil:
		result.Error = run.Err().Error()
	}
	result.Duration = bp.now().Sub(started)

	if err := bp.pipeline.End(ctx, job, result); err != nil && result.Error == "" {
		result.Error = err.Error()
	}

	bp.logger.Info("seed complete",
		"seed", job.Seed,
		"fetched_ok", result.Stats.FetchedOK,
		"error", result.Error,
	)
	return result
}

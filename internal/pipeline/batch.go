package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the number of seeds crawled at the same time
// when no concurrency is configured.
const DefaultBatchConcurrency = 2

// BatchProcessor handles concurrent crawling of multiple seeds.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a single seed
// 2. Each seed gets its own crawl engine with its own politeness settings
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each job.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent jobs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each job so pipeline state
// never leaks between seeds.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch runs every job concurrently, at most the configured
// concurrency at a time.
//
// A failed job does not stop the others; its error is recorded in the
// job. The returned error is non-nil only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []*Job) error {
	return bp.ProcessBatchWithCallback(ctx, jobs, nil)
}

// ProcessBatchWithCallback is ProcessBatch with a callback invoked after
// each job finishes, with the job's index in jobs. The callback runs on the
// job's goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, jobs []*Job, callback func(job *Job, index int)) error {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(jobs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				job.Err = err
				return err
			}

			bp.logger.Info("crawling seed",
				"url", job.Seed,
				"index", i+1,
				"total", len(jobs),
			)

			if err := bp.pipelineFactory().Execute(gctx, job); err != nil {
				bp.logger.Warn("seed failed",
					"url", job.Seed,
					"error", err,
				)
			}

			if callback != nil {
				callback(job, i)
			}
			// Failures stay in the job so the other seeds keep running.
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_seeds", len(jobs),
		"elapsed", time.Since(startTime),
	)

	if err == nil {
		err = ctx.Err()
	}
	return err
}

package runtime

import (
	"context"
	"sync"

	"github.com/wehubfusion/trestle/pkg/concurrency"
	"go.uber.org/zap"
)

// WorkerPool manages concurrent processing of batch items.
// It integrates with the concurrency package's Limiter so in-flight calls stay
// bounded across every pool in the process.
type WorkerPool struct {
	workers    int
	useLimiter bool
	limiter    *concurrency.Limiter
	jobChan    chan BatchItem
	resultChan chan ItemResult
	wg         sync.WaitGroup
	processor  ItemProcessor
	logger     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config BatchConfig, processor ItemProcessor, limiter *concurrency.Limiter, logger *zap.Logger) *WorkerPool {
	config.Validate()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerPool{
		workers:    config.Workers,
		useLimiter: config.UseLimiter,
		limiter:    limiter,
		jobChan:    make(chan BatchItem, config.BufferSize),
		resultChan: make(chan ItemResult, config.BufferSize),
		processor:  processor,
		logger:     logger,
	}
}

// Start starts the workers. Every worker keeps draining the job channel until it
// is closed, so each submitted item produces exactly one result.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Debug("starting worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("buffer_size", cap(wp.jobChan)),
	)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	go func() {
		wp.wg.Wait()
		close(wp.resultChan)
	}()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for item := range wp.jobChan {
		wp.resultChan <- wp.processJob(ctx, item, id)
	}
	wp.logger.Debug("worker stopping, job channel closed", zap.Int("worker_id", id))
}

func (wp *WorkerPool) processJob(ctx context.Context, item BatchItem, workerId int) ItemResult {
	// Items not yet started when the batch is aborted are skipped.
	if err := ctx.Err(); err != nil {
		return cancelledResult(item.Index, err)
	}

	if wp.useLimiter && wp.limiter != nil {
		if err := wp.limiter.Acquire(ctx); err != nil {
			return cancelledResult(item.Index, err)
		}
		defer wp.limiter.Release()
	}

	result := wp.processor.ProcessItem(ctx, item)
	result.PairedItem = item.Index

	if !result.Success {
		wp.logger.Debug("item failed",
			zap.Int("worker_id", workerId),
			zap.Int("item_index", item.Index),
			zap.String("error", result.ErrorMessage),
		)
	}
	return result
}

// SubmitAll queues every item and closes the job channel. It must be called
// exactly once after Start.
func (wp *WorkerPool) SubmitAll(items []BatchItem) {
	go func() {
		defer close(wp.jobChan)
		for _, item := range items {
			wp.jobChan <- item
		}
	}()
}

// Results returns the result channel. It is closed once every worker has exited.
func (wp *WorkerPool) Results() <-chan ItemResult {
	return wp.resultChan
}

func cancelledResult(index int, err error) ItemResult {
	r := ErrorResult(index, err)
	r.cancelled = true
	return r
}

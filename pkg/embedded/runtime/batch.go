package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/wehubfusion/trestle/pkg/concurrency"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ItemFunc handles the item at index and returns its payload.
type ItemFunc func(ctx context.Context, index int, item Item) (interface{}, error)

// BatchExecutor drives an ItemFunc over a batch and applies the failure policy.
type BatchExecutor struct {
	config  BatchConfig
	limiter *concurrency.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// BatchOption configures a BatchExecutor.
type BatchOption func(*BatchExecutor)

// WithBatchLimiter gates every item on limiter.
func WithBatchLimiter(limiter *concurrency.Limiter) BatchOption {
	return func(e *BatchExecutor) {
		e.limiter = limiter
	}
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(e *BatchExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBatchTracer sets the tracer used for batch and item spans.
func WithBatchTracer(tracer trace.Tracer) BatchOption {
	return func(e *BatchExecutor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewBatchExecutor creates a batch executor.
func NewBatchExecutor(config BatchConfig, opts ...BatchOption) *BatchExecutor {
	config.Validate()
	e := &BatchExecutor{
		config: config,
		logger: zap.NewNop(),
		tracer: otel.Tracer("trestle/runtime"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run calls fn for every item and returns one result per item, in input order.
//
// With continueOnFail a failing item becomes an error result. Otherwise the
// first failure aborts the batch: no results are returned and the error is a
// *ProcessingError carrying the failing item's index.
func (e *BatchExecutor) Run(ctx context.Context, node Identity, items []Item, continueOnFail bool, fn ItemFunc) ([]ItemResult, error) {
	ctx, span := e.tracer.Start(ctx, "runtime.Batch",
		trace.WithAttributes(
			attribute.String("node.id", node.NodeId()),
			attribute.String("node.plugin_type", node.PluginType()),
			attribute.Int("batch.items", len(items)),
			attribute.Int("batch.workers", e.config.Workers),
			attribute.Bool("batch.continue_on_fail", continueOnFail),
		))
	defer span.End()

	start := time.Now()
	metrics := &batchMetrics{}
	processor := e.itemProcessor(fn, metrics)

	var (
		results []ItemResult
		err     error
	)
	if e.config.Sequential() || len(items) <= 1 {
		results, err = e.runSequential(ctx, node, items, continueOnFail, processor)
	} else {
		results, err = e.runParallel(ctx, node, items, continueOnFail, processor)
	}

	duration := time.Since(start)
	summary := metrics.snapshot(e.config.Workers)
	span.SetAttributes(summary.spanAttributes()...)
	span.SetAttributes(attribute.Int64("processing.duration_ms", duration.Milliseconds()))

	fields := append([]zap.Field{
		zap.String("node_id", node.NodeId()),
		zap.Duration("duration", duration),
	}, summary.logFields()...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("batch aborted", append(fields,
			zap.Int("item_index", ItemIndexOf(err)),
			zap.Error(err))...)
		return nil, err
	}

	span.SetStatus(codes.Ok, "batch processed")
	e.logger.Debug("batch processed", append(fields, zap.Int("items", len(results)))...)
	return results, nil
}

// itemProcessor wraps fn with a span, metrics and the ItemResult mapping.
func (e *BatchExecutor) itemProcessor(fn ItemFunc, metrics *batchMetrics) ItemProcessor {
	return ItemProcessorFunc(func(ctx context.Context, item BatchItem) ItemResult {
		ctx, span := e.tracer.Start(ctx, "runtime.Item",
			trace.WithAttributes(attribute.Int("item.index", item.Index)))
		defer span.End()

		start := time.Now()
		payload, err := fn(ctx, item.Index, item.Data)
		if err != nil {
			metrics.recordError(time.Since(start))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ErrorResult(item.Index, err)
		}

		metrics.recordProcessed(time.Since(start))
		span.SetStatus(codes.Ok, "")
		return SuccessResult(item.Index, payload)
	})
}

func (e *BatchExecutor) runSequential(ctx context.Context, node Identity, items []Item, continueOnFail bool, processor ItemProcessor) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := e.acquireAndProcess(ctx, processor, BatchItem{Index: i, Data: item})
		if result.cancelled {
			return nil, result.Err
		}
		if !result.Success && !continueOnFail {
			return nil, NewProcessingError(node.NodeId(), node.Label(), node.PluginType(), i, "execute", result.Err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (e *BatchExecutor) acquireAndProcess(ctx context.Context, processor ItemProcessor, item BatchItem) ItemResult {
	if e.config.UseLimiter && e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return cancelledResult(item.Index, err)
		}
		defer e.limiter.Release()
	}
	return processor.ProcessItem(ctx, item)
}

func (e *BatchExecutor) runParallel(ctx context.Context, node Identity, items []Item, continueOnFail bool, processor ItemProcessor) ([]ItemResult, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewWorkerPool(e.config, processor, e.limiter, e.logger)
	pool.Start(batchCtx)

	jobs := make([]BatchItem, len(items))
	for i, item := range items {
		jobs[i] = BatchItem{Index: i, Data: item}
	}
	pool.SubmitAll(jobs)

	results := make([]ItemResult, len(items))
	filled := make([]bool, len(items))
	var failure *ItemResult

	for result := range pool.Results() {
		if result.cancelled {
			continue
		}
		if !result.Success && !continueOnFail {
			// In-flight items torn down by our own cancel are not failures.
			if failure != nil && errors.Is(result.Err, context.Canceled) {
				continue
			}
			if failure == nil || result.PairedItem < failure.PairedItem {
				r := result
				failure = &r
			}
			cancel()
			continue
		}
		results[result.PairedItem] = result
		filled[result.PairedItem] = true
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if failure != nil {
		return nil, NewProcessingError(node.NodeId(), node.Label(), node.PluginType(), failure.PairedItem, "execute", failure.Err)
	}
	for i := range filled {
		if !filled[i] {
			return nil, NewProcessingError(node.NodeId(), node.Label(), node.PluginType(), i, "execute", ErrIncompleteBatch)
		}
	}
	return results, nil
}

// Package runner serves Trestle batch requests over NATS request/reply.
// Requests are queue-subscribed so several workers can share a subject, and each
// request is handled on a bounded pool of worker goroutines.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/trestle/internal/tracing"
	"github.com/wehubfusion/trestle/pkg/message"
)

// Processor defines the interface for batch processing implementations.
type Processor interface {
	Process(ctx context.Context, req *message.BatchRequest) (*message.BatchResponse, error)
}

// Runner receives batch requests on a NATS subject and replies with their results.
type Runner struct {
	conn            *nats.Conn
	processor       Processor
	handler         message.Handler
	subject         string
	queue           string
	numWorkers      int
	logger          *zap.Logger
	processTimeout  time.Duration
	tracer          trace.Tracer
	tracingShutdown func(context.Context) error
}

// NewRunner creates a new Runner instance with a connected NATS connection.
// subject is the request subject and queue the queue group shared by workers.
// numWorkers caps how many requests are processed at once.
// processTimeout specifies the maximum time allowed for processing a single request.
// tracingConfig is optional - if nil, no tracing will be set up.
func NewRunner(conn *nats.Conn, processor Processor, subject, queue string, numWorkers int, processTimeout time.Duration, logger *zap.Logger, tracingConfig *TracingConfig) (*Runner, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if subject == "" {
		return nil, errors.New("subject cannot be empty")
	}

	r, err := newRunner(processor, numWorkers, processTimeout, logger)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.subject = subject
	r.queue = queue

	if tracingConfig != nil {
		shutdown, err := tracing.SetupTracing(context.Background(), tracingConfig.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			r.tracingShutdown = shutdown
			logger.Info("Tracing setup complete",
				zap.String("service", tracingConfig.ServiceName),
				zap.String("endpoint", tracingConfig.OTLPEndpoint))
		}
	}

	return r, nil
}

func newRunner(processor Processor, numWorkers int, processTimeout time.Duration, logger *zap.Logger) (*Runner, error) {
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}
	if numWorkers <= 0 {
		return nil, errors.New("numWorkers must be greater than 0")
	}
	if processTimeout <= 0 {
		return nil, errors.New("processTimeout must be greater than 0")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Runner{
		processor:      processor,
		numWorkers:     numWorkers,
		processTimeout: processTimeout,
		logger:         logger,
		tracer:         otel.Tracer("trestle/runner"),
	}
	r.handler = message.Chain(
		message.RecoveryMiddleware(),
		message.LoggingMiddleware(logger),
		message.ValidationMiddleware(),
	)(processor.Process)
	return r, nil
}

// Close gracefully shuts down the runner and cleans up resources including tracing.
func (r *Runner) Close() error {
	if r.tracingShutdown != nil {
		if err := tracing.ShutdownTracing(r.tracingShutdown, r.logger); err != nil {
			return err
		}
	}
	return nil
}

// Run subscribes and processes requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	msgChan := make(chan *nats.Msg, r.numWorkers*2)

	sub, err := r.conn.ChanQueueSubscribe(r.subject, r.queue, msgChan)
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", r.subject, err)
	}
	r.logger.Info("Runner subscribed",
		zap.String("subject", r.subject),
		zap.String("queue", r.queue),
		zap.Int("workers", r.numWorkers))

	var wg sync.WaitGroup
	for i := 0; i < r.numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, msgChan)
		}(i)
	}

	<-ctx.Done()
	r.logger.Info("Runner stopping due to context cancellation")
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		r.logger.Warn("Error unsubscribing", zap.Error(err))
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) worker(ctx context.Context, workerID int, msgChan <-chan *nats.Msg) {
	r.logger.Debug("Worker started", zap.Int("workerID", workerID))
	defer r.logger.Debug("Worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case msg := <-msgChan:
			r.processMessage(ctx, workerID, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) processMessage(ctx context.Context, workerID int, msg *nats.Msg) {
	// Continue the caller's trace when it sent one in the headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	reply := r.HandleMsg(ctx, msg.Data)
	if msg.Reply == "" {
		r.logger.Warn("Request has no reply subject, dropping response", zap.Int("workerID", workerID))
		return
	}
	if err := msg.Respond(reply); err != nil {
		r.logger.Error("Error sending reply", zap.Int("workerID", workerID), zap.Error(err))
	}
}

// HandleMsg decodes a request, runs it under the process timeout and returns the
// encoded response. It always produces a reply.
func (r *Runner) HandleMsg(ctx context.Context, data []byte) []byte {
	ctx, span := r.tracer.Start(ctx, "runner.processBatch")
	defer span.End()

	start := time.Now()
	req, err := message.RequestFromBytes(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return r.encode(message.NewBatchResponse(nil).WithError(fmt.Errorf("failed to decode request: %w", err)))
	}
	req.EnsureCorrelationID()
	span.SetAttributes(
		attribute.String("correlation.id", req.CorrelationID),
		attribute.String("node.id", req.NodeID),
		attribute.Int("batch.items", len(req.Items)),
	)

	processCtx, cancel := context.WithTimeout(ctx, r.processTimeout)
	defer cancel()

	resp, err := r.handler(processCtx, req)
	if err != nil {
		resp = message.NewBatchResponse(req).WithError(err)
	}
	if resp == nil {
		resp = message.NewBatchResponse(req).WithError(errors.New("processor returned no response"))
	}
	resp.WithDuration(time.Since(start))
	span.SetAttributes(attribute.Int64("processing.duration_ms", resp.DurationMs))

	if resp.Failed() {
		span.SetStatus(codes.Error, resp.Error)
		r.report(req, resp)
	} else {
		span.SetStatus(codes.Ok, "Batch processed successfully")
	}

	return r.encode(resp)
}

func (r *Runner) encode(resp *message.BatchResponse) []byte {
	data, err := resp.ToBytes()
	if err != nil {
		r.logger.Error("Error encoding response", zap.Error(err))
		fallback := message.NewBatchResponse(nil).WithError(fmt.Errorf("failed to encode response: %w", err))
		fallback.CorrelationID = resp.CorrelationID
		data, _ = fallback.ToBytes()
	}
	return data
}

// report sends an aborted batch to Sentry when a client is configured.
func (r *Runner) report(req *message.BatchRequest, resp *message.BatchResponse) {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("correlation_id", req.CorrelationID)
		scope.SetTag("node_id", req.NodeID)
		if resp.ItemIndex != nil {
			scope.SetTag("item_index", fmt.Sprint(*resp.ItemIndex))
		}
		if req.Workflow != nil {
			scope.SetTag("workflow_id", req.Workflow.WorkflowID)
			scope.SetTag("run_id", req.Workflow.RunID)
		}
		hub.CaptureException(errors.New(resp.Error))
	})
}

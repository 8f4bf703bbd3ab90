package message

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handler processes a batch request and returns its response. A returned error
// means no response could be produced at all; batch aborts are reported in the
// response itself.
type Handler func(ctx context.Context, req *BatchRequest) (*BatchResponse, error)

// Middleware is a function that wraps a handler to add additional functionality
type Middleware func(Handler) Handler

// Chain chains multiple middlewares together
func Chain(middlewares ...Middleware) Middleware {
	return func(h Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// RecoveryMiddleware recovers from panics in handlers
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *BatchRequest) (resp *BatchResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware logs request processing using structured logging
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
			fields := []zap.Field{
				zap.String("correlation_id", req.CorrelationID),
				zap.String("node_id", req.NodeID),
				zap.Int("items", len(req.Items)),
			}
			if req.Workflow != nil {
				fields = append(fields,
					zap.String("workflow_id", req.Workflow.WorkflowID),
					zap.String("run_id", req.Workflow.RunID))
			}

			start := time.Now()
			logger.Info("Processing batch", fields...)
			resp, err := next(ctx, req)
			fields = append(fields, zap.Duration("duration", time.Since(start)))

			switch {
			case err != nil:
				logger.Error("Error processing batch", append(fields, zap.Error(err))...)
			case resp != nil && resp.Failed():
				logger.Warn("Batch aborted", append(fields, zap.String("error", resp.Error))...)
			default:
				logger.Info("Successfully processed batch", fields...)
			}
			return resp, err
		}
	}
}

// ValidationMiddleware validates requests before processing
func ValidationMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
			if req == nil {
				return nil, fmt.Errorf("request is nil")
			}
			if err := req.Validate(); err != nil {
				return nil, fmt.Errorf("invalid request: %w", err)
			}
			return next(ctx, req)
		}
	}
}

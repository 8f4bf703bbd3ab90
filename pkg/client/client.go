// Package client submits Trestle batch requests to workers over NATS request/reply.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/wehubfusion/trestle/internal/nats"
	"github.com/wehubfusion/trestle/pkg/message"
)

const (
	// DefaultSubject is the subject `trestle serve` listens on by default.
	DefaultSubject = "trestle.batch"

	// DefaultTimeout bounds a request when its context has no deadline.
	DefaultTimeout = 2 * time.Minute
)

var (
	// ErrNotConnected is returned when the client is used before Connect.
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrNoWorkers is returned when no worker is subscribed to the subject.
	ErrNoWorkers = errors.New("no trestle workers available")
)

// Client sends batch requests to Trestle workers and waits for their replies.
//
// Example usage:
//
//	c := client.NewClient("nats://localhost:4222")
//	if err := c.Connect(ctx); err != nil {
//	    logger.Fatal("Failed to connect", zap.Error(err))
//	}
//	defer c.Close()
//
//	req := message.NewBatchRequest("trestle-1", cfg, items)
//	resp, err := c.Submit(ctx, req)
type Client struct {
	conn    *natsclient.Conn
	config  *nats.ConnectionConfig
	logger  *zap.Logger
	subject string
	timeout time.Duration
}

// NewClient creates a client with the default connection configuration.
// The client must be connected using Connect() before use.
func NewClient(url string) *Client {
	return NewClientWithConfig(nats.DefaultConnectionConfig(url))
}

// NewClientWithConfig creates a client with a custom connection configuration.
func NewClientWithConfig(config *nats.ConnectionConfig) *Client {
	return &Client{
		config:  config,
		logger:  zap.NewNop(),
		subject: DefaultSubject,
		timeout: DefaultTimeout,
	}
}

// NewClientWithConn wraps an existing connection. Close leaves conn open.
func NewClientWithConn(conn *natsclient.Conn) *Client {
	c := NewClientWithConfig(nil)
	c.conn = conn
	return c
}

// SetLogger sets the logger used for connection and request events.
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetSubject changes the request subject.
func (c *Client) SetSubject(subject string) {
	if subject != "" {
		c.subject = subject
	}
}

// SetTimeout changes the timeout applied to requests without a deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// Connect establishes the NATS connection. Calling it on a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if c.config == nil {
		return fmt.Errorf("failed to connect to NATS: no connection configuration")
	}

	conn, err := nats.Connect(ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.conn = conn
	return nil
}

// Close drains and closes a connection opened by Connect.
func (c *Client) Close() error {
	if c.conn == nil || c.config == nil {
		return nil
	}
	err := nats.Close(c.conn)
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// IsConnected returns true if the client is connected to NATS
func (c *Client) IsConnected() bool {
	return nats.IsConnected(c.conn)
}

// Submit sends req and waits for the worker's response. The trace context of
// ctx travels in the message headers.
//
// A response with Failed() set is returned with a nil error: the batch reached
// a worker and was aborted there.
func (c *Client) Submit(ctx context.Context, req *message.BatchRequest) (*message.BatchResponse, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	req.EnsureCorrelationID()

	data, err := req.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	msg := natsclient.NewMsg(c.subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("Submitting batch",
		zap.String("subject", c.subject),
		zap.String("correlation_id", req.CorrelationID),
		zap.Int("items", len(req.Items)))

	reply, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, natsclient.ErrNoResponders) {
			return nil, fmt.Errorf("%w on '%s'", ErrNoWorkers, c.subject)
		}
		return nil, fmt.Errorf("batch request failed: %w", err)
	}

	resp, err := message.ResponseFromBytes(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.CorrelationID != req.CorrelationID {
		c.logger.Warn("Response correlation ID mismatch",
			zap.String("expected", req.CorrelationID),
			zap.String("got", resp.CorrelationID))
	}
	return resp, nil
}

package trestleapi

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/trestle/pkg/errors"
)

// maxErrorBody caps how much of an error response body ends up in messages.
const maxErrorBody = 512

// Transport dispatches a built request and returns the raw response body
// (JSON text) or an already structured value.
type Transport interface {
	Do(ctx context.Context, req *Request) (interface{}, error)
}

// Client is the resty-backed Transport used against the real API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient makes the client use hc for round trips.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// NewClient creates a client. Retries are disabled; every request is sent once.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   resty.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetRetryCount(0)
	return c
}

// Do sends req and returns the response body as a string. Network failures and
// non-2xx statuses are returned as transport errors.
func (c *Client) Do(ctx context.Context, req *Request) (interface{}, error) {
	r := c.http.R().
		SetContext(ctx).
		SetHeaderMultiValues(req.Header).
		SetQueryParamsFromValues(req.Query)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		c.logger.Debug("Trestle request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err))
		return nil, sdkerrors.NewTransportError(0, fmt.Sprintf("%s %s failed", req.Method, req.URL), err)
	}

	c.logger.Debug("Trestle request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		body := truncate(resp.String(), maxErrorBody)
		msg := fmt.Sprintf("request failed with status %d", resp.StatusCode())
		if body != "" {
			msg += ": " + body
		}
		return nil, sdkerrors.NewTransportError(resp.StatusCode(), msg, nil)
	}

	return resp.String(), nil
}

var _ Transport = (*Client)(nil)

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

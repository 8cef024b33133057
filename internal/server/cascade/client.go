// Package cascade deletes the resources a sibling service keeps for a user
// through one request/reply call on the broker.
package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/dmitrijs2005/usersvc/internal/server/apperr"
)

const (
	DefaultQueue   = "delete-videos-by-user-id"
	DefaultTimeout = 10 * time.Second
)

type request struct {
	ID string `json:"id"`
}

// Client issues the outbound cascading-delete call. It never retries.
type Client struct {
	conn    broker.Connection
	queue   string
	timeout time.Duration
	logger  logging.Logger
	metrics *metrics.CascadeMetrics
}

// NewClient returns a Client for queue. Non-positive timeouts fall back to
// DefaultTimeout; m may be nil.
func NewClient(conn broker.Connection, queue string, timeout time.Duration, logger logging.Logger, m *metrics.CascadeMetrics) *Client {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		conn:    conn,
		queue:   queue,
		timeout: timeout,
		logger:  logger.With("module", "cascade", "queue", queue),
		metrics: m,
	}
}

// DeleteDependents asks the sibling service to delete userID's resources
// and returns its boolean answer.
func (c *Client) DeleteDependents(ctx context.Context, userID string) (bool, error) {
	start := time.Now()

	deleted, err := c.call(ctx, userID)

	result := "deleted"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	case !deleted:
		result = "not_deleted"
	}
	c.metrics.Observe(result, time.Since(start))
	c.logger.Debug(ctx, "cascade call finished", "user_id", userID, "result", result, "duration", time.Since(start))

	return deleted, err
}

func (c *Client) call(ctx context.Context, userID string) (bool, error) {
	rpc, err := c.conn.CreateRPCClient()
	if err != nil {
		return false, apperr.Internal("Failed to open cascade channel.", err)
	}
	defer func() {
		if err := rpc.Close(); err != nil {
			c.logger.Warn(ctx, "closing cascade channel failed", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := rpc.Send(ctx, c.queue, request{ID: userID})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, apperr.Internal("cascade call timed out", err)
		}
		return false, apperr.Internal("Cascade call failed.", err)
	}

	return translate(raw)
}

// translate converts the sibling service's envelope into a result or an
// apperr.Error.
func translate(raw []byte) (bool, error) {
	resp, err := dto.DecodeResponse(raw)
	if err != nil {
		return false, apperr.Internal("Malformed cascade reply.", err)
	}

	if !resp.Success {
		e, err := resp.ErrorData()
		if err != nil {
			return false, apperr.Internal("Malformed cascade reply.", err)
		}
		switch e.Code {
		case 404:
			return false, apperr.NotFound(404, e.Message)
		case 400:
			return false, apperr.InvalidInput(e.Message)
		default:
			return false, apperr.Internal(e.Message, nil)
		}
	}

	var deleted bool
	if err := json.Unmarshal(resp.Data, &deleted); err != nil {
		return false, apperr.Internal("Malformed cascade reply.", err)
	}
	return deleted, nil
}

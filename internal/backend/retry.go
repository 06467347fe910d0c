package backend

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"
)

const maxBackoff = 30 * time.Second

// executeWithRetry runs fn up to op.maxRetries+1 times with exponential
// backoff and jitter between attempts
func (c *Client) executeWithRetry(ctx context.Context, op *operation, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= op.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying backend operation",
				"operation", op.name,
				"attempt", attempt,
				"max_retries", op.maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Backend operation succeeded after retry",
					"operation", op.name,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			c.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", op.name,
				"error", err.Error())
			break
		}
	}

	if op.maxRetries == 0 {
		return nil, lastErr
	}

	c.logger.LogError(lastErr, "Backend operation failed after all retry attempts",
		"operation", op.name,
		"total_attempts", op.maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", op.name, op.maxRetries, lastErr)
}

// backoff returns the delay before the given retry attempt
func (c *Client) backoff(attempt int) time.Duration {
	baseDelay := c.retryBaseDelay << (attempt - 1)
	if baseDelay <= 0 || baseDelay > maxBackoff {
		baseDelay = maxBackoff
	}

	var jitter time.Duration
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}

	return min(baseDelay+jitter, maxBackoff)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts, refused connections and resets
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

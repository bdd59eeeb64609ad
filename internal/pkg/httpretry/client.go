// Package httpretry provides an HTTP client with automatic retry logic
// for resilient calls against rate-limited external APIs.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with two retry schedules:
//
//   - HTTP 429: exponential backoff (2s, 4s, 8s, ... capped at maxDelay),
//     up to maxRetries attempts. The last 429 response is returned as-is so
//     the caller can convert it into its own rate-limit error.
//   - Network errors (connection reset, DNS failure, timeout): linear
//     backoff (1s * attempt), up to maxRetries attempts.
//
// Any other response, success or failure, is returned immediately without
// retrying. Non-429 status handling is the caller's concern.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryClient creates a RetryClient wrapping the given HTTPDoer.
// If client is nil, a default http.Client with a 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  2 * time.Second,
		maxDelay:   60 * time.Second,
		sleep:      sleepCtx,
	}
}

// SetSleep replaces the backoff sleep function (useful for testing).
func (rc *RetryClient) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	rc.sleep = fn
}

// Do executes the HTTP request with retry logic.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	throttled := false

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			// Reset request body for retry if applicable
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			var delay time.Duration
			if throttled {
				delay = rc.throttleDelay(attempt)
			} else {
				delay = time.Duration(attempt) * time.Second
			}
			logger.Warn("httpretry: retrying request",
				"attempt", attempt, "max", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"delay", delay.String())

			if err := rc.sleep(req.Context(), delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			throttled = false
			// Context cancellation is not a transient network failure
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Final attempt: hand the 429 back to the caller unconsumed
		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain body so the connection can be reused before retrying
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		throttled = true
		lastErr = fmt.Errorf("httpretry: rate limited (status 429)")
	}

	return nil, lastErr
}

// throttleDelay returns the exponential backoff for the given retry attempt:
// baseDelay * 2^(attempt-1), capped at maxDelay.
func (rc *RetryClient) throttleDelay(attempt int) time.Duration {
	delay := rc.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= rc.maxDelay {
			return rc.maxDelay
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

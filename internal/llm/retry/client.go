// Package retry decorates an LLM client with bounded retries on
// transient failures.
package retry

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2
	// DefaultBackoff is the base delay before the first retry.
	DefaultBackoff = 1 * time.Second
)

// Client wraps an llm.Client and retries transient failures. A stream
// that has already emitted content is never retried; the partial output
// has been observed by the caller and replaying it would duplicate it.
type Client struct {
	inner      llm.Client
	maxRetries int
}

// New creates a retrying wrapper around the given client
func New(inner llm.Client) *Client {
	return &Client{inner: inner, maxRetries: DefaultMaxRetries}
}

// Chat sends a chat request, retrying transient failures with backoff
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logging.Info("Retrying chat request (attempt %d/%d)", attempt+1, c.maxRetries+1)
			if err := sleepWithContext(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}

		response, err := c.inner.Chat(ctx, request)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// ChatStream streams a chat request. Retries only happen while no
// content has reached the caller.
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest, onEvent func(llm.StreamEvent) error) (*llm.ChatResponse, error) {
	streamer, ok := c.inner.(llm.StreamingClient)
	if !ok {
		// Non-streaming inner client: run Chat and surface the reply
		// as a single delta.
		response, err := c.Chat(ctx, request)
		if err != nil {
			return nil, err
		}
		if onEvent != nil {
			if err := onEvent(llm.StreamEvent{
				Type:         llm.StreamEventContentDelta,
				ContentDelta: response.Content,
			}); err != nil {
				return nil, err
			}
		}
		return response, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logging.Info("Retrying chat stream (attempt %d/%d)", attempt+1, c.maxRetries+1)
			if err := sleepWithContext(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}

		emitted := false
		wrapped := onEvent
		if onEvent != nil {
			wrapped = func(event llm.StreamEvent) error {
				if event.Type == llm.StreamEventContentDelta {
					emitted = true
				}
				return onEvent(event)
			}
		}

		response, err := streamer.ChatStream(ctx, request, wrapped)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if emitted || !isRetryable(ctx, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoff returns the delay before the given retry attempt (exponential,
// capped at 30s).
func backoff(attempt int) time.Duration {
	d := DefaultBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// sleepWithContext sleeps for the specified duration or returns early
// if the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// isRetryable determines if an error is worth retrying. Missing keys
// and user cancellations never are; connection failures, rate limits
// and server errors are.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if _, ok := err.(*llm.MissingKeyError); ok {
		return false
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		return false
	}

	if strings.Contains(msg, "context canceled") {
		return false
	}
	if strings.Contains(msg, "context deadline exceeded") {
		return true
	}
	if strings.Contains(msg, "failed to connect") || strings.Contains(msg, "request failed") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return true
	}
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded") {
		return true
	}
	return hasStatusCodeInRange(msg, 429, 429) || hasStatusCodeInRange(msg, 500, 599)
}

// hasStatusCodeInRange looks for a "(nnn)" status code marker in an
// error message, the format the vendor clients produce.
func hasStatusCodeInRange(message string, min, max int) bool {
	start := strings.Index(message, "(")
	for start >= 0 {
		rest := message[start+1:]
		end := strings.Index(rest, ")")
		if end < 0 {
			return false
		}
		if code, err := strconv.Atoi(rest[:end]); err == nil && code >= min && code <= max {
			return true
		}
		next := strings.Index(rest[end+1:], "(")
		if next < 0 {
			return false
		}
		start += 1 + end + 1 + next
	}
	return false
}

var _ llm.Client = (*Client)(nil)
var _ llm.StreamingClient = (*Client)(nil)

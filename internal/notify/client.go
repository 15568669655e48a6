package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/venuewallet/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeRejected   = "rejected"
	CodeUnknown    = "unknown"
)

const (
	defaultRetryAfter = 60 * time.Second
	requestTimeout    = 5 * time.Second
)

type DeliveryError struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Webhook client of the notification service
type Client struct {
	URL string

	client *http.Client
	logger logger.Logger
}

func NewClient(url string, l logger.Logger) *Client {
	return &Client{
		URL:    url,
		client: &http.Client{},
		logger: l,
	}
}

// Post event as JSON; any 2xx status is a success
func (c *Client) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return &DeliveryError{Code: CodeRejected, Err: fmt.Errorf("failed to encode event: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Code: CodeUnknown, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.ID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return &DeliveryError{Code: CodeUnknown, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("Event delivered", "event_id", event.ID, "kind", event.Kind)
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("Notification service throttled", "retry_after", retryAfter)
		return &DeliveryError{Code: CodeRetryAfter, RetryAfter: retryAfter, Err: fmt.Errorf("retry after %s", retryAfter)}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &DeliveryError{Code: CodeRejected, Err: fmt.Errorf("event %s rejected with status %d", event.ID, resp.StatusCode)}

	default:
		c.logger.Warn("Failed to deliver event", "status_code", resp.StatusCode, "event_id", event.ID)
		return &DeliveryError{Code: CodeUnknown, Err: fmt.Errorf("unknown status code %d for event %s", resp.StatusCode, event.ID)}
	}
}

// Retry-After in seconds; defaults to a minute if absent or malformed
func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

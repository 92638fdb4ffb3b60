// Package delivery sends attendance events to the recording service.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

const (
	// DefaultURL is the recording service endpoint used when none is configured.
	DefaultURL = "http://127.0.0.1:5000/api/mark_attendance"
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 5 * time.Second

	maxErrorBody = 1024
)

// ErrDelivery is returned (wrapped) for every failed delivery attempt.
var ErrDelivery = errors.New("delivery failed")

// DeliveryError is returned when the recording service answers with a non-200 status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("recording service returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrDelivery) match.
func (e *DeliveryError) Unwrap() error {
	return ErrDelivery
}

// Emitter delivers one event. Implementations must not retry.
type Emitter interface {
	Emit(ctx context.Context, ev attendance.Event) error
}

// Client posts events as JSON to the recording service.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client for url with a per-request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint events are posted to.
func (c *Client) URL() string {
	return c.url
}

// Emit posts ev once. Only HTTP 200 counts as success.
func (c *Client) Emit(ctx context.Context, ev attendance.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ev.ID != "" {
		req.Header.Set("Idempotency-Key", ev.ID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

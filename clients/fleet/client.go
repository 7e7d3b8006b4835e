// Package fleet implements the backends.Dispatcher and backends.Amender
// contracts over the fleet management vendor's JSON HTTP API. Every logical
// operation carries one Idempotency-Key for its whole retry span, so a retry
// after a lost response cannot double-book.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cabline.dev/agent/booking/backends"
	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/clients/retry"
)

// Booking statuses returned by the vendor.
const (
	statusConfirmed = "confirmed"
	statusRejected  = "rejected"
)

const defaultTimeout = 15 * time.Second

type (
	// Option configures the client.
	Option func(*Client)

	// Client creates and amends bookings with the fleet vendor.
	Client struct {
		endpoint string
		http     *http.Client
		headers  http.Header
		retry    retry.Config
		newKey   func() string
	}

	bookingRequest struct {
		Pickup              string     `json:"pickup"`
		Destination         string     `json:"destination"`
		Passengers          int        `json:"passengers"`
		PickupTime          string     `json:"pickup_time"`
		PickupAt            *time.Time `json:"pickup_at,omitempty"`
		ASAP                bool       `json:"asap"`
		SpecialInstructions string     `json:"special_instructions,omitempty"`
	}

	bookingResponse struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
		Reason    string `json:"reason,omitempty"`
	}
)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAPIKey configures the client to send an Authorization Bearer token.
func WithAPIKey(key string) Option {
	return func(cl *Client) {
		cl.headers.Set("Authorization", "Bearer "+key)
	}
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) {
		cl.retry = cfg
	}
}

// withKeyFunc overrides idempotency key generation. Tests use it to make
// keys observable.
func withKeyFunc(fn func() string) Option {
	return func(cl *Client) {
		cl.newKey = fn
	}
}

// New constructs a Client. The endpoint is the vendor base URL without the
// /v1 path.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("fleet endpoint is required")
	}
	cl := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		headers:  make(http.Header),
		retry:    retry.DefaultConfig(),
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	if cl.http == nil {
		cl.http = &http.Client{Timeout: defaultTimeout}
	}
	return cl, nil
}

var (
	_ backends.Dispatcher = (*Client)(nil)
	_ backends.Amender    = (*Client)(nil)
)

// Dispatch creates a booking from a confirmed slot snapshot. The returned
// error covers transport failures only; a vendor rejection comes back as a
// result with OK false.
func (c *Client) Dispatch(ctx context.Context, details events.BookingDetails) (backends.DispatchResult, error) {
	vendor, err := c.send(ctx, http.MethodPost, c.endpoint+"/v1/bookings", details)
	if err != nil {
		return backends.DispatchResult{}, fmt.Errorf("dispatch booking: %w", err)
	}
	if vendor.Status != statusConfirmed || vendor.BookingID == "" {
		return backends.DispatchResult{Err: rejectionReason(vendor)}, nil
	}
	return backends.DispatchResult{OK: true, BookingID: vendor.BookingID}, nil
}

// Amend updates an existing booking with a fresh slot snapshot.
func (c *Client) Amend(ctx context.Context, bookingID string, details events.BookingDetails) (backends.AmendResult, error) {
	if bookingID == "" {
		return backends.AmendResult{}, errors.New("booking id is required")
	}
	vendor, err := c.send(ctx, http.MethodPatch, c.endpoint+"/v1/bookings/"+bookingID, details)
	if err != nil {
		return backends.AmendResult{}, fmt.Errorf("amend booking %s: %w", bookingID, err)
	}
	if vendor.Status != statusConfirmed {
		return backends.AmendResult{Err: rejectionReason(vendor)}, nil
	}
	return backends.AmendResult{OK: true}, nil
}

// send runs one idempotent vendor operation: a single Idempotency-Key covers
// the initial attempt and every retry.
func (c *Client) send(ctx context.Context, method, url string, details events.BookingDetails) (bookingResponse, error) {
	body, err := json.Marshal(bookingRequest{
		Pickup:              details.PickupAddress,
		Destination:         details.DropoffAddress,
		Passengers:          details.Passengers,
		PickupTime:          details.PickupTimeText,
		PickupAt:            details.PickupAt,
		ASAP:                details.ASAP,
		SpecialInstructions: details.SpecialInstructions,
	})
	if err != nil {
		return bookingResponse{}, fmt.Errorf("encode booking request: %w", err)
	}

	key := c.newKey()
	var vendor bookingResponse
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(msg)}
		}

		return json.NewDecoder(resp.Body).Decode(&vendor)
	})
	if err != nil {
		return bookingResponse{}, err
	}
	return vendor, nil
}

func rejectionReason(vendor bookingResponse) string {
	if vendor.Reason != "" {
		return vendor.Reason
	}
	if vendor.Status == statusRejected {
		return "booking rejected by fleet"
	}
	return fmt.Sprintf("unexpected booking status %q", vendor.Status)
}

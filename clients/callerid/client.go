// Package callerid looks up callers by phone number against the caller ID
// vendor. Lookups enrich call logs and post-call summaries; a failed or empty
// lookup never blocks a call, so callers of this client treat errors as
// absence.
package callerid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cabline.dev/agent/clients/retry"
)

const defaultTimeout = 5 * time.Second

type (
	// Option configures the client.
	Option func(*Client)

	// Client queries the caller ID vendor.
	Client struct {
		endpoint string
		http     *http.Client
		headers  http.Header
		retry    retry.Config
	}

	// Caller is one caller ID record.
	Caller struct {
		// Phone is the caller's phone number as stored by the vendor.
		Phone string `json:"phone"`
		// Name is the caller's display name, empty when unknown.
		Name string `json:"name"`
		// SavedPickup is the caller's usual pickup address, empty when none
		// is on file.
		SavedPickup string `json:"saved_pickup,omitempty"`
	}
)

// ErrNotFound reports that the vendor has no record for the phone number.
var ErrNotFound = errors.New("caller not found")

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

// New constructs a Client. The endpoint is the vendor base URL without the
// /v1 path.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("callerid endpoint is required")
	}
	cl := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		headers:  make(http.Header),
		retry:    retry.DefaultConfig(),
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

// Lookup fetches the caller record for a phone number. A missing record
// returns ErrNotFound.
func (c *Client) Lookup(ctx context.Context, phone string) (Caller, error) {
	if phone == "" {
		return Caller{}, errors.New("phone is required")
	}

	var caller Caller
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/callers/"+url.PathEscape(phone), nil)
		if err != nil {
			return err
		}
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

		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&caller)
		case http.StatusNotFound:
			return ErrNotFound
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(msg)}
		}
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Caller{}, ErrNotFound
		}
		return Caller{}, fmt.Errorf("lookup caller: %w", err)
	}
	return caller, nil
}

// Package geocode implements the backends.Geocoder contract over the address
// resolution vendor's JSON HTTP API. Requests are rate limited per client and
// transient failures (429, 5xx, timeouts) are retried with bounded backoff;
// vendor-side outcomes such as ambiguity and not-found are results, not
// errors.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"cabline.dev/agent/booking/backends"
	"cabline.dev/agent/clients/retry"
)

// Resolution statuses returned by the vendor.
const (
	statusOK        = "ok"
	statusAmbiguous = "ambiguous"
	statusNotFound  = "not_found"
)

const defaultTimeout = 10 * time.Second

type (
	// Option configures the client.
	Option func(*Client)

	// Client resolves raw spoken addresses against the vendor API.
	Client struct {
		endpoint string
		http     *http.Client
		headers  http.Header
		limiter  *rate.Limiter
		retry    retry.Config
	}

	resolveRequest struct {
		Query string `json:"query"`
	}

	resolveResponse struct {
		Status       string   `json:"status"`
		Normalized   string   `json:"normalized,omitempty"`
		Alternatives []string `json:"alternatives,omitempty"`
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

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
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
		return nil, errors.New("geocode endpoint is required")
	}
	cl := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		headers:  make(http.Header),
		limiter:  rate.NewLimiter(rate.Inf, 0),
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

var _ backends.Geocoder = (*Client)(nil)

// Geocode resolves one raw spoken address. The returned error covers
// transport failures only; ambiguity and not-found come back as a result
// with OK false.
func (c *Client) Geocode(ctx context.Context, raw string) (backends.GeocodeResult, error) {
	body, err := json.Marshal(resolveRequest{Query: raw})
	if err != nil {
		return backends.GeocodeResult{}, fmt.Errorf("encode resolve request: %w", err)
	}

	var vendor resolveResponse
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.post(ctx, bytes.NewReader(body), &vendor)
	})
	if err != nil {
		return backends.GeocodeResult{}, fmt.Errorf("resolve address: %w", err)
	}

	switch vendor.Status {
	case statusOK:
		return backends.GeocodeResult{OK: true, NormalizedAddress: vendor.Normalized}, nil
	case statusAmbiguous:
		return backends.GeocodeResult{
			Ambiguous:    true,
			Alternatives: vendor.Alternatives,
			Err:          "address is ambiguous",
		}, nil
	case statusNotFound:
		return backends.GeocodeResult{Err: "address not found"}, nil
	default:
		return backends.GeocodeResult{Err: fmt.Sprintf("unexpected resolution status %q", vendor.Status)}, nil
	}
}

func (c *Client) post(ctx context.Context, body io.Reader, out *resolveResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/resolve", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
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

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

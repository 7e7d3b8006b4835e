package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabline.dev/agent/clients/retry"
)

func TestGeocodeOK(t *testing.T) {
	t.Parallel()

	var captured resolveRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/resolve", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		defer func() { _ = r.Body.Close() }()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := resolveResponse{Status: "ok", Normalized: "12 High Street, Camden, London NW1"}
		require.NoError(t, json.NewEncoder(w).Encode(&resp))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	got, err := client.Geocode(context.Background(), "12 high street camden")
	require.NoError(t, err)

	assert.Equal(t, "12 high street camden", captured.Query)
	assert.True(t, got.OK)
	assert.Equal(t, "12 High Street, Camden, London NW1", got.NormalizedAddress)
	assert.Empty(t, got.Err)
}

func TestGeocodeAmbiguous(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := resolveResponse{
			Status:       "ambiguous",
			Alternatives: []string{"High Street, Camden", "High Street, Barnet"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(&resp))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	got, err := client.Geocode(context.Background(), "high street")
	require.NoError(t, err)

	assert.False(t, got.OK)
	assert.True(t, got.Ambiguous)
	assert.Len(t, got.Alternatives, 2)
	assert.NotEmpty(t, got.Err)
}

func TestGeocodeNotFound(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(&resolveResponse{Status: "not_found"}))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	got, err := client.Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)

	assert.False(t, got.OK)
	assert.False(t, got.Ambiguous)
	assert.Equal(t, "address not found", got.Err)
}

func TestGeocodeRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(&resolveResponse{Status: "ok", Normalized: "1 Main Road"}))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL, WithRetry(retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}))
	require.NoError(t, err)

	got, err := client.Geocode(context.Background(), "1 main road")
	require.NoError(t, err)
	assert.True(t, got.OK)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGeocodeTransportErrorAfterExhaustion(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL, WithRetry(retry.Config{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}))
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), "1 main road")
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
}

func TestGeocodeClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), "???")
	require.Error(t, err)

	var httpErr *retry.HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGeocodeSendsAPIKey(t *testing.T) {
	t.Parallel()

	var auth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewEncoder(w).Encode(&resolveResponse{Status: "ok", Normalized: "x"}))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL, WithAPIKey("secret"))
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
}

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}

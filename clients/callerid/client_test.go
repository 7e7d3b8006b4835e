package callerid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupFound(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/callers/+447700900123", r.URL.Path)

		resp := Caller{Phone: "+447700900123", Name: "Priya Shah", SavedPickup: "12 High Street, Camden"}
		require.NoError(t, json.NewEncoder(w).Encode(&resp))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	got, err := client.Lookup(context.Background(), "+447700900123")
	require.NoError(t, err)

	assert.Equal(t, "Priya Shah", got.Name)
	assert.Equal(t, "12 High Street, Camden", got.SavedPickup)
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such caller", http.StatusNotFound)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "+447700900999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRequiresPhone(t *testing.T) {
	t.Parallel()

	client, err := New("http://callerid.invalid")
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "")
	require.Error(t, err)
}

func TestLookupEscapesPhone(t *testing.T) {
	t.Parallel()

	var path string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		require.NoError(t, json.NewEncoder(w).Encode(&Caller{Phone: "0151 496 0000"}))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "0151 496 0000")
	require.NoError(t, err)
	assert.Equal(t, "/v1/callers/0151%20496%200000", path)
}

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}

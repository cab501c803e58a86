package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientFetch_ReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "v", r.Header.Get("X-Custom"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, nil)
	body, err := c.Fetch(context.Background(), &SerpAPI{}, Request{
		URL:     srv.URL + "?q=test&api_key=secret",
		Headers: http.Header{"X-Custom": []string{"v"}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClientFetch_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, nil)
	_, err := c.Fetch(context.Background(), &SerpAPI{}, Request{URL: srv.URL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClientFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(50*time.Millisecond, nil)
	// ValueSerp has no per-adapter timeout override, so the client
	// default applies.
	_, err := c.Fetch(context.Background(), &ValueSerp{}, Request{URL: srv.URL})
	require.Error(t, err)
}

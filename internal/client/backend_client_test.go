package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-guard/internal/config"
)

func newBackend(t *testing.T) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/public":
			w.Write([]byte(`{"message":"hello from public"}`))
		case "/api/protected":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("hello from protected\n"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return NewBackendClient(config.BackendConfig{
		BaseURL:       srv.URL,
		PublicPath:    "/api/public",
		ProtectedPath: "/api/protected",
		Timeout:       time.Second,
	}, nil, nil)
}

func TestBackendClient_FetchPublic(t *testing.T) {
	msg, err := newBackend(t).FetchPublic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello from public", msg)
}

func TestBackendClient_FetchProtected(t *testing.T) {
	c := newBackend(t)

	msg, err := c.FetchProtected(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "hello from protected", msg)

	_, err = c.FetchProtected(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrBackendUnauthorized)

	_, err = c.FetchProtected(context.Background(), "")
	assert.ErrorIs(t, err, ErrBackendUnauthorized)
}

func TestBackendClient_ServerError(t *testing.T) {
	c := newBackend(t)
	c.publicPath = "/boom"
	_, err := c.FetchPublic(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

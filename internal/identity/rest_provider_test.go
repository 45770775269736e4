package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *RESTProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewRESTProvider(RESTConfig{BaseURL: srv.URL, APIKey: "test-key"}, srv.Client(), nil)
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p
}

func writeProviderError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func TestRESTProvider_SignIn(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/accounts:signInWithPassword":
			var body passwordRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.True(t, body.ReturnSecureToken)
			if body.Password != "right" {
				writeProviderError(w, http.StatusBadRequest, "INVALID_PASSWORD")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"localId": "uid-1", "email": body.Email, "idToken": "tok", "refreshToken": "ref", "expiresIn": "3600",
			})
		case "/accounts:lookup":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{{"localId": "uid-1", "email": "a@example.com", "emailVerified": true}},
			})
		default:
			http.NotFound(w, r)
		}
	})

	s, err := p.SignIn(context.Background(), "a@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", s.UserID)
	assert.True(t, s.EmailVerified)
	assert.Equal(t, "tok", s.IDToken)
	assert.Equal(t, time.Unix(1_700_000_000, 0).Add(time.Hour), s.ExpiresAt)

	_, err = p.SignIn(context.Background(), "a@example.com", "wrong")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidPassword, pe.Code)
	assert.Equal(t, "Invalid email or password.", pe.UserMessage())
	assert.True(t, IsCredentialRejection(err))
}

func TestRESTProvider_SendVerificationThrottled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeProviderError(w, http.StatusBadRequest, "TOO_MANY_ATTEMPTS_TRY_LATER : Try again later.")
	})

	err := p.SendVerification(context.Background(), &Session{IDToken: "tok"})
	assert.ErrorIs(t, err, ErrThrottled)
	assert.False(t, IsCredentialRejection(err))
}

func TestRESTProvider_ServerErrorIsUnavailable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Reload(context.Background(), &Session{IDToken: "tok"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRESTProvider_WrongEndpointIsUnavailable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts:lookup" {
			writeProviderError(w, http.StatusNotFound, "Method not found.")
			return
		}
		http.NotFound(w, r)
	})

	_, err := p.SignIn(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, IsCredentialRejection(err))

	_, err = p.Reload(context.Background(), &Session{IDToken: "tok"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, IsCredentialRejection(err))
}

func TestRESTProvider_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	p := NewRESTProvider(RESTConfig{BaseURL: srv.URL}, nil, nil)

	_, err := p.SignUp(context.Background(), "a@example.com", "pw")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestRESTProvider_ReloadMissingUser(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []any{}})
	})

	_, err := p.Reload(context.Background(), &Session{IDToken: "tok"})
	assert.True(t, IsCredentialRejection(err))
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-guard/internal/client"
	"login-guard/internal/guard"
	"login-guard/internal/identity"
	"login-guard/internal/identity/identitytest"
	"login-guard/internal/repository/memory"
	"login-guard/internal/service"
)

type stubBackend struct {
	protectedErr error
}

func (b *stubBackend) FetchPublic(context.Context) (string, error) {
	return "hello from public", nil
}

func (b *stubBackend) FetchProtected(_ context.Context, token string) (string, error) {
	if b.protectedErr != nil {
		return "", b.protectedErr
	}
	return "hello " + token, nil
}

type testServer struct {
	router   http.Handler
	provider *identitytest.Fake
	backend  *stubBackend
	clientID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	provider := identitytest.NewFake()
	backend := &stubBackend{}
	svc, err := service.NewLoginService(service.Options{
		Provider: provider,
		Store:    memory.NewStore(),
		Backend:  backend,
		Guard:    guard.DefaultConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	h := NewAuthHandler(svc, nil, "lg_client", false)
	return &testServer{
		router:   NewRouter(h, nil, RouterOptions{AllowedOrigins: []string{"*"}}),
		provider: provider,
		backend:  backend,
		clientID: uuid.NewString(),
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clientIDHeader, ts.clientID)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func loginBody(email, password string) string {
	b, _ := json.Marshal(credentialsRequest{Email: email, Password: password})
	return string(b)
}

func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestLogin_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("dana@example.com", "correct-horse", true)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("Dana@Example.com ", "correct-horse"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, ts.clientID, rec.Header().Get(clientIDHeader))

	data := dataMap(t, resp)
	assert.Equal(t, "verified", data["verification"])
	lockout := data["lockout"].(map[string]any)
	assert.Equal(t, "open", lockout["state"])
	assert.EqualValues(t, 3, lockout["attempts_remaining"])
}

func TestLogin_FailuresThenLockout(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("dana@example.com", "correct-horse", true)

	for want := 2; want >= 0; want-- {
		rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "nope"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "auth_failed", resp.Code)
		assert.Equal(t, "Invalid email or password.", resp.Message)
		assert.EqualValues(t, want, dataMap(t, resp)["attempts_remaining"])
	}

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "correct-horse"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", resp.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.EqualValues(t, 30, dataMap(t, resp)["seconds_remaining"])
	assert.Equal(t, 3, ts.provider.SignInCalls())

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/auth/lockout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lockout := dataMap(t, resp)
	assert.Equal(t, "locked", lockout["state"])
	assert.EqualValues(t, 0, lockout["attempts_remaining"])
}

func TestLogin_ClientsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("dana@example.com", "correct-horse", true)

	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "nope"))
	}

	ts.clientID = uuid.NewString()
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "correct-horse"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Code)

	rec, resp = ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Code)
	assert.Equal(t, 0, ts.provider.SignInCalls())
}

func TestLogin_ProviderUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.FailSignIn(identity.ErrUnavailable)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "x"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "provider_unavailable", resp.Code)

	_, resp = ts.do(t, http.MethodGet, "/api/v1/auth/lockout", "")
	assert.EqualValues(t, 3, dataMap(t, resp)["attempts_remaining"])
}

func TestClientIDCookieIssued(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/lockout", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "lg_client", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	_, err := uuid.Parse(cookies[0].Value)
	assert.NoError(t, err)
	assert.Equal(t, cookies[0].Value, rec.Header().Get(clientIDHeader))
}

func TestSignUpAndVerificationFlow(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/signup", loginBody("erin@example.com", "s3cret!"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "unverified", dataMap(t, resp)["verification"])
	assert.Equal(t, 1, ts.provider.SendCalls())

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/messages/protected", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unverified", resp.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/auth/verification/resend", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ts.provider.SendCalls())

	ts.provider.SetVerified("erin@example.com", true)
	rec, resp = ts.do(t, http.MethodPost, "/api/v1/auth/verification/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", dataMap(t, resp)["verification"])

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/messages/protected", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, dataMap(t, resp)["message"], "hello token-")
}

func TestSignUp_EmailExists(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("erin@example.com", "s3cret!", false)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/signup", loginBody("erin@example.com", "other"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_rejected", resp.Code)
}

func TestVerificationRefreshFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("erin@example.com", "s3cret!", false)
	ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("erin@example.com", "s3cret!"))

	ts.provider.FailReload(identity.ErrUnavailable)
	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/verification/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "refresh_failed", resp.Code)
}

func TestResendThrottled(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("erin@example.com", "s3cret!", false)
	ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("erin@example.com", "s3cret!"))

	ts.provider.FailSend(identity.ErrThrottled)
	rec, resp := ts.do(t, http.MethodPost, "/api/v1/auth/verification/resend", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "resend_throttled", resp.Code)
}

func TestLogoutKeepsLockout(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("dana@example.com", "correct-horse", true)
	ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "correct-horse"))
	ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "nope"))

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, resp := ts.do(t, http.MethodGet, "/api/v1/auth/session", "")
	assert.Equal(t, false, dataMap(t, resp)["signed_in"])

	_, resp = ts.do(t, http.MethodGet, "/api/v1/auth/lockout", "")
	assert.EqualValues(t, 1, dataMap(t, resp)["failure_count"])
}

func TestProtectedRequiresSignIn(t *testing.T) {
	ts := newTestServer(t)
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/messages/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_signed_in", resp.Code)
}

func TestProtectedBackendRejects(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.AddAccount("dana@example.com", "correct-horse", true)
	ts.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("dana@example.com", "correct-horse"))

	ts.backend.protectedErr = client.ErrBackendUnauthorized
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/messages/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "backend_unauthorized", resp.Code)
}

func TestPublicMessage(t *testing.T) {
	ts := newTestServer(t)
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/messages/public", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello from public", dataMap(t, resp)["message"])
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

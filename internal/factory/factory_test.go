package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-guard/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Guard: config.GuardConfig{
			MaxAttempts:     3,
			CooldownSeconds: 30,
			TickInterval:    time.Second,
			StorePrefix:     "login_guard",
		},
		Identity: config.IdentityConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Backend:  config.BackendConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Storage: config.StorageConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "guard.db"),
		},
		Redis:    config.RedisConfig{URL: "redis://127.0.0.1:1/0", PoolSize: 2},
		Sessions: config.SessionsConfig{Shards: 4, IdleTTL: time.Minute, CookieName: "lg_client"},
	}
}

func TestNew_SQLite(t *testing.T) {
	f, err := New(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.Equal(t, "sqlite", f.StoreDriver())
	assert.NotNil(t, f.LoginService())
	assert.Nil(t, f.TLSManager())
	assert.Empty(t, f.HealthCheck(context.Background()))
	assert.True(t, f.IsHealthy(context.Background()))
}

func TestNew_PersistsLockoutAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
	}))
	t.Cleanup(idp.Close)
	cfg.Identity.BaseURL = idp.URL
	ctx := context.Background()
	clientID := "7c8e3a52-5c9f-4d0e-9f3f-0d6b1c2e4a11"

	f, err := New(cfg, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _ = f.LoginService().Login(ctx, clientID, "dana@example.com", "wrong")
	}
	require.NoError(t, f.Close())

	f2, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f2.Close() })
	st, err := f2.LoginService().LockoutStatus(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.AttemptsRemaining)
	assert.Equal(t, "locked", st.StateName)
}

func TestNew_RedisUnavailableFallsBackOutsideProduction(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "redis"

	f, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	assert.Equal(t, "memory", f.StoreDriver())
}

func TestNew_RedisUnavailableFailsInProduction(t *testing.T) {
	cfg := testConfig(t)
	cfg.Environment = "production"
	cfg.Storage.Driver = "redis"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	f, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed")
	}
}

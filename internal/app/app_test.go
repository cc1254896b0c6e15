package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthlink/internal/config"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

func loadConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	t.Setenv("OAUTHLINK_STORAGE_DRIVER", "sqlite")
	t.Setenv("OAUTHLINK_STORAGE_DSN", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("OAUTHLINK_PROVIDERS_GITHUB_ENABLED", "true")
	t.Setenv("OAUTHLINK_PROVIDERS_GITHUB_CLIENT_ID", "gh-client")
	t.Setenv("OAUTHLINK_PROVIDERS_GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("OAUTHLINK_PROVIDERS_GITHUB_REDIRECT_URL", "https://app.example.com/auth/github/callback")
	for k, v := range extra {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, Options{Version: "test", Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_MemoryDrivers(t *testing.T) {
	a := newApp(t, loadConfig(t, nil))

	assert.Equal(t, []oauth.ProviderID{oauth.GitHub}, a.Registry.Enabled())

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test", body["version"])

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/github?return_to=/home", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), "https://github.com/login/oauth/authorize"))
	assert.Equal(t, "gh-client", loc.Query().Get("client_id"))
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
	assert.Len(t, loc.Query().Get("state"), 64)

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_RedisDriversAndRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"OAUTHLINK_REDIS_ADDR":               mr.Addr(),
		"OAUTHLINK_PENDING_DRIVER":           "redis",
		"OAUTHLINK_PENDING_SEAL_KEY":         strings.Repeat("ab", 32),
		"OAUTHLINK_SESSION_DRIVER":           "redis",
		"OAUTHLINK_RATE_INITIATE_PER_MINUTE": "1",
	})
	a := newApp(t, cfg)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		rec := httptest.NewRecorder()
		a.Handler.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusFound, do().Code)
	n, err := a.Pending.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"OAUTHLINK_REDIS_ADDR":     "127.0.0.1:1",
		"OAUTHLINK_SESSION_DRIVER": "redis",
	})
	_, err := New(context.Background(), cfg, Options{Registry: prometheus.NewRegistry()})
	require.Error(t, err)
}

func TestOpenStore_AppliesSchema(t *testing.T) {
	cfg := loadConfig(t, nil)
	st, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	links, err := st.Repos().Links().ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestClose_DrainsAndIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), loadConfig(t, nil), Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

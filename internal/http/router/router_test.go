package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthlink/internal/flow"
	"github.com/dropDatabas3/oauthlink/internal/http/controllers"
	mw "github.com/dropDatabas3/oauthlink/internal/http/middlewares"
	"github.com/dropDatabas3/oauthlink/internal/linker"
	"github.com/dropDatabas3/oauthlink/internal/metrics"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/oauth/github"
	"github.com/dropDatabas3/oauthlink/internal/pending"
	"github.com/dropDatabas3/oauthlink/internal/session"
	"github.com/dropDatabas3/oauthlink/internal/store/sqlite"
)

// fakeGitHub valida el code_verifier contra el challenge que el "navegador"
// vio en la URL de autorización.
type fakeGitHub struct {
	srv *httptest.Server

	mu         sync.Mutex
	challenges map[string]string // code -> challenge
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{challenges: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		want, ok := f.challenges[r.PostForm.Get("code")]
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok || oauth.S256Challenge(r.PostForm.Get("code_verifier")) != want {
			fmt.Fprint(w, `{"error":"bad_verification_code"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"gho_abc","token_type":"bearer"}`)
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 583231, "login": "octocat", "name": "The Octocat",
			"email": "octocat@example.com", "avatar_url": "https://avatars.example.com/u/583231",
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// authorize simula al usuario aprobando en GitHub: devuelve code y state.
func (f *fakeGitHub) authorize(t *testing.T, authURL string) (code, state string) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	code = fmt.Sprintf("code-%d", time.Now().UnixNano())
	f.mu.Lock()
	f.challenges[code] = q.Get("code_challenge")
	f.mu.Unlock()
	return code, q.Get("state")
}

type testServer struct {
	srv    *httptest.Server
	gh     *fakeGitHub
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gh := newFakeGitHub(t)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))

	p, err := github.New(github.Config{
		ProviderConfig: oauth.ProviderConfig{
			ClientID:    "gh-client",
			RedirectURL: "http://app.test/auth/github/callback",
			HTTPClient:  gh.srv.Client(),
		},
		AuthURL:  gh.srv.URL + "/login/oauth/authorize",
		TokenURL: gh.srv.URL + "/login/oauth/access_token",
		APIURL:   gh.srv.URL + "/api",
	})
	require.NoError(t, err)
	reg := oauth.NewRegistry()
	reg.Add(p)

	sessions := session.NewMemory(time.Hour)
	t.Cleanup(sessions.Close)

	coord, err := flow.New(flow.Deps{
		Providers: reg,
		Pending:   pending.NewMemory(),
		Linker:    linker.New(store, linker.Options{}),
		Sessions:  sessions,
	})
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(promReg))

	cookie := mw.SessionCookie{Name: "sid"}
	h := New(Deps{
		Auth:     controllers.NewAuthController(coord, sessions, cookie),
		Health:   controllers.NewHealthController("test", reg.Enabled, map[string]controllers.Pinger{"db": store}),
		Sessions: sessions,
		Cookie:   cookie,
		Gatherer: promReg,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{
		srv: srv,
		gh:  gh,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (s *testServer) do(t *testing.T, method, path, sid string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, nil)
	require.NoError(t, err)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func sessionCookie(res *http.Response) string {
	for _, c := range res.Cookies() {
		if c.Name == "sid" {
			return c.Value
		}
	}
	return ""
}

// login recorre start -> github -> callback y retorna el session id.
func (s *testServer) login(t *testing.T, sid string) string {
	t.Helper()
	res := s.do(t, http.MethodGet, "/auth/github?return_to=/dashboard", sid)
	require.Equal(t, http.StatusFound, res.StatusCode)
	code, state := s.gh.authorize(t, res.Header.Get("Location"))

	res = s.do(t, http.MethodGet, "/auth/github/callback?code="+code+"&state="+state, sid)
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/dashboard", res.Header.Get("Location"))
	out := sessionCookie(res)
	require.NotEmpty(t, out)
	return out
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t)

	sid := s.login(t, "")

	res := s.do(t, http.MethodGet, "/auth/links", sid)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Links []struct {
			Provider    string `json:"provider"`
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
		} `json:"links"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Len(t, body.Links, 1)
	assert.Equal(t, "github", body.Links[0].Provider)
	assert.Equal(t, "octocat@example.com", body.Links[0].Email)
	assert.Equal(t, "The Octocat", body.Links[0].DisplayName)
}

func TestCallback_ReplayIsRejected(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/auth/github", "")
	require.Equal(t, http.StatusFound, res.StatusCode)
	code, state := s.gh.authorize(t, res.Header.Get("Location"))

	path := "/auth/github/callback?code=" + code + "&state=" + state
	require.Equal(t, http.StatusFound, s.do(t, http.MethodGet, path, "").StatusCode)

	res = s.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "INVALID_STATE", body["code"])
}

func TestCallback_AccessDenied(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/auth/github", "")
	_, state := s.gh.authorize(t, res.Header.Get("Location"))

	res = s.do(t, http.MethodGet, "/auth/github/callback?error=access_denied&state="+state, "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Empty(t, sessionCookie(res))
}

func TestCallback_BadCodeIsGenericProviderError(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/auth/github", "")
	_, state := s.gh.authorize(t, res.Header.Get("Location"))

	res = s.do(t, http.MethodGet, "/auth/github/callback?code=forged&state="+state, "")
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "bad_verification_code")
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestUnknownProvider(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/auth/myspace", "").StatusCode)
	// google es válido pero no está habilitado
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/auth/google", "").StatusCode)
}

func TestAuthenticatedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/links", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/auth/github/unlink", "bogus").StatusCode)
}

func TestUnlinkAndLogout(t *testing.T) {
	s := newTestServer(t)
	sid := s.login(t, "")

	// único link y sin password
	res := s.do(t, http.MethodPost, "/auth/github/unlink", sid)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = s.do(t, http.MethodPost, "/auth/logout", sid)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/links", sid).StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "")

	res := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, []any{"github"}, health["providers"])

	res = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `oauthlink_flows_initiated_total{provider="github"}`)
	assert.Contains(t, string(raw), `route="/auth/{provider}/callback"`)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	res := s.do(t, http.MethodGet, "/auth/github", "")
	assert.Equal(t, "no-referrer", res.Header.Get("Referrer-Policy"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

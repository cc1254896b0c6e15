package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/auth/github/callback",
		Scopes:       []string{"read:user", "user:email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://idp.example.com/authorize",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestAuthCodeURL_CarriesPKCEAndState(t *testing.T) {
	raw := AuthCodeURL(testConfig("https://idp.example.com/token"), "st4te", "ch4llenge",
		oauth2.SetAuthURLParam("allow_signup", "true"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/auth/github/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "ch4llenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "true", q.Get("allow_signup"))
	assert.Empty(t, q.Get("access_type"))
}

func TestExchange_SendsVerifierAndReturnsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "the-verifier", r.PostForm.Get("code_verifier"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600,"id_token":"h.p.s"}`)
	}))
	defer srv.Close()

	tok, err := Exchange(context.Background(), GitHub, testConfig(srv.URL), srv.Client(), "the-code", "the-verifier")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "h.p.s", tok.IDToken)
}

func TestExchange_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind ErrorKind
		wantCode string
	}{
		{
			name: "invalid_grant with 400",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"bad code"}`)
			},
			wantKind: KindRejected,
			wantCode: "invalid_grant",
		},
		{
			name: "error body with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
				fmt.Fprint(w, "error=bad_verification_code&error_description=expired")
			},
			wantKind: KindRejected,
			wantCode: "bad_verification_code",
		},
		{
			name: "non-json 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, "<html>oops</html>")
			},
			wantKind: KindRejected,
			wantCode: "http_500",
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"token_type":"Bearer"}`)
			},
			wantKind: KindRejected,
			wantCode: "invalid_response",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := Exchange(context.Background(), GitHub, testConfig(srv.URL), srv.Client(), "c", "v")
			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "got %T %v", err, err)
			assert.Equal(t, tc.wantKind, pe.Kind)
			assert.Equal(t, tc.wantCode, pe.Code)
			assert.Equal(t, GitHub, pe.Provider)
		})
	}
}

func TestExchange_TimeoutIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := Exchange(context.Background(), Google, testConfig(srv.URL), client, "c", "v")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindNetwork, pe.Kind)
	assert.Empty(t, pe.Code)
}

func TestExchange_UnreachableIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL
	srv.Close()

	_, err := Exchange(context.Background(), OIDC, testConfig(tokenURL), &http.Client{Timeout: time.Second}, "c", "v")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindNetwork, pe.Kind)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"id":7}`)
	}))
	defer srv.Close()

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, GetJSON(context.Background(), GitHub, "userinfo", srv.Client(), srv.URL, "good", &out))
	assert.Equal(t, 7, out.ID)

	err := GetJSON(context.Background(), GitHub, "userinfo", srv.Client(), srv.URL, "bad", &out)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindRejected, pe.Kind)
	assert.Equal(t, "http_401", pe.Code)
	assert.Equal(t, "Bad credentials", pe.Description)
}

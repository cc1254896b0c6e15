// Package oauth contiene el contrato de los provider adapters, el registry y
// la plumbing compartida (PKCE, state, token exchange vía golang.org/x/oauth2).
//
// Cada adapter vive en su subpaquete: google (OIDC con discovery), github
// (OAuth2 + API REST) y oidc (OIDC genérico vía go-oidc).
package oauth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ProviderID identifica un provider soportado.
type ProviderID string

const (
	Google ProviderID = "google"
	GitHub ProviderID = "github"
	OIDC   ProviderID = "oidc"
)

// ParseProviderID valida el nombre recibido por URL/CLI.
func ParseProviderID(s string) (ProviderID, bool) {
	switch id := ProviderID(strings.ToLower(strings.TrimSpace(s))); id {
	case Google, GitHub, OIDC:
		return id, true
	}
	return "", false
}

func (p ProviderID) String() string { return string(p) }

// Token es el resultado del code exchange.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// Identity es la identidad externa normalizada. Es transitoria: nunca se
// persiste tal cual, el linker la proyecta sobre AccountLink.
type Identity struct {
	Provider       ProviderID
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	AvatarURL      string
}

// Provider es el contrato de un adapter. Ninguna operación reintenta.
type Provider interface {
	ID() ProviderID

	// AuthorizationURL arma la URL de redirect con client_id, redirect_uri,
	// response_type=code, scope, state, code_challenge y code_challenge_method=S256.
	AuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error)

	// ExchangeCode canjea el code (enviando code_verifier). Errores: *ProviderError.
	ExchangeCode(ctx context.Context, code, verifier string) (*Token, error)

	// FetchIdentity obtiene y normaliza la identidad. Errores: *ProviderError.
	FetchIdentity(ctx context.Context, tok *Token) (*Identity, error)
}

// DefaultTimeout acota cada llamada saliente a un provider.
const DefaultTimeout = 10 * time.Second

// ProviderConfig es la configuración común a los adapters.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration

	// HTTPClient opcional (tests). Si es nil se crea uno con Timeout.
	HTTPClient *http.Client
}

// Client retorna el *http.Client a usar para este provider.
func (c ProviderConfig) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ScopesOr retorna los scopes configurados o def si no hay.
func (c ProviderConfig) ScopesOr(def ...string) []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return def
}

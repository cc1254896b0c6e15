// Package google implementa el adapter OIDC de Google: discovery document,
// token exchange con PKCE y verificación local del id_token (RS256 + JWKS).
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/oauthlink/internal/cache"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

const (
	DefaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

	discoveryTTL = 24 * time.Hour
	jwksTTL      = 1 * time.Hour
	clockSkew    = 30 * time.Second
)

var defaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

type discoveryDoc struct {
	Issuer           string `json:"issuer"`
	AuthEndpoint     string `json:"authorization_endpoint"`
	TokenEndpoint    string `json:"token_endpoint"`
	UserinfoEndpoint string `json:"userinfo_endpoint"`
	JWKSURI          string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Config del adapter.
type Config struct {
	oauth.ProviderConfig

	// DiscoveryURL default: accounts.google.com. Se puede apuntar a un fake en tests.
	DiscoveryURL string
	// Issuers aceptados en "iss". Default: los dos de Google. Si DiscoveryURL
	// se cambia y Issuers está vacío, se usa el issuer del discovery doc.
	Issuers []string
	// Cache para discovery y JWKS. Default: memoria.
	Cache cache.Client
	Now   func() time.Time
}

// Provider es el adapter A.
type Provider struct {
	cfg    Config
	http   *http.Client
	cache  cache.Client
	group  singleflight.Group
	scopes []string
}

var _ oauth.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google: client_id is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("google: redirect_url is required")
	}
	if cfg.DiscoveryURL == "" {
		cfg.DiscoveryURL = DefaultDiscoveryURL
		if len(cfg.Issuers) == 0 {
			cfg.Issuers = defaultIssuers
		}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory("google")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		cfg:    cfg,
		http:   cfg.Client(),
		cache:  cfg.Cache,
		scopes: cfg.ScopesOr("openid", "email", "profile"),
	}, nil
}

// Factory adapta New a oauth.Factory (solo ProviderConfig, endpoints default).
func Factory(cfg oauth.ProviderConfig) (oauth.Provider, error) {
	return New(Config{ProviderConfig: cfg})
}

func (g *Provider) ID() oauth.ProviderID { return oauth.Google }

func (g *Provider) oauthConfig(disc *discoveryDoc) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		RedirectURL:  g.cfg.RedirectURL,
		Scopes:       g.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   disc.AuthEndpoint,
			TokenURL:  disc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL construye la URL de autorización.
func (g *Provider) AuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return "", err
	}
	return oauth.AuthCodeURL(g.oauthConfig(disc), state, codeChallenge,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

func (g *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth.Token, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	return oauth.Exchange(ctx, oauth.Google, g.oauthConfig(disc), g.http, code, verifier)
}

// FetchIdentity valida el id_token y arma la identidad desde sus claims.
func (g *Provider) FetchIdentity(ctx context.Context, tok *oauth.Token) (*oauth.Identity, error) {
	if tok == nil || tok.IDToken == "" {
		return nil, oauth.Rejected(oauth.Google, "verify", "missing_id_token", "token response has no id_token")
	}
	claims, err := g.VerifyIDToken(ctx, tok.IDToken)
	if err != nil {
		return nil, err
	}
	sub := strClaim(claims, "sub")
	if sub == "" {
		return nil, oauth.Rejected(oauth.Google, "verify", "invalid_id_token", "missing sub")
	}
	return &oauth.Identity{
		Provider:       oauth.Google,
		ProviderUserID: sub,
		Email:          strClaim(claims, "email"),
		EmailVerified:  boolClaim(claims, "email_verified"),
		DisplayName:    strClaim(claims, "name"),
		AvatarURL:      strClaim(claims, "picture"),
	}, nil
}

// VerifyIDToken valida firma, alg, iss, aud y exp.
func (g *Provider) VerifyIDToken(ctx context.Context, idToken string) (jwtv5.MapClaims, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}

	var keyErr error
	keyFunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		k, err := g.rsaKeyForKid(ctx, disc.JWKSURI, kid)
		if err != nil {
			keyErr = err
		}
		return k, err
	}

	tok, err := jwtv5.Parse(idToken, keyFunc,
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithAudience(g.cfg.ClientID),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(clockSkew),
		jwtv5.WithTimeFunc(g.cfg.Now),
	)
	if keyErr != nil {
		var pe *oauth.ProviderError
		if errors.As(keyErr, &pe) {
			return nil, pe
		}
	}
	if err != nil || !tok.Valid {
		pe := oauth.Rejected(oauth.Google, "verify", "invalid_id_token", "")
		pe.Err = err
		return nil, pe
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, oauth.Rejected(oauth.Google, "verify", "invalid_id_token", "claims type")
	}

	iss, _ := claims["iss"].(string)
	issuers := g.cfg.Issuers
	if len(issuers) == 0 {
		issuers = []string{disc.Issuer}
	}
	if !slices.Contains(issuers, iss) {
		return nil, oauth.Rejected(oauth.Google, "verify", "invalid_id_token", "bad iss: "+iss)
	}
	return claims, nil
}

// discovery obtiene el discovery doc (cache 24h, una sola request concurrente).
func (g *Provider) discovery(ctx context.Context) (*discoveryDoc, error) {
	key := "discovery:" + g.cfg.DiscoveryURL
	raw, err := g.cached(ctx, key, discoveryTTL, func() ([]byte, error) {
		return g.fetch(ctx, "discovery", g.cfg.DiscoveryURL)
	})
	if err != nil {
		return nil, err
	}
	var dd discoveryDoc
	if err := json.Unmarshal(raw, &dd); err != nil {
		pe := oauth.Rejected(oauth.Google, "discovery", "invalid_response", "")
		pe.Err = err
		return nil, pe
	}
	if dd.AuthEndpoint == "" || dd.TokenEndpoint == "" || dd.JWKSURI == "" {
		return nil, oauth.Rejected(oauth.Google, "discovery", "invalid_response", "incomplete discovery document")
	}
	return &dd, nil
}

func (g *Provider) getJWKS(ctx context.Context, uri string, refresh bool) (*jwks, error) {
	key := "jwks:" + uri
	if refresh {
		_ = g.cache.Delete(ctx, key)
	}
	raw, err := g.cached(ctx, key, jwksTTL, func() ([]byte, error) {
		return g.fetch(ctx, "jwks", uri)
	})
	if err != nil {
		return nil, err
	}
	var jj jwks
	if err := json.Unmarshal(raw, &jj); err != nil {
		pe := oauth.Rejected(oauth.Google, "jwks", "invalid_response", "")
		pe.Err = err
		return nil, pe
	}
	return &jj, nil
}

// rsaKeyForKid busca kid en el JWKS; si no está, refresca una vez (rotación).
func (g *Provider) rsaKeyForKid(ctx context.Context, uri, kid string) (*rsa.PublicKey, error) {
	for _, refresh := range []bool{false, true} {
		set, err := g.getJWKS(ctx, uri, refresh)
		if err != nil {
			return nil, err
		}
		for _, k := range set.Keys {
			if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
				return rsaPublicKey(k)
			}
		}
	}
	return nil, errors.New("kid not found")
}

func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 65537
	if len(eb) > 0 {
		// big-endian bytes to int
		e = 0
		for _, b := range eb {
			e = (e << 8) | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// cached lee key del cache; en miss ejecuta load una sola vez aunque haya
// varios callers concurrentes y guarda el resultado con ttl.
func (g *Provider) cached(ctx context.Context, key string, ttl time.Duration, load func() ([]byte, error)) ([]byte, error) {
	if b, err := g.cache.Get(ctx, key); err == nil {
		return b, nil
	}
	v, err, _ := g.group.Do(key, func() (any, error) {
		b, err := load()
		if err != nil {
			return nil, err
		}
		_ = g.cache.Set(ctx, key, b, ttl)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (g *Provider) fetch(ctx context.Context, op, url string) ([]byte, error) {
	var raw json.RawMessage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, oauth.Classify(oauth.Google, op, err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, oauth.Network(oauth.Google, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, oauth.Rejected(oauth.Google, op, oauth.HTTPStatusCode(resp.StatusCode), "")
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		pe := oauth.Rejected(oauth.Google, op, "invalid_response", "")
		pe.Err = fmt.Errorf("decode %s: %w", op, err)
		return nil, pe
	}
	return raw, nil
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

func boolClaim(m jwtv5.MapClaims, k string) bool {
	switch v := m[k].(type) {
	case bool:
		return v
	case string:
		// algunos IdPs mandan "true" como string
		return v == "true"
	}
	return false
}

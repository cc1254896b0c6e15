// Package oidc implementa el adapter OIDC genérico sobre coreos/go-oidc.
// Soporta discovery por issuer o endpoints configurados a mano.
package oidc

import (
	"context"
	"errors"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

// Config del adapter. Issuer activa discovery; si está vacío se usan los
// endpoints manuales (AuthURL y TokenURL obligatorios).
type Config struct {
	oauth.ProviderConfig

	Issuer string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
}

// Provider es el adapter C.
type Provider struct {
	cfg Config

	mu    sync.Mutex
	op    *gooidc.Provider
	group singleflight.Group
}

var _ oauth.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("oidc: client_id is required")
	}
	if cfg.Issuer == "" && (cfg.AuthURL == "" || cfg.TokenURL == "") {
		return nil, errors.New("oidc: either issuer or auth_url+token_url is required")
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) ID() oauth.ProviderID { return oauth.OIDC }

func (p *Provider) clientCtx(ctx context.Context) context.Context {
	return gooidc.ClientContext(ctx, p.cfg.Client())
}

// provider resuelve (y memoiza) el *gooidc.Provider. El discovery corre
// fuera del lock y una sola vez aunque lleguen callbacks concurrentes; cada
// caller deja de esperar cuando vence su ctx. El discovery en sí queda
// acotado por el timeout del http.Client.
// Un discovery fallido no se memoiza: el próximo intento vuelve a probar.
func (p *Provider) provider(ctx context.Context) (*gooidc.Provider, error) {
	p.mu.Lock()
	op := p.op
	p.mu.Unlock()
	if op != nil {
		return op, nil
	}

	dctx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("discovery", func() (any, error) {
		op, err := p.discover(dctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.op = op
		p.mu.Unlock()
		return op, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gooidc.Provider), nil
	case <-ctx.Done():
		return nil, oauth.Classify(oauth.OIDC, "discovery", ctx.Err())
	}
}

func (p *Provider) discover(ctx context.Context) (*gooidc.Provider, error) {
	if p.cfg.Issuer == "" {
		return (&gooidc.ProviderConfig{
			AuthURL:     p.cfg.AuthURL,
			TokenURL:    p.cfg.TokenURL,
			UserInfoURL: p.cfg.UserInfoURL,
			JWKSURL:     p.cfg.JWKSURL,
		}).NewProvider(p.clientCtx(ctx)), nil
	}
	op, err := gooidc.NewProvider(p.clientCtx(ctx), p.cfg.Issuer)
	if err != nil {
		return nil, oauth.Classify(oauth.OIDC, "discovery", err)
	}
	return op, nil
}

func (p *Provider) oauthConfig(op *gooidc.Provider) *oauth2.Config {
	ep := op.Endpoint()
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       p.cfg.ScopesOr(gooidc.ScopeOpenID, "email", "profile"),
		Endpoint:     ep,
	}
}

func (p *Provider) AuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error) {
	op, err := p.provider(ctx)
	if err != nil {
		return "", err
	}
	return oauth.AuthCodeURL(p.oauthConfig(op), state, codeChallenge), nil
}

func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth.Token, error) {
	op, err := p.provider(ctx)
	if err != nil {
		return nil, err
	}
	return oauth.Exchange(ctx, oauth.OIDC, p.oauthConfig(op), p.cfg.Client(), code, verifier)
}

type profileClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Username      string `json:"preferred_username"`
	Picture       string `json:"picture"`
}

func (c profileClaims) verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// FetchIdentity verifica el id_token (si hay y se puede) y consulta userinfo.
// Si ambos están disponibles, el sub tiene que coincidir.
func (p *Provider) FetchIdentity(ctx context.Context, tok *oauth.Token) (*oauth.Identity, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, oauth.Rejected(oauth.OIDC, "userinfo", "missing_access_token", "")
	}
	op, err := p.provider(ctx)
	if err != nil {
		return nil, err
	}
	cctx := p.clientCtx(ctx)

	var fromID *profileClaims
	if tok.IDToken != "" && (p.cfg.Issuer != "" || p.cfg.JWKSURL != "") {
		verifier := op.Verifier(&gooidc.Config{
			ClientID:        p.cfg.ClientID,
			SkipIssuerCheck: p.cfg.Issuer == "",
		})
		idt, err := verifier.Verify(cctx, tok.IDToken)
		if err != nil {
			pe := oauth.Classify(oauth.OIDC, "verify", err)
			if pe.Kind == oauth.KindRejected {
				pe.Code = "invalid_id_token"
			}
			return nil, pe
		}
		var c profileClaims
		if err := idt.Claims(&c); err != nil {
			pe := oauth.Rejected(oauth.OIDC, "verify", "invalid_id_token", "")
			pe.Err = err
			return nil, pe
		}
		c.Subject = idt.Subject
		fromID = &c
	}

	var fromUI *profileClaims
	if op.UserInfoEndpoint() != "" {
		ui, err := op.UserInfo(cctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: tok.AccessToken,
			TokenType:   "Bearer",
		}))
		if err != nil {
			return nil, oauth.Classify(oauth.OIDC, "userinfo", err)
		}
		var c profileClaims
		if err := ui.Claims(&c); err != nil {
			pe := oauth.Rejected(oauth.OIDC, "userinfo", "invalid_response", "")
			pe.Err = err
			return nil, pe
		}
		c.Subject = ui.Subject
		fromUI = &c
	}

	switch {
	case fromUI == nil && fromID == nil:
		return nil, oauth.Rejected(oauth.OIDC, "userinfo", "no_identity_source", "neither userinfo endpoint nor verifiable id_token")
	case fromUI != nil && fromID != nil && fromUI.Subject != fromID.Subject:
		return nil, oauth.Rejected(oauth.OIDC, "userinfo", "subject_mismatch", "")
	}

	c := mergeClaims(fromUI, fromID)
	if c.Subject == "" {
		return nil, oauth.Rejected(oauth.OIDC, "userinfo", "invalid_response", "missing sub")
	}
	name := c.Name
	if name == "" {
		name = c.Username
	}
	return &oauth.Identity{
		Provider:       oauth.OIDC,
		ProviderUserID: c.Subject,
		Email:          c.Email,
		EmailVerified:  c.verified(),
		DisplayName:    name,
		AvatarURL:      c.Picture,
	}, nil
}

// mergeClaims prioriza userinfo y completa huecos con el id_token.
func mergeClaims(primary, fallback *profileClaims) profileClaims {
	if primary == nil {
		return *fallback
	}
	out := *primary
	if fallback == nil {
		return out
	}
	if out.Email == "" {
		out.Email = fallback.Email
		out.EmailVerified = fallback.EmailVerified
	}
	if out.Name == "" {
		out.Name = fallback.Name
	}
	if out.Username == "" {
		out.Username = fallback.Username
	}
	if out.Picture == "" {
		out.Picture = fallback.Picture
	}
	return out
}

// Factory adapta New a oauth.Factory. Sin issuer ni endpoints falla; la
// config real entra por New desde internal/app.
func Factory(cfg oauth.ProviderConfig) (oauth.Provider, error) {
	return New(Config{ProviderConfig: cfg})
}

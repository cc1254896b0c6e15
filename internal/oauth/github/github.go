// Package github implementa el adapter OAuth 2.0 de GitHub.
// GitHub no emite id_token: la identidad sale de /user y, si el perfil no
// expone email, de /user/emails.
package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

const (
	DefaultAuthURL  = "https://github.com/login/oauth/authorize"
	DefaultTokenURL = "https://github.com/login/oauth/access_token"
	DefaultAPIURL   = "https://api.github.com"
)

// Config del adapter. Los endpoints se pueden sobreescribir (GitHub Enterprise, tests).
type Config struct {
	oauth.ProviderConfig

	AuthURL  string
	TokenURL string
	APIURL   string
}

// Provider es el adapter B.
type Provider struct {
	cfg    Config
	oauth2 *oauth2.Config
}

var _ oauth.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("github: client_id is required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Provider{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.ScopesOr("read:user", "user:email"),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}, nil
}

// Factory adapta New a oauth.Factory.
func Factory(cfg oauth.ProviderConfig) (oauth.Provider, error) {
	return New(Config{ProviderConfig: cfg})
}

func (g *Provider) ID() oauth.ProviderID { return oauth.GitHub }

func (g *Provider) AuthorizationURL(_ context.Context, state, codeChallenge string) (string, error) {
	return oauth.AuthCodeURL(g.oauth2, state, codeChallenge,
		oauth2.SetAuthURLParam("allow_signup", "true"),
	), nil
}

func (g *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth.Token, error) {
	return oauth.Exchange(ctx, oauth.GitHub, g.oauth2, g.cfg.Client(), code, verifier)
}

// UserInfo es la respuesta de GET /user.
type UserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// EmailInfo es un elemento de GET /user/emails.
type EmailInfo struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchIdentity llama /user y, si el email es privado, /user/emails.
func (g *Provider) FetchIdentity(ctx context.Context, tok *oauth.Token) (*oauth.Identity, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, oauth.Rejected(oauth.GitHub, "userinfo", "missing_access_token", "")
	}
	client := g.cfg.Client()

	var info UserInfo
	if err := oauth.GetJSON(ctx, oauth.GitHub, "userinfo", client, g.cfg.APIURL+"/user", tok.AccessToken, &info); err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, oauth.Rejected(oauth.GitHub, "userinfo", "invalid_response", "missing user id")
	}

	id := &oauth.Identity{
		Provider:       oauth.GitHub,
		ProviderUserID: strconv.FormatInt(info.ID, 10),
		Email:          info.Email,
		DisplayName:    info.Name,
		AvatarURL:      info.AvatarURL,
	}
	if id.DisplayName == "" {
		id.DisplayName = info.Login
	}

	// GitHub solo permite publicar en el perfil emails ya verificados.
	if id.Email != "" {
		id.EmailVerified = true
		return id, nil
	}

	var emails []EmailInfo
	if err := oauth.GetJSON(ctx, oauth.GitHub, "emails", client, g.cfg.APIURL+"/user/emails", tok.AccessToken, &emails); err != nil {
		return nil, err
	}
	if e := PrimaryEmail(emails); e != nil {
		id.Email = e.Email
		id.EmailVerified = e.Verified
		return id, nil
	}

	// Sin emails visibles: dirección noreply estable por ID.
	id.Email = fmt.Sprintf("%d@users.noreply.github.com", info.ID)
	return id, nil
}

// PrimaryEmail elige primary+verified, luego cualquier verified, luego el primero.
func PrimaryEmail(emails []EmailInfo) *EmailInfo {
	for i := range emails {
		if emails[i].Primary && emails[i].Verified {
			return &emails[i]
		}
	}
	for i := range emails {
		if emails[i].Verified {
			return &emails[i]
		}
	}
	if len(emails) > 0 {
		return &emails[0]
	}
	return nil
}

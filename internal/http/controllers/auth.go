// Package controllers adapta HTTP al flow.Coordinator.
package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
	"github.com/dropDatabas3/oauthlink/internal/flow"
	httperrors "github.com/dropDatabas3/oauthlink/internal/http/errors"
	mw "github.com/dropDatabas3/oauthlink/internal/http/middlewares"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/session"
)

// Flow es lo que el controller necesita del coordinator.
type Flow interface {
	Initiate(ctx context.Context, req flow.InitiateRequest) (*flow.InitiateResult, error)
	Callback(ctx context.Context, req flow.CallbackRequest) (*flow.CallbackResult, error)
	Unlink(ctx context.Context, userID string, provider oauth.ProviderID) error
	Links(ctx context.Context, userID string) ([]repository.AccountLink, error)
}

// AuthController maneja /auth/*.
type AuthController struct {
	flow     Flow
	sessions session.Store
	cookie   mw.SessionCookie
}

func NewAuthController(f Flow, sessions session.Store, cookie mw.SessionCookie) *AuthController {
	return &AuthController{flow: f, sessions: sessions, cookie: cookie}
}

func providerParam(r *http.Request) (oauth.ProviderID, bool) {
	return oauth.ParseProviderID(chi.URLParam(r, "provider"))
}

// Start maneja GET /auth/{provider}?return_to=/x
// Con sesión activa el intento es de linking.
func (c *AuthController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthController.Start"))

	provider, ok := providerParam(r)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrProviderNotFound)
		return
	}

	res, err := c.flow.Initiate(ctx, flow.InitiateRequest{
		Provider:      provider,
		ReturnURL:     r.URL.Query().Get("return_to"),
		CurrentUserID: mw.GetUserID(ctx),
	})
	if err != nil {
		log.Warn("initiate failed", logger.Provider(provider.String()), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

// Callback maneja GET /auth/{provider}/callback?code=&state=
func (c *AuthController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthController.Callback"))

	provider, ok := providerParam(r)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrProviderNotFound)
		return
	}

	q := r.URL.Query()
	res, err := c.flow.Callback(ctx, flow.CallbackRequest{
		Provider:         provider,
		Code:             strings.TrimSpace(q.Get("code")),
		State:            strings.TrimSpace(q.Get("state")),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
		SessionID:        mw.GetSessionID(ctx),
		CorrelationID:    mw.GetRequestID(ctx),
	})
	if err != nil {
		// el coordinator ya logueó el detalle con el correlation id
		log.Debug("callback failed", logger.Provider(provider.String()), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	c.cookie.Set(w, res.SessionID)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.ReturnURL, http.StatusFound)
}

// Unlink maneja POST /auth/{provider}/unlink (requiere sesión).
func (c *AuthController) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider, ok := providerParam(r)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrProviderNotFound)
		return
	}
	if err := c.flow.Unlink(ctx, mw.GetUserID(ctx), provider); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkResponse struct {
	Provider    string    `json:"provider"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
}

// Links maneja GET /auth/links (requiere sesión).
func (c *AuthController) Links(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	links, err := c.flow.Links(ctx, mw.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, linkResponse{
			Provider:    l.Provider,
			Email:       l.Email,
			DisplayName: l.DisplayName,
			AvatarURL:   l.AvatarURL,
			LinkedAt:    l.CreatedAt,
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"links": out})
}

// Logout maneja POST /auth/logout.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sid := mw.GetSessionID(ctx); sid != "" {
		if err := c.sessions.Delete(ctx, sid); err != nil {
			logger.From(ctx).Warn("session delete failed", logger.Err(err))
		}
	}
	c.cookie.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

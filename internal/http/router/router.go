// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/oauthlink/internal/http/controllers"
	httperrors "github.com/dropDatabas3/oauthlink/internal/http/errors"
	mw "github.com/dropDatabas3/oauthlink/internal/http/middlewares"
	"github.com/dropDatabas3/oauthlink/internal/rate"
	"github.com/dropDatabas3/oauthlink/internal/session"
)

// Deps contiene lo necesario para montar las rutas.
type Deps struct {
	Auth     *controllers.AuthController
	Health   *controllers.HealthController
	Sessions session.Store
	Cookie   mw.SessionCookie

	// RateLimiter limita los inicios de login por IP; nil = sin límite.
	RateLimiter rate.Limiter
	// TrustedProxies habilita X-Forwarded-For para calcular la IP.
	TrustedProxies mw.TrustedProxies

	// Gatherer para /metrics; nil = registry default.
	Gatherer prometheus.Gatherer
}

// New retorna el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithSecurityHeaders(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.WithSession(d.Sessions, d.Cookie))

		r.Post("/logout", d.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser())
			r.Get("/links", d.Auth.Links)
			r.Post("/{provider}/unlink", d.Auth.Unlink)
		})

		r.With(mw.WithRateLimit(d.RateLimiter, d.TrustedProxies)).Get("/{provider}", d.Auth.Start)
		r.Get("/{provider}/callback", d.Auth.Callback)
	})

	return r
}

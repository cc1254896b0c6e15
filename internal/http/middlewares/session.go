package middlewares

import (
	"errors"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/oauthlink/internal/http/errors"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/session"
)

// SessionCookie es el transporte del session id. El resto del servicio solo
// ve ids, nunca la cookie.
type SessionCookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return "oauthlink_session"
	}
	return c.Name
}

// Read retorna el session id del request o "".
func (c SessionCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

// Set escribe la cookie. SameSite=Lax: el redirect de vuelta desde el
// provider es una navegación top-level y tiene que llevar la cookie.
func (c SessionCookie) Set(w http.ResponseWriter, sessionID string) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear borra la cookie.
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithSession resuelve la cookie contra el session store y deja session id y
// usuario (si hay) en el contexto. No exige sesión.
func WithSession(store session.Store, cookie SessionCookie) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := cookie.Read(r)
			if sid == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := withSessionID(r.Context(), sid)
			uid, err := store.AuthenticatedUser(ctx, sid)
			switch {
			case err == nil:
				ctx = WithUserID(ctx, uid)
			case errors.Is(err, session.ErrNoSession):
			default:
				logger.From(ctx).Warn("session lookup failed", logger.Err(err))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser responde 401 si no hay usuario autenticado.
func RequireUser() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package controllers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/oauthlink/internal/http/errors"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
)

// Pinger es cualquier dependencia chequeable (base de datos, redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController responde /healthz.
type HealthController struct {
	checks    map[string]Pinger
	providers func() []oauth.ProviderID
	version   string
}

func NewHealthController(version string, providers func() []oauth.ProviderID, checks map[string]Pinger) *HealthController {
	return &HealthController{checks: checks, providers: providers, version: version}
}

func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(c.checks))
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			logger.From(ctx).Warn("health check failed", logger.Component(name), logger.Err(err))
			components[name] = "down"
			status = "degraded"
			continue
		}
		components[name] = "up"
	}

	var providers []oauth.ProviderID
	if c.providers != nil {
		providers = c.providers()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, code, map[string]any{
		"status":     status,
		"version":    c.version,
		"components": components,
		"providers":  providers,
	})
}

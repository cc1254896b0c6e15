// Package app arma el servicio a partir de la configuración: storage,
// stores efímeros, providers, linker, coordinator y router HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/oauthlink/internal/cache"
	"github.com/dropDatabas3/oauthlink/internal/config"
	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
	"github.com/dropDatabas3/oauthlink/internal/email"
	"github.com/dropDatabas3/oauthlink/internal/flow"
	"github.com/dropDatabas3/oauthlink/internal/http/controllers"
	mw "github.com/dropDatabas3/oauthlink/internal/http/middlewares"
	"github.com/dropDatabas3/oauthlink/internal/http/router"
	"github.com/dropDatabas3/oauthlink/internal/linker"
	"github.com/dropDatabas3/oauthlink/internal/metrics"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/oauth/github"
	"github.com/dropDatabas3/oauthlink/internal/oauth/google"
	"github.com/dropDatabas3/oauthlink/internal/oauth/oidc"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/pending"
	"github.com/dropDatabas3/oauthlink/internal/rate"
	"github.com/dropDatabas3/oauthlink/internal/security/secretbox"
	"github.com/dropDatabas3/oauthlink/internal/session"
	"github.com/dropDatabas3/oauthlink/internal/store/pg"
	"github.com/dropDatabas3/oauthlink/internal/store/sqlite"
)

// tiempo máximo que Close espera a las notificaciones por mail en curso
const notifyDrainTimeout = 10 * time.Second

// Options ajustes que no vienen de la config.
type Options struct {
	Version string

	// Registry para métricas; nil = registry default de prometheus.
	Registry *prometheus.Registry

	// HTTPClient para llamar a los providers (tests). nil = uno por provider.
	HTTPClient *http.Client

	Now func() time.Time
}

// App es el servicio cableado.
type App struct {
	Handler     http.Handler
	Coordinator *flow.Coordinator
	Linker      *linker.Linker
	Registry    *oauth.Registry
	Pending     pending.Store
	Reaper      *pending.Reaper
	Store       repository.Store

	closers []func() error
}

// OpenStore abre el storage según cfg.Storage y aplica el schema.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var (
		st  repository.Store
		err error
	)
	switch cfg.Storage.Driver {
	case "postgres":
		st, err = pg.Open(ctx, pg.Config{
			DSN:      cfg.Storage.DSN,
			MaxConns: cfg.Storage.MaxConns,
			MinConns: cfg.Storage.MinConns,
		})
	case "sqlite":
		st, err = sqlite.Open(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("app: unsupported storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: ensure schema: %w", err)
	}
	return st, nil
}

// New construye la App. Ante error libera lo que ya se abrió.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Storage durable
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	checks := map[string]controllers.Pinger{"storage": st}

	// 2. Redis compartido (solo si algún componente lo usa)
	var rdb redis.UniversalClient
	if needsRedis(cfg) {
		c := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		rdb = c
		a.closers = append(a.closers, c.Close)
		checks["redis"] = redisPinger{rdb}
	}

	// 3. Stores efímeros
	var pend pending.Store
	switch cfg.Pending.Driver {
	case "redis":
		box, err := secretbox.New(cfg.Pending.SealKey)
		if err != nil {
			return nil, fmt.Errorf("app: pending seal key: %w", err)
		}
		pend = pending.NewRedis(rdb, box, cfg.Redis.Prefix+":pending")
	default:
		pend = pending.NewMemory()
	}
	a.Pending = pend
	a.Reaper = pending.NewReaper(pend, cfg.Pending.SweepInterval, opts.Now)

	var sessions session.Store
	switch cfg.Session.Driver {
	case "redis":
		sessions = session.NewRedis(rdb, cfg.Redis.Prefix+":session", cfg.Session.TTL)
	default:
		m := session.NewMemory(cfg.Session.TTL)
		a.closers = append(a.closers, func() error { m.Close(); return nil })
		sessions = m
	}

	cc, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix + ":cache",
	})
	if err != nil {
		return nil, fmt.Errorf("app: cache: %w", err)
	}
	a.closers = append(a.closers, cc.Close)

	// 4. Providers
	a.Registry, err = buildProviders(cfg, cc, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	log.Info("providers enabled", logger.Any("providers", a.Registry.Enabled()))

	// 5. Dominio
	a.Linker = linker.New(st, linker.Options{
		AutoLinkVerifiedEmail: cfg.Linking.AutoLinkVerifiedEmail,
		AllowUnlinkLast:       cfg.Linking.AllowUnlinkLast,
	})

	var notifier email.Notifier = email.Nop{}
	if cfg.SMTP.Enabled {
		notifier = email.NewSMTPNotifier(email.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLSMode,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			AppName:            cfg.App.Name,
		})
	}

	a.Coordinator, err = flow.New(flow.Deps{
		Providers: a.Registry,
		Pending:   pend,
		Linker:    a.Linker,
		Sessions:  sessions,
		Notifier:  notifier,
		Now:       opts.Now,
		TTL:       cfg.Pending.TTL,
	})
	if err != nil {
		return nil, err
	}
	// corre antes que los closers de storage/redis (orden inverso)
	coord := a.Coordinator
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
		defer cancel()
		return coord.Wait(ctx)
	})

	// 6. HTTP
	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	var limiter rate.Limiter
	if cfg.Rate.InitiatePerMinute > 0 {
		limiter = rate.NewRedisLimiter(rdb, cfg.Redis.Prefix+":rl:initiate", cfg.Rate.InitiatePerMinute, time.Minute)
	}

	trusted, err := mw.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	cookie := mw.SessionCookie{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		TTL:    cfg.Session.TTL,
	}
	a.Handler = router.New(router.Deps{
		Auth:           controllers.NewAuthController(a.Coordinator, sessions, cookie),
		Health:         controllers.NewHealthController(opts.Version, a.Registry.Enabled, checks),
		Sessions:       sessions,
		Cookie:         cookie,
		RateLimiter:    limiter,
		TrustedProxies: trusted,
		Gatherer:       gatherer,
	})
	return a, nil
}

// Close libera recursos en orden inverso de apertura.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Pending.Driver == "redis" || cfg.Session.Driver == "redis" || cfg.Rate.InitiatePerMinute > 0
}

type redisPinger struct{ c redis.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

func providerConfig(p config.Provider, client *http.Client) oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Timeout:      p.Timeout,
		HTTPClient:   client,
	}
}

// buildProviders registra las factories y habilita los providers configurados.
// Los que traen endpoints propios se construyen con New.
func buildProviders(cfg *config.Config, cc cache.Client, client *http.Client) (*oauth.Registry, error) {
	reg := oauth.NewRegistry()
	reg.RegisterFactory(oauth.Google, google.Factory)
	reg.RegisterFactory(oauth.GitHub, github.Factory)
	reg.RegisterFactory(oauth.OIDC, oidc.Factory)

	if p := cfg.Providers.Google; p.Enabled {
		var issuers []string
		if p.Issuer != "" {
			issuers = []string{p.Issuer}
		}
		g, err := google.New(google.Config{
			ProviderConfig: providerConfig(p, client),
			DiscoveryURL:   p.DiscoveryURL,
			Issuers:        issuers,
			Cache:          cc,
		})
		if err != nil {
			return nil, err
		}
		reg.Add(g)
	}

	if p := cfg.Providers.GitHub; p.Enabled {
		if p.AuthURL == "" && p.TokenURL == "" && p.APIURL == "" {
			if _, err := reg.Enable(oauth.GitHub, providerConfig(p, client)); err != nil {
				return nil, err
			}
		} else {
			gh, err := github.New(github.Config{
				ProviderConfig: providerConfig(p, client),
				AuthURL:        p.AuthURL,
				TokenURL:       p.TokenURL,
				APIURL:         p.APIURL,
			})
			if err != nil {
				return nil, err
			}
			reg.Add(gh)
		}
	}

	if p := cfg.Providers.OIDC; p.Enabled {
		o, err := oidc.New(oidc.Config{
			ProviderConfig: providerConfig(p, client),
			Issuer:         p.Issuer,
			AuthURL:        p.AuthURL,
			TokenURL:       p.TokenURL,
			UserInfoURL:    p.UserInfoURL,
			JWKSURL:        p.JWKSURL,
		})
		if err != nil {
			return nil, err
		}
		reg.Add(o)
	}
	return reg, nil
}

// Package config carga la configuración: YAML con defaults y overrides por
// variables de entorno OAUTHLINK_*.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/oauthlink/internal/validation"
)

// EnvPrefix de todas las variables de entorno.
const EnvPrefix = "OAUTHLINK_"

type Config struct {
	App struct {
		// dev | staging | prod
		Env  string `yaml:"env" env:"ENV"`
		Name string `yaml:"name" env:"NAME"`
	} `yaml:"app" envPrefix:"APP_"`

	Server struct {
		Addr            string        `yaml:"addr" env:"ADDR"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
		// IPs/CIDRs de proxies propios; solo desde ellos se acepta X-Forwarded-For.
		TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
	} `yaml:"server" envPrefix:"SERVER_"`

	Storage struct {
		// postgres | sqlite
		Driver   string `yaml:"driver" env:"DRIVER"`
		DSN      string `yaml:"dsn" env:"DSN"`
		MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
		MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
	} `yaml:"storage" envPrefix:"STORAGE_"`

	// Redis compartido por pending, session y cache cuando su driver es "redis".
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		Prefix   string `yaml:"prefix" env:"PREFIX"`
	} `yaml:"redis" envPrefix:"REDIS_"`

	Pending struct {
		// memory | redis
		Driver        string        `yaml:"driver" env:"DRIVER"`
		TTL           time.Duration `yaml:"ttl" env:"TTL"`
		SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
		// SealKey cifra los intentos en Redis (32 bytes en base64 o hex).
		SealKey string `yaml:"seal_key" env:"SEAL_KEY"`
	} `yaml:"pending" envPrefix:"PENDING_"`

	Session struct {
		// memory | redis
		Driver       string        `yaml:"driver" env:"DRIVER"`
		CookieName   string        `yaml:"cookie_name" env:"COOKIE_NAME"`
		CookieSecure bool          `yaml:"cookie_secure" env:"COOKIE_SECURE"`
		TTL          time.Duration `yaml:"ttl" env:"TTL"`
	} `yaml:"session" envPrefix:"SESSION_"`

	// Cache de discovery/JWKS. memory | redis
	Cache struct {
		Driver string `yaml:"driver" env:"DRIVER"`
	} `yaml:"cache" envPrefix:"CACHE_"`

	Providers struct {
		Google Provider `yaml:"google" envPrefix:"GOOGLE_"`
		GitHub Provider `yaml:"github" envPrefix:"GITHUB_"`
		OIDC   Provider `yaml:"oidc" envPrefix:"OIDC_"`
	} `yaml:"providers" envPrefix:"PROVIDERS_"`

	Linking struct {
		AutoLinkVerifiedEmail bool `yaml:"auto_link_verified_email" env:"AUTO_LINK_VERIFIED_EMAIL"`
		AllowUnlinkLast       bool `yaml:"allow_unlink_last" env:"ALLOW_UNLINK_LAST"`
	} `yaml:"linking" envPrefix:"LINKING_"`

	SMTP struct {
		Enabled            bool   `yaml:"enabled" env:"ENABLED"`
		Host               string `yaml:"host" env:"HOST"`
		Port               int    `yaml:"port" env:"PORT"`
		From               string `yaml:"from" env:"FROM"`
		Username           string `yaml:"username" env:"USERNAME"`
		Password           string `yaml:"password" env:"PASSWORD"`
		TLSMode            string `yaml:"tls_mode" env:"TLS_MODE"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	} `yaml:"smtp" envPrefix:"SMTP_"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled" env:"ENABLED"`
		Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
		SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
	} `yaml:"tracing" envPrefix:"TRACING_"`

	Rate struct {
		// Límite de inicios de login por IP; 0 = sin límite. Requiere Redis.
		InitiatePerMinute int `yaml:"initiate_per_minute" env:"INITIATE_PER_MINUTE"`
	} `yaml:"rate" envPrefix:"RATE_"`

	Log struct {
		// dev | prod
		Env   string `yaml:"env" env:"ENV"`
		Level string `yaml:"level" env:"LEVEL"`
	} `yaml:"log" envPrefix:"LOG_"`
}

// Provider es la configuración de un adapter.
type Provider struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	ClientID     string        `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string        `yaml:"redirect_url" env:"REDIRECT_URL"`
	Scopes       []string      `yaml:"scopes" env:"SCOPES" envSeparator:","`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// google: discovery alternativo. oidc: issuer para discovery.
	Issuer       string `yaml:"issuer" env:"ISSUER"`
	DiscoveryURL string `yaml:"discovery_url" env:"DISCOVERY_URL"`

	// Endpoints manuales (oidc sin discovery, GitHub Enterprise).
	AuthURL     string `yaml:"auth_url" env:"AUTH_URL"`
	TokenURL    string `yaml:"token_url" env:"TOKEN_URL"`
	UserInfoURL string `yaml:"userinfo_url" env:"USERINFO_URL"`
	JWKSURL     string `yaml:"jwks_url" env:"JWKS_URL"`
	APIURL      string `yaml:"api_url" env:"API_URL"`
}

// Load lee path (si no es vacío), aplica env y defaults y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "oauthlink"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "data/oauthlink.db"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "oauthlink"
	}
	if c.Pending.Driver == "" {
		c.Pending.Driver = "memory"
	}
	if c.Pending.TTL <= 0 {
		c.Pending.TTL = 10 * time.Minute
	}
	if c.Pending.SweepInterval <= 0 {
		c.Pending.SweepInterval = 60 * time.Second
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "oauthlink_session"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLSMode == "" {
		c.SMTP.TLSMode = "auto"
	}
	if c.Log.Env == "" {
		if c.App.Env == "prod" {
			c.Log.Env = "prod"
		} else {
			c.Log.Env = "dev"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate chequea combinaciones inválidas. Junta todos los errores.
func (c *Config) Validate() error {
	var errs []error

	for _, p := range c.Server.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", p))
		}
	}

	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q (postgres|sqlite)", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}

	usesRedis := false
	for name, d := range map[string]string{"pending.driver": c.Pending.Driver, "session.driver": c.Session.Driver, "cache.driver": c.Cache.Driver} {
		switch d {
		case "memory":
		case "redis":
			usesRedis = true
		default:
			errs = append(errs, fmt.Errorf("%s: unsupported %q (memory|redis)", name, d))
		}
	}
	if (usesRedis || c.Rate.InitiatePerMinute > 0) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when a redis driver or rate limit is configured"))
	}
	if c.Pending.Driver == "redis" && c.Pending.SealKey == "" {
		errs = append(errs, errors.New("pending.seal_key is required with the redis driver"))
	}
	if c.Pending.TTL > time.Hour {
		errs = append(errs, errors.New("pending.ttl must be at most 1h"))
	}

	enabled := 0
	for name, p := range map[string]Provider{"google": c.Providers.Google, "github": c.Providers.GitHub, "oidc": c.Providers.OIDC} {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.ClientID == "" {
			errs = append(errs, fmt.Errorf("providers.%s.client_id is required", name))
		}
		if bad := validation.InvalidScopes(p.Scopes); len(bad) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.scopes: invalid %q", name, bad))
		}
		if p.RedirectURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s.redirect_url is required", name))
		} else if u, err := url.Parse(p.RedirectURL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("providers.%s.redirect_url must be an absolute URL", name))
		}
	}
	if c.Providers.OIDC.Enabled && c.Providers.OIDC.Issuer == "" &&
		(c.Providers.OIDC.AuthURL == "" || c.Providers.OIDC.TokenURL == "") {
		errs = append(errs, errors.New("providers.oidc: issuer or auth_url+token_url are required"))
	}
	if enabled == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be enabled"))
	}

	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("smtp.host and smtp.from are required when smtp is enabled"))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	switch strings.ToLower(c.Log.Env) {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("log.env: unsupported %q (dev|prod)", c.Log.Env))
	}

	return errors.Join(errs...)
}

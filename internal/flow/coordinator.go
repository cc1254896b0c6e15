// Package flow orquesta el login OAuth2/OIDC: initiate (state + PKCE +
// redirect), callback (consumir el intento, canjear el code, resolver la
// identidad, ligar la sesión) y unlink.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthlink/internal/audit"
	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
	"github.com/dropDatabas3/oauthlink/internal/email"
	"github.com/dropDatabas3/oauthlink/internal/linker"
	"github.com/dropDatabas3/oauthlink/internal/metrics"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/observability/tracing"
	"github.com/dropDatabas3/oauthlink/internal/pending"
	"github.com/dropDatabas3/oauthlink/internal/session"
)

// Providers resuelve un adapter habilitado. Lo implementa *oauth.Registry.
type Providers interface {
	Get(id oauth.ProviderID) (oauth.Provider, error)
}

// AccountLinker reconcilia identidades con usuarios. Lo implementa *linker.Linker.
type AccountLinker interface {
	Resolve(ctx context.Context, id *oauth.Identity, linkingUserID string) (*linker.Result, error)
	Unlink(ctx context.Context, userID string, provider oauth.ProviderID) error
	Links(ctx context.Context, userID string) ([]repository.AccountLink, error)
}

// Deps contiene las dependencias del Coordinator.
type Deps struct {
	Providers Providers
	Pending   pending.Store
	Linker    AccountLinker
	Sessions  session.Store
	Notifier  email.Notifier   // opcional
	Audit     *audit.Logger    // opcional, default audit.New(nil)
	Now       func() time.Time // opcional, default time.Now
	TTL       time.Duration    // vida del intento, default pending.DefaultTTL
}

// Coordinator implementa initiate/callback/unlink. Es seguro para uso concurrente.
type Coordinator struct {
	providers Providers
	pending   pending.Store
	linker    AccountLinker
	sessions  session.Store
	notifier  email.Notifier
	audit     *audit.Logger
	now       func() time.Time
	ttl       time.Duration
	tracer    trace.Tracer

	// notificaciones en vuelo; Wait las drena en el shutdown
	bg sync.WaitGroup
}

func New(d Deps) (*Coordinator, error) {
	if d.Providers == nil || d.Pending == nil || d.Linker == nil || d.Sessions == nil {
		return nil, errors.New("flow: providers, pending store, linker and session store are required")
	}
	c := &Coordinator{
		providers: d.Providers,
		pending:   d.Pending,
		linker:    d.Linker,
		sessions:  d.Sessions,
		notifier:  d.Notifier,
		audit:     d.Audit,
		now:       d.Now,
		ttl:       d.TTL,
		tracer:    tracing.Tracer("oauthlink/flow"),
	}
	if c.notifier == nil {
		c.notifier = email.Nop{}
	}
	if c.audit == nil {
		c.audit = audit.New(nil)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.ttl <= 0 {
		c.ttl = pending.DefaultTTL
	}
	return c, nil
}

// InitiateRequest: inicio de login o de linking (CurrentUserID no vacío).
type InitiateRequest struct {
	Provider      oauth.ProviderID
	ReturnURL     string
	CurrentUserID string
}

// InitiateResult lleva la URL a la que hay que redirigir al navegador.
type InitiateResult struct {
	RedirectURL string
	State       string
	ExpiresAt   time.Time
}

// Initiate genera state y PKCE, arma la URL del provider y guarda el intento.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := c.tracer.Start(ctx, "flow.Initiate", trace.WithAttributes(
		attribute.String("oauth.provider", req.Provider.String()),
		attribute.Bool("oauth.linking", req.CurrentUserID != ""),
	))
	defer span.End()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("flow.initiate"),
		logger.Provider(req.Provider.String()),
	)

	p, err := c.providers.Get(req.Provider)
	if err != nil {
		return nil, spanErr(span, ErrUnknownProvider)
	}

	returnURL := SanitizeReturnURL(req.ReturnURL)
	if req.ReturnURL != "" && returnURL != req.ReturnURL {
		log.Debug("return url rejected, using default", logger.String("requested", req.ReturnURL))
	}

	a, authURL, err := c.newAttempt(ctx, p, returnURL, req.CurrentUserID)
	if err == nil {
		err = c.pending.Put(ctx, a)
		if errors.Is(err, pending.ErrDuplicateToken) {
			// colisión de 256 bits: se regenera una sola vez
			log.Warn("state token collision, regenerating")
			a, authURL, err = c.newAttempt(ctx, p, returnURL, req.CurrentUserID)
			if err == nil {
				err = c.pending.Put(ctx, a)
			}
		}
	}
	if err != nil {
		if _, ok := ProviderDetail(err); ok {
			log.Error("authorization url failed", logger.Err(err))
			return nil, spanErr(span, providerFailure(err))
		}
		log.Error("store pending attempt failed", logger.Err(err))
		return nil, spanErr(span, fmt.Errorf("flow: initiate: %w", err))
	}

	metrics.FlowsInitiated.WithLabelValues(req.Provider.String()).Inc()
	log.Info("login initiated",
		logger.StateHash(a.StateToken),
		logger.Bool("linking", a.Linking()),
	)
	return &InitiateResult{RedirectURL: authURL, State: a.StateToken, ExpiresAt: a.ExpiresAt}, nil
}

func (c *Coordinator) newAttempt(ctx context.Context, p oauth.Provider, returnURL, linkingUserID string) (pending.Attempt, string, error) {
	state, err := oauth.NewStateToken()
	if err != nil {
		return pending.Attempt{}, "", err
	}
	verifier := oauth.NewVerifier()
	authURL, err := p.AuthorizationURL(ctx, state, oauth.S256Challenge(verifier))
	if err != nil {
		return pending.Attempt{}, "", oauth.Classify(p.ID(), "authorize", err)
	}
	now := c.now()
	return pending.Attempt{
		StateToken:    state,
		Provider:      p.ID(),
		PKCEVerifier:  verifier,
		CreatedAt:     now,
		ExpiresAt:     now.Add(c.ttl),
		ReturnURL:     returnURL,
		LinkingUserID: linkingUserID,
	}, authURL, nil
}

// CallbackRequest son los parámetros del redirect de vuelta.
type CallbackRequest struct {
	Provider         oauth.ProviderID
	Code             string
	State            string
	Error            string
	ErrorDescription string

	// SessionID actual del navegador, si tiene. Se descarta al autenticar.
	SessionID string
	// CorrelationID para los logs; se genera si viene vacío.
	CorrelationID string
}

// CallbackResult: usuario autenticado y a dónde volver.
type CallbackResult struct {
	User      *repository.User
	Link      *repository.AccountLink
	Outcome   linker.Outcome
	SessionID string
	ReturnURL string
}

// Callback completa el flujo. Cualquier error es terminal: el intento ya
// quedó consumido y no se puede reanudar.
func (c *Coordinator) Callback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	ctx, span := c.tracer.Start(ctx, "flow.Callback", trace.WithAttributes(
		attribute.String("oauth.provider", req.Provider.String()),
		attribute.String("correlation_id", req.CorrelationID),
	))
	defer span.End()

	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("flow.callback"),
		logger.Provider(req.Provider.String()),
		logger.CorrelationID(req.CorrelationID),
		logger.StateHash(req.State),
	)

	res, outcome, err := c.callback(ctx, log, req)
	metrics.Callbacks.WithLabelValues(req.Provider.String(), outcome).Inc()
	if err != nil {
		return nil, spanErr(span, err)
	}
	span.SetAttributes(attribute.String("oauth.outcome", outcome))
	return res, nil
}

func (c *Coordinator) callback(ctx context.Context, log *zap.Logger, req CallbackRequest) (*CallbackResult, string, error) {
	if req.Error != "" {
		// El provider nunca va a canjear este state, pero se consume igual
		// para que no se pueda reutilizar.
		if req.State != "" {
			if _, err := c.pending.TakeIfValid(ctx, req.State, c.now()); err != nil && !errors.Is(err, pending.ErrInvalidState) {
				log.Warn("discard denied attempt failed", logger.Err(err))
			}
		}
		log.Info("provider denied authorization",
			logger.ProviderCode(req.Error),
			logger.String("error_description", req.ErrorDescription),
		)
		return nil, "denied", &DeniedError{Provider: req.Provider, Code: req.Error, Description: req.ErrorDescription}
	}

	if req.State == "" {
		return nil, "invalid_state", ErrInvalidState
	}
	a, err := c.pending.TakeIfValid(ctx, req.State, c.now())
	if err != nil {
		if errors.Is(err, pending.ErrInvalidState) {
			log.Info("unknown, expired or replayed state")
			return nil, "invalid_state", ErrInvalidState
		}
		log.Error("take pending attempt failed", logger.Err(err))
		return nil, "error", fmt.Errorf("flow: callback: %w", err)
	}
	if a.Provider != req.Provider {
		log.Warn("provider mismatch", logger.String("attempt_provider", a.Provider.String()))
		return nil, "invalid_state", ErrInvalidState
	}

	p, err := c.providers.Get(a.Provider)
	if err != nil {
		return nil, "error", ErrUnknownProvider
	}
	if req.Code == "" {
		log.Warn("callback without code")
		return nil, "provider_error", providerFailure(oauth.Rejected(a.Provider, "exchange", "missing_code", ""))
	}

	start := time.Now()
	tok, err := p.ExchangeCode(ctx, req.Code, a.PKCEVerifier)
	metrics.ProviderRequestSeconds.WithLabelValues(a.Provider.String(), "exchange").Observe(time.Since(start).Seconds())
	if err != nil {
		logProviderError(log, "code exchange failed", a.Provider, "exchange", err)
		return nil, "provider_error", providerFailure(oauth.Classify(a.Provider, "exchange", err))
	}

	start = time.Now()
	ident, err := p.FetchIdentity(ctx, tok)
	metrics.ProviderRequestSeconds.WithLabelValues(a.Provider.String(), "identity").Observe(time.Since(start).Seconds())
	if err != nil {
		logProviderError(log, "fetch identity failed", a.Provider, "identity", err)
		return nil, "provider_error", providerFailure(oauth.Classify(a.Provider, "identity", err))
	}

	resolved, err := c.linker.Resolve(ctx, ident, a.LinkingUserID)
	if err != nil {
		switch {
		case errors.Is(err, linker.ErrConflict):
			log.Warn("identity already linked to another user", logger.String("linking_user_id", a.LinkingUserID))
			return nil, "conflict", ErrConflict
		case errors.Is(err, linker.ErrAmbiguousAccount):
			log.Info("email collision requires manual linking", logger.Email(ident.Email))
			return nil, "ambiguous", ErrAmbiguousAccount
		case repository.IsNotFound(err) && a.Linking():
			// el usuario que inició el linking ya no existe
			log.Warn("linking user not found", logger.String("linking_user_id", a.LinkingUserID))
			return nil, "invalid_state", ErrInvalidState
		}
		log.Error("resolve identity failed", logger.Err(err))
		return nil, "error", fmt.Errorf("flow: callback: %w", err)
	}

	// Sesión nueva en cada login: el id previo (si lo había) se descarta.
	sid, err := session.NewID()
	if err != nil {
		return nil, "error", fmt.Errorf("flow: session id: %w", err)
	}
	if err := c.sessions.SetAuthenticatedUser(ctx, sid, resolved.User.ID); err != nil {
		log.Error("bind session failed", logger.Err(err))
		return nil, "error", fmt.Errorf("flow: bind session: %w", err)
	}
	if req.SessionID != "" && req.SessionID != sid {
		if err := c.sessions.Delete(ctx, req.SessionID); err != nil {
			log.Warn("drop previous session failed", logger.Err(err))
		}
	}

	if resolved.Outcome == linker.OutcomeLinked {
		c.notifyLinked(ctx, log, resolved.User, a.Provider)
	}
	c.audit.Record(ctx, audit.Event{
		Type:     auditEvent(resolved.Outcome),
		UserID:   resolved.User.ID,
		Provider: a.Provider.String(),
		LinkID:   resolved.Link.ID,
	})

	log.Info("login completed",
		logger.UserID(resolved.User.ID),
		logger.String("outcome", resolved.Outcome.String()),
	)
	return &CallbackResult{
		User:      resolved.User,
		Link:      resolved.Link,
		Outcome:   resolved.Outcome,
		SessionID: sid,
		ReturnURL: a.ReturnURL,
	}, resolved.Outcome.String(), nil
}

func auditEvent(o linker.Outcome) string {
	switch o {
	case linker.OutcomeCreated:
		return audit.AccountCreated
	case linker.OutcomeLinked:
		return audit.AccountLinked
	default:
		return audit.AccountLogin
	}
}

// notifyLinked avisa por mail sin bloquear el callback.
func (c *Coordinator) notifyLinked(ctx context.Context, log *zap.Logger, u *repository.User, provider oauth.ProviderID) {
	if u.Email == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if err := c.notifier.ProviderLinked(ctx, u.Email, u.Name, provider.String()); err != nil {
			log.Warn("link notification failed", logger.Err(err))
		}
	}()
}

// Wait bloquea hasta que terminen las notificaciones en curso o venza ctx.
// Se llama después de cerrar el servidor HTTP.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flow: notifications still running: %w", ctx.Err())
	}
}

func logProviderError(log *zap.Logger, msg string, p oauth.ProviderID, op string, err error) {
	pe := oauth.Classify(p, op, err)
	log.Warn(msg,
		logger.Op(pe.Op),
		logger.String("kind", pe.Kind.String()),
		logger.ProviderCode(pe.Code),
		logger.String("error_description", pe.Description),
		logger.Err(err),
	)
}

// Unlink quita el provider del usuario autenticado.
func (c *Coordinator) Unlink(ctx context.Context, userID string, provider oauth.ProviderID) error {
	ctx, span := c.tracer.Start(ctx, "flow.Unlink", trace.WithAttributes(
		attribute.String("oauth.provider", provider.String()),
	))
	defer span.End()

	if _, ok := oauth.ParseProviderID(provider.String()); !ok {
		return spanErr(span, ErrUnknownProvider)
	}
	err := c.linker.Unlink(ctx, userID, provider)
	switch {
	case err == nil:
		c.audit.Record(ctx, audit.Event{Type: audit.AccountUnlinked, UserID: userID, Provider: provider.String()})
		return nil
	case errors.Is(err, linker.ErrNotFound):
		return spanErr(span, ErrNotFound)
	case errors.Is(err, linker.ErrLastCredential):
		return spanErr(span, ErrLastCredential)
	}
	return spanErr(span, fmt.Errorf("flow: unlink: %w", err))
}

// Links lista los providers vinculados del usuario.
func (c *Coordinator) Links(ctx context.Context, userID string) ([]repository.AccountLink, error) {
	ctx, span := c.tracer.Start(ctx, "flow.Links")
	defer span.End()

	links, err := c.linker.Links(ctx, userID)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("flow: links: %w", err))
	}
	return links, nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

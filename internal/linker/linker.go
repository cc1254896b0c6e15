// Package linker reconcilia una identidad externa con un usuario interno:
// refresca un link existente, vincula a un usuario ya logueado o crea
// usuario + link. La unicidad la da el índice (provider, provider_user_id);
// si dos primeros logins compiten, el perdedor re-resuelve al mismo usuario.
package linker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/oauthlink/internal/domain/repository"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
)

var (
	// ErrConflict: la identidad ya pertenece a otro usuario (modo linking).
	ErrConflict = errors.New("linker: identity already linked to another user")

	// ErrAmbiguousAccount: existe un usuario con ese email y no hay política de auto-link.
	ErrAmbiguousAccount = errors.New("linker: an account with this email already exists")

	// ErrNotFound: no hay link para (user, provider).
	ErrNotFound = errors.New("linker: link not found")

	// ErrLastCredential: sería el último método de login de un usuario sin password.
	ErrLastCredential = errors.New("linker: cannot remove the last login method")
)

// Outcome describe qué hizo Resolve.
type Outcome int

const (
	// OutcomeExisting: el link ya existía; se refrescó el perfil.
	OutcomeExisting Outcome = iota + 1
	// OutcomeLinked: se agregó un link a un usuario existente.
	OutcomeLinked
	// OutcomeCreated: usuario y link nuevos.
	OutcomeCreated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExisting:
		return "existing"
	case OutcomeLinked:
		return "linked"
	case OutcomeCreated:
		return "created"
	default:
		return "unknown"
	}
}

// Result es la salida de Resolve.
type Result struct {
	User    *repository.User
	Link    *repository.AccountLink
	Outcome Outcome
}

// Options de política.
type Options struct {
	// AutoLinkVerifiedEmail: si un usuario ya tiene el email de la identidad
	// y el provider lo da por verificado, se vincula en vez de fallar con
	// ErrAmbiguousAccount.
	AutoLinkVerifiedEmail bool

	// AllowUnlinkLast: permite borrar el último link de un usuario sin password.
	AllowUnlinkLast bool
}

// Linker opera sobre un repository.Store.
type Linker struct {
	store repository.Store
	opts  Options
}

func New(store repository.Store, opts Options) *Linker {
	return &Linker{store: store, opts: opts}
}

// maxResolveAttempts: 1 intento + 1 re-resolución tras perder una carrera.
const maxResolveAttempts = 2

// Resolve encuentra o crea el usuario para id. linkingUserID no vacío
// significa que un usuario ya autenticado está agregando este provider.
func (l *Linker) Resolve(ctx context.Context, id *oauth.Identity, linkingUserID string) (*Result, error) {
	if id == nil || id.ProviderUserID == "" || id.Provider == "" {
		return nil, fmt.Errorf("linker: %w: identity without provider user id", repository.ErrInvalidInput)
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("linker"),
		logger.Provider(id.Provider.String()),
	)

	var lastErr error
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		res, err := l.resolveOnce(ctx, id, linkingUserID)
		if err == nil {
			log.Debug("identity resolved",
				logger.UserID(res.User.ID),
				logger.String("outcome", res.Outcome.String()),
			)
			return res, nil
		}
		if !errors.Is(err, errRace) {
			return nil, err
		}
		// Otro request insertó el mismo link entre nuestro lookup y el insert.
		// La tx ya hizo rollback: volver a empezar encuentra su fila.
		log.Info("concurrent first login detected, re-resolving", logger.Int("attempt", attempt))
		lastErr = err
	}
	return nil, fmt.Errorf("linker: resolve: %w", lastErr)
}

// errRace marca una violación de unicidad en modo login (no linking).
var errRace = errors.New("linker: lost insert race")

func (l *Linker) resolveOnce(ctx context.Context, id *oauth.Identity, linkingUserID string) (*Result, error) {
	var res *Result
	err := l.store.InTx(ctx, func(r repository.Repos) error {
		provider := id.Provider.String()
		profile := repository.LinkProfile{
			Email:       strings.TrimSpace(id.Email),
			DisplayName: id.DisplayName,
			AvatarURL:   id.AvatarURL,
		}

		// 1. Link existente
		link, err := r.Links().GetByProvider(ctx, provider, id.ProviderUserID)
		switch {
		case err == nil:
			if linkingUserID != "" && link.UserID != linkingUserID {
				return ErrConflict
			}
			if err := r.Links().UpdateProfile(ctx, link.ID, profile); err != nil {
				return fmt.Errorf("refresh link: %w", err)
			}
			user, err := r.Users().FindByID(ctx, link.UserID)
			if err != nil {
				return fmt.Errorf("load linked user: %w", err)
			}
			link.Email, link.DisplayName, link.AvatarURL = profile.Email, profile.DisplayName, profile.AvatarURL
			res = &Result{User: user, Link: link, Outcome: OutcomeExisting}
			return nil
		case !repository.IsNotFound(err):
			return fmt.Errorf("lookup link: %w", err)
		}

		// 2. Modo linking: el usuario ya está autenticado
		if linkingUserID != "" {
			user, err := r.Users().FindByID(ctx, linkingUserID)
			if err != nil {
				return fmt.Errorf("load linking user: %w", err)
			}
			link, err := l.createLink(ctx, r, user.ID, id, profile)
			if repository.IsConflict(err) {
				// otra identidad del mismo provider ya vinculada, o carrera con otro usuario
				return ErrConflict
			}
			if err != nil {
				return err
			}
			res = &Result{User: user, Link: link, Outcome: OutcomeLinked}
			return nil
		}

		// 3. Colisión por email
		if profile.Email != "" {
			existing, err := r.Users().FindByEmail(ctx, profile.Email)
			switch {
			case err == nil:
				if !(l.opts.AutoLinkVerifiedEmail && id.EmailVerified) {
					return ErrAmbiguousAccount
				}
				// Un link por provider y usuario: si ya tiene otra cuenta de
				// este provider no se puede auto-vincular.
				has, err := hasProvider(ctx, r, existing.ID, provider)
				if err != nil {
					return err
				}
				if has {
					return ErrAmbiguousAccount
				}
				link, err := l.createLink(ctx, r, existing.ID, id, profile)
				if repository.IsConflict(err) {
					return errRace
				}
				if err != nil {
					return err
				}
				res = &Result{User: existing, Link: link, Outcome: OutcomeLinked}
				return nil
			case !repository.IsNotFound(err):
				return fmt.Errorf("lookup user by email: %w", err)
			}
		}

		// 4. Usuario nuevo + link
		user, err := r.Users().Create(ctx, repository.CreateUserInput{
			Email: profile.Email,
			Name:  id.DisplayName,
		})
		if repository.IsConflict(err) {
			// mismo email insertado en paralelo: re-resolver cae en el paso 3
			return errRace
		}
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		link, err = l.createLink(ctx, r, user.ID, id, profile)
		if repository.IsConflict(err) {
			return errRace
		}
		if err != nil {
			return err
		}
		res = &Result{User: user, Link: link, Outcome: OutcomeCreated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func hasProvider(ctx context.Context, r repository.Repos, userID, provider string) (bool, error) {
	links, err := r.Links().ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list user links: %w", err)
	}
	for _, lk := range links {
		if lk.Provider == provider {
			return true, nil
		}
	}
	return false, nil
}

func (l *Linker) createLink(ctx context.Context, r repository.Repos, userID string, id *oauth.Identity, p repository.LinkProfile) (*repository.AccountLink, error) {
	link, err := r.Links().Create(ctx, repository.CreateLinkInput{
		UserID:         userID,
		Provider:       id.Provider.String(),
		ProviderUserID: id.ProviderUserID,
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
	})
	if err != nil {
		if repository.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create link: %w", err)
	}
	return link, nil
}

// Unlink elimina el link (userID, provider).
func (l *Linker) Unlink(ctx context.Context, userID string, provider oauth.ProviderID) error {
	log := logger.From(ctx).With(logger.Component("linker"), logger.UserID(userID), logger.Provider(provider.String()))

	err := l.store.InTx(ctx, func(r repository.Repos) error {
		links, err := r.Links().ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		found := false
		for _, lk := range links {
			if lk.Provider == provider.String() {
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
		if len(links) == 1 && !l.opts.AllowUnlinkLast {
			user, err := r.Users().FindByID(ctx, userID)
			if err != nil && !repository.IsNotFound(err) {
				return fmt.Errorf("load user: %w", err)
			}
			if !user.HasPassword() {
				return ErrLastCredential
			}
		}
		if err := r.Links().Delete(ctx, userID, provider.String()); err != nil {
			if repository.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("delete link: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("provider unlinked")
	return nil
}

// Links lista los providers vinculados de un usuario.
func (l *Linker) Links(ctx context.Context, userID string) ([]repository.AccountLink, error) {
	return l.store.Repos().Links().ListByUser(ctx, userID)
}

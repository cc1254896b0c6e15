package flow

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

// Errores del flujo. Todos son terminales: no se reintenta nada, el usuario
// vuelve a iniciar el login.
var (
	ErrInvalidState     = errors.New("flow: invalid, expired or already used state")
	ErrProviderDenied   = errors.New("flow: provider denied the authorization")
	ErrProviderError    = errors.New("flow: provider error")
	ErrConflict         = errors.New("flow: identity already linked to another account")
	ErrAmbiguousAccount = errors.New("flow: an account with this email already exists")
	ErrNotFound         = errors.New("flow: link not found")
	ErrUnknownProvider  = errors.New("flow: unknown or disabled provider")
	ErrLastCredential   = errors.New("flow: cannot remove the last login method")
)

// DeniedError lleva el error que reportó el provider en el callback.
type DeniedError struct {
	Provider    oauth.ProviderID
	Code        string
	Description string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("flow: %s denied the authorization (%s)", e.Provider, e.Code)
}

func (e *DeniedError) Is(target error) bool { return target == ErrProviderDenied }

// providerFailure envuelve un *oauth.ProviderError para que matchee ErrProviderError
// sin perder el detalle (kind, code) para el log.
func providerFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrProviderError, err)
}

// ProviderDetail extrae el *oauth.ProviderError de un error del flujo, si lo hay.
func ProviderDetail(err error) (*oauth.ProviderError, bool) {
	var pe *oauth.ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

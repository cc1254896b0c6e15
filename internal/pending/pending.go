// Package pending guarda los intentos de login en curso (state token ->
// PKCE verifier, provider, returnUrl) entre el redirect y el callback.
//
// Un Attempt se consume a lo sumo una vez y nunca se devuelve después de
// ExpiresAt, aunque el Reaper todavía no lo haya barrido.
package pending

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/oauthlink/internal/oauth"
)

// DefaultTTL es la vida de un intento.
const DefaultTTL = 10 * time.Minute

var (
	// ErrDuplicateToken: ya existe un intento con ese state token.
	ErrDuplicateToken = errors.New("pending: duplicate state token")

	// ErrInvalidState: el token no existe, ya se consumió o expiró.
	ErrInvalidState = errors.New("pending: invalid or expired state")
)

// Attempt es un intento de login en curso. Inmutable una vez guardado.
type Attempt struct {
	StateToken    string           `json:"state"`
	Provider      oauth.ProviderID `json:"provider"`
	PKCEVerifier  string           `json:"verifier"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	ReturnURL     string           `json:"return_url,omitempty"`
	LinkingUserID string           `json:"linking_user_id,omitempty"`
}

// Expired reporta si el intento ya no es utilizable en now.
func (a Attempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Linking indica si el intento agrega un provider a un usuario ya logueado.
func (a Attempt) Linking() bool { return a.LinkingUserID != "" }

// Store es el contrato del almacén de intentos.
type Store interface {
	// Put inserta a. ErrDuplicateToken si el token ya existe.
	Put(ctx context.Context, a Attempt) error

	// TakeIfValid busca y elimina atómicamente. Retorna el intento solo si
	// existía y now < ExpiresAt; en cualquier otro caso ErrInvalidState.
	// Con dos llamadas concurrentes sobre el mismo token gana exactamente una.
	TakeIfValid(ctx context.Context, stateToken string, now time.Time) (Attempt, error)

	// SweepExpired elimina todo intento con ExpiresAt <= now y retorna cuántos
	// eliminó efectivamente esta llamada.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Len retorna la cantidad de intentos guardados (incluye expirados no barridos).
	Len(ctx context.Context) (int, error)
}

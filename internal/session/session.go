// Package session es la parte mínima del transporte de sesión que necesita
// el login: ligar un session id a un usuario autenticado y leerlo de vuelta.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// DefaultTTL de una sesión autenticada.
const DefaultTTL = 24 * time.Hour

// ErrNoSession: el session id no existe o no tiene usuario.
var ErrNoSession = errors.New("session: not found")

// Store liga session ids a user ids.
type Store interface {
	SetAuthenticatedUser(ctx context.Context, sessionID, userID string) error
	AuthenticatedUser(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// NewID genera un session id opaco (32 bytes, base64url).
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// StateBytes es la entropía del state token (64 hex chars).
	StateBytes = 32

	minVerifierLen = 43
	maxVerifierLen = 128
)

// NewStateToken genera un state token de 32 bytes aleatorios en hex.
func NewStateToken() (string, error) {
	b := make([]byte, StateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth: state entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewVerifier genera un PKCE code_verifier (RFC 7636, 43 chars base64url).
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// S256Challenge = BASE64URL(SHA256(verifier)) sin padding.
func S256Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// ValidVerifier chequea largo 43..128 y el alfabeto unreserved de RFC 7636.
func ValidVerifier(v string) bool {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// Package validation contiene chequeos sintácticos compartidos.
package validation

import "regexp"

// scope-token (RFC 6749 §3.3): 1*( %x21 / %x23-5B / %x5D-7E ), o sea ASCII
// imprimible sin espacio, comillas dobles ni backslash. Se acota a 256.
var scopeTokenRe = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]{1,256}$`)

// ValidScope reporta si s es un scope-token válido. Acepta tanto scopes
// cortos ("openid", "read:user") como URLs ("https://www.googleapis.com/auth/userinfo.email").
func ValidScope(s string) bool {
	return scopeTokenRe.MatchString(s)
}

// InvalidScopes retorna los scopes que no pasan ValidScope, en orden.
func InvalidScopes(scopes []string) []string {
	var bad []string
	for _, s := range scopes {
		if !ValidScope(s) {
			bad = append(bad, s)
		}
	}
	return bad
}

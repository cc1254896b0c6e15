package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// ErrorKind clasifica los fallos de un provider.
type ErrorKind int

const (
	// KindNetwork: timeout, DNS, conexión rechazada, TLS.
	KindNetwork ErrorKind = iota + 1
	// KindRejected: el provider respondió con un error (invalid_grant, 401, ...).
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ProviderError es el único tipo de error que devuelven los adapters en
// ExchangeCode y FetchIdentity.
type ProviderError struct {
	Provider    ProviderID
	Op          string // "exchange", "userinfo", "emails", "discovery", "verify"
	Kind        ErrorKind
	Code        string // código del provider, ej "invalid_grant"; vacío en KindNetwork
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("oauth %s %s: %s", e.Provider, e.Op, e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Network construye un ProviderError de red.
func Network(p ProviderID, op string, err error) *ProviderError {
	return &ProviderError{Provider: p, Op: op, Kind: KindNetwork, Err: err}
}

// Rejected construye un ProviderError de rechazo con el código del provider.
func Rejected(p ProviderID, op, code, desc string) *ProviderError {
	return &ProviderError{Provider: p, Op: op, Kind: KindRejected, Code: code, Description: desc}
}

// HTTPStatusCode es el code usado cuando el provider no manda un "error" propio.
func HTTPStatusCode(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// Classify convierte un error arbitrario de una llamada saliente en *ProviderError.
func Classify(p ProviderID, op string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" && re.Response != nil {
			code = HTTPStatusCode(re.Response.StatusCode)
		}
		if code == "" {
			code = "invalid_response"
		}
		out := Rejected(p, op, code, re.ErrorDescription)
		out.Err = err
		return out
	}

	if isNetworkError(err) {
		return Network(p, op, err)
	}

	// Respuesta 2xx inválida (sin access_token, JSON roto, ...).
	out := Rejected(p, op, "invalid_response", "")
	out.Err = err
	return out
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, http.ErrHandlerTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Package errors define la respuesta de error JSON de la API y el mapeo
// desde los errores del flujo de login.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/oauthlink/internal/flow"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError escribe err como JSON. Los errores que no son *AppError pasan
// por FromError.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// FromError traduce errores de flow a mensajes genéricos; cualquier otro
// error es un 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case stderrors.Is(err, flow.ErrInvalidState):
		return ErrInvalidState.WithCause(err)
	case stderrors.Is(err, flow.ErrProviderDenied):
		return ErrAccessDenied.WithCause(err)
	case stderrors.Is(err, flow.ErrProviderError):
		return ErrProviderUnavailable.WithCause(err)
	case stderrors.Is(err, flow.ErrConflict):
		return ErrAccountConflict.WithCause(err)
	case stderrors.Is(err, flow.ErrAmbiguousAccount):
		return ErrAccountExists.WithCause(err)
	case stderrors.Is(err, flow.ErrNotFound):
		return ErrLinkNotFound.WithCause(err)
	case stderrors.Is(err, flow.ErrUnknownProvider):
		return ErrProviderNotFound.WithCause(err)
	case stderrors.Is(err, flow.ErrLastCredential):
		return ErrLastCredential.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// WriteJSON: respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

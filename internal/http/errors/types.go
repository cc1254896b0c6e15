package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error que ve el cliente. Err nunca se serializa: el detalle
// interno (provider, código del provider) va solo al log.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail devuelve una copia con Detail.
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una copia con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

// ─── 4xx ───

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene parámetros inválidos o faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "No autorizado. Se requiere una sesión activa.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "El intento de inicio de sesión expiró o ya fue utilizado. Volvé a intentarlo.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAccessDenied = &AppError{
		Code:       "ACCESS_DENIED",
		Message:    "El proveedor no autorizó el inicio de sesión.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrProviderNotFound = &AppError{
		Code:       "PROVIDER_NOT_FOUND",
		Message:    "El proveedor solicitado no existe o no está habilitado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrLinkNotFound = &AppError{
		Code:       "LINK_NOT_FOUND",
		Message:    "La cuenta no tiene vinculado ese proveedor.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAccountConflict = &AppError{
		Code:       "ACCOUNT_CONFLICT",
		Message:    "Esa cuenta del proveedor ya está vinculada a otro usuario.",
		HTTPStatus: http.StatusConflict,
	}

	ErrAccountExists = &AppError{
		Code:       "ACCOUNT_EXISTS",
		Message:    "Ya existe una cuenta con ese email. Iniciá sesión y vinculá el proveedor desde tu perfil.",
		HTTPStatus: http.StatusConflict,
	}

	ErrLastCredential = &AppError{
		Code:       "LAST_CREDENTIAL",
		Message:    "No se puede desvincular el único método de inicio de sesión.",
		HTTPStatus: http.StatusConflict,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrTooManyRequests = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Demasiadas solicitudes. Esperá un momento y volvé a intentar.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Recurso no encontrado.",
		HTTPStatus: http.StatusNotFound,
	}
)

// ─── 5xx ───

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error inesperado.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrProviderUnavailable = &AppError{
		Code:       "PROVIDER_ERROR",
		Message:    "No pudimos completar el inicio de sesión con el proveedor. Volvé a intentarlo.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Servicio no disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

package middlewares

import "context"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxUserIDKey    ctxKey = "user_id"
	ctxSessionKey   ctxKey = "session_id"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, id)
}

// WithUserID inyecta el usuario autenticado (tests y middlewares).
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxSessionKey, sid)
}

// GetRequestID retorna el request id o "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestIDKey).(string)
	return v
}

// GetUserID retorna el usuario autenticado o "".
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserIDKey).(string)
	return v
}

// GetSessionID retorna el session id leído de la cookie o "".
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionKey).(string)
	return v
}

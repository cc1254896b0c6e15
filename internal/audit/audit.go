// Package audit registra los eventos de cuenta (alta, vínculo, login,
// desvínculo) como líneas estructuradas con component=audit, separadas del
// log operativo para poder filtrarlas o enviarlas a otro sink.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
)

// Tipos de evento.
const (
	AccountCreated  = "account.created"
	AccountLinked   = "account.linked"
	AccountLogin    = "account.login"
	AccountUnlinked = "account.unlinked"
)

// Event es un hecho de auditoría. Nunca lleva tokens ni códigos.
type Event struct {
	Type     string
	UserID   string
	Provider string
	LinkID   string
}

// Logger escribe eventos sobre un *zap.Logger.
type Logger struct {
	l   *zap.Logger
	now func() time.Time
}

// New crea un Logger. l nil = logger global.
func New(l *zap.Logger) *Logger {
	return &Logger{l: l, now: time.Now}
}

// Record escribe el evento. Si ctx trae request_id (vía logger.ToContext)
// queda en la línea.
func (a *Logger) Record(ctx context.Context, ev Event) {
	base := a.l
	if base == nil {
		base = logger.From(ctx)
	}
	fields := []zap.Field{
		logger.Component("audit"),
		zap.String("event", ev.Type),
		zap.Time("ts", a.now().UTC()),
		logger.UserID(ev.UserID),
	}
	if ev.Provider != "" {
		fields = append(fields, logger.Provider(ev.Provider))
	}
	if ev.LinkID != "" {
		fields = append(fields, zap.String("link_id", ev.LinkID))
	}
	base.Info("audit", fields...)
}

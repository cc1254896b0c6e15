package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// HTTP
// =================================================================================

func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// =================================================================================
// DOMINIO
// =================================================================================

func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

func CorrelationID(v string) zap.Field {
	return zap.String("correlation_id", v)
}

// ProviderCode es el código de error devuelto por el provider (ej: "invalid_grant").
func ProviderCode(v string) zap.Field {
	return zap.String("provider_code", v)
}

// StateHash loguea los primeros 12 hex del SHA-256 del state token.
// El token crudo nunca va a los logs.
func StateHash(state string) zap.Field {
	if state == "" {
		return zap.String("state_hash", "")
	}
	sum := sha256.Sum256([]byte(state))
	return zap.String("state_hash", hex.EncodeToString(sum[:])[:12])
}

// Email enmascara la parte local: "jo***@example.com".
func Email(v string) zap.Field {
	return zap.String("email", MaskEmail(v))
}

func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	local := email[:at]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + email[at:]
}

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

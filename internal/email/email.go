// Package email envía avisos transaccionales por SMTP (go-mail).
// Hoy el único aviso es "se vinculó un nuevo provider a tu cuenta".
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
)

// Notifier recibe eventos de vinculación. Implementaciones: SMTPNotifier, Nop.
type Notifier interface {
	ProviderLinked(ctx context.Context, to, displayName, provider string) error
}

// Nop descarta los avisos.
type Nop struct{}

func (Nop) ProviderLinked(context.Context, string, string, string) error { return nil }

// SMTPConfig configura el envío.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	AppName            string
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPNotifier implementa Notifier usando SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	dialer sender
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "oauthlink"
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // solo dev
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return &SMTPNotifier{cfg: cfg, dialer: d}
}

func (s *SMTPNotifier) ProviderLinked(ctx context.Context, to, displayName, provider string) error {
	log := logger.From(ctx).With(
		logger.Component("email.smtp"),
		logger.Email(to),
		logger.Provider(provider),
	)

	m := s.linkedMessage(to, displayName, provider)
	if err := s.dialer.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("provider linked notice sent")
	return nil
}

func (s *SMTPNotifier) linkedMessage(to, displayName, provider string) *mail.Message {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = to
	}
	text := fmt.Sprintf(
		"Hola %s,\n\nSe vinculó una cuenta de %s a tu usuario de %s.\n"+
			"Si no fuiste vos, desvinculala desde la configuración de tu cuenta.\n",
		name, provider, s.cfg.AppName)

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("[%s] Nueva cuenta vinculada: %s", s.cfg.AppName, provider))
	m.SetBody("text/plain", text)
	return m
}

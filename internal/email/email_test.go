package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []*mail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*mail.Message) error {
	c.sent = append(c.sent, m...)
	return c.err
}

func TestProviderLinked(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com", AppName: "Acme"})
	cs := &captureSender{}
	n.dialer = cs

	require.NoError(t, n.ProviderLinked(context.Background(), "ada@example.com", "Ada", "github"))
	require.Len(t, cs.sent, 1)

	assert.Equal(t, []string{"ada@example.com"}, cs.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"[Acme] Nueva cuenta vinculada: github"}, cs.sent[0].GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := cs.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Hola Ada")
}

func TestProviderLinked_SendError(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"})
	n.dialer = &captureSender{err: errors.New("connection refused")}

	err := n.ProviderLinked(context.Background(), "x@example.com", "", "google")
	assert.ErrorContains(t, err, "connection refused")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.ProviderLinked(context.Background(), "a", "b", "c"))
}

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://localhost:4318"},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestTracer_SpansWithoutProvider(t *testing.T) {
	_, span := Tracer("oauthlink/test").Start(context.Background(), "op")
	defer span.End()
	require.NotNil(t, span)
}

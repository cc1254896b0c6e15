package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecord(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := New(zap.New(core))

	a.Record(context.Background(), Event{Type: AccountLinked, UserID: "u1", Provider: "github", LinkID: "l1"})
	a.Record(context.Background(), Event{Type: AccountUnlinked, UserID: "u1"})

	entries := logs.All()
	require.Len(t, entries, 2)

	f := entries[0].ContextMap()
	assert.Equal(t, "audit", f["component"])
	assert.Equal(t, AccountLinked, f["event"])
	assert.Equal(t, "u1", f["user_id"])
	assert.Equal(t, "github", f["provider"])
	assert.Equal(t, "l1", f["link_id"])

	f = entries[1].ContextMap()
	assert.Equal(t, AccountUnlinked, f["event"])
	assert.NotContains(t, f, "provider")
}

package session

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory guarda sesiones en proceso con expiración (ttlcache).
type Memory struct {
	cache *ttlcache.Cache[string, string]
}

var _ Store = (*Memory)(nil)

// NewMemory arranca el loop de expiración; llamar Close al terminar.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &Memory{cache: c}
}

func (m *Memory) SetAuthenticatedUser(_ context.Context, sessionID, userID string) error {
	m.cache.Set(sessionID, userID, ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) AuthenticatedUser(_ context.Context, sessionID string) (string, error) {
	item := m.cache.Get(sessionID)
	if item == nil || item.IsExpired() {
		return "", ErrNoSession
	}
	return item.Value(), nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.cache.Delete(sessionID)
	return nil
}

func (m *Memory) Close() { m.cache.Stop() }

package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthlink/internal/rate"
)

type countingLimiter struct {
	max  int64
	hits map[string]int64
	err  error
}

func (c *countingLimiter) Allow(_ context.Context, key string) (rate.Result, error) {
	if c.err != nil {
		return rate.Result{}, c.err
	}
	c.hits[key]++
	n := c.hits[key]
	if n > c.max {
		return rate.Result{Allowed: false, RetryAfter: 30 * time.Second, Hits: n}, nil
	}
	return rate.Result{Allowed: true, Remaining: c.max - n, Hits: n}, nil
}

func TestWithRateLimit(t *testing.T) {
	lim := &countingLimiter{max: 1, hits: map[string]int64{}}
	h := WithRateLimit(lim, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
		req.RemoteAddr = ip + ":4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusFound, do("10.0.0.1").Code)
	rec := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusFound, do("10.0.0.2").Code)
}

func TestWithRateLimit_FailOpen(t *testing.T) {
	lim := &countingLimiter{err: errors.New("redis down")}
	h := WithRateLimit(lim, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIP_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientIP(req, nil))

	// un cliente directo no puede elegir su IP con el header
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.7", ClientIP(req, nil))

	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", ClientIP(req, trusted))
}

func TestClientIP_TrustedProxyChain(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "172.16.0.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"

	// el primer hop lo controla el cliente; vale el último no confiable
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9, 172.16.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req, trusted))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.1.2.3", ClientIP(req, trusted))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "10.1.2.3", ClientIP(req, trusted))
}

func TestParseTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, tp, 3)

	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestWithRateLimit_SpoofedForwardedForSharesBucket(t *testing.T) {
	lim := &countingLimiter{max: 1, hits: map[string]int64{}}
	h := WithRateLimit(lim, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	for i, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
		req.RemoteAddr = "198.51.100.9:1234"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusFound, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}

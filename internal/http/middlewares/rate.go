package middlewares

import (
	"fmt"
	"net"
	"net/netip"
	"net/http"
	"strconv"
	"strings"

	httperrors "github.com/dropDatabas3/oauthlink/internal/http/errors"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/rate"
)

// TrustedProxies son las redes de los proxies propios. Solo si el peer
// directo está en una de ellas se lee X-Forwarded-For.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies acepta CIDRs o IPs sueltas.
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", s)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (tp TrustedProxies) trusts(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range tp {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP retorna la IP del cliente. X-Forwarded-For se recorre de derecha
// a izquierda saltando proxies confiables; sin proxies confiables se usa
// RemoteAddr y el header se ignora.
func ClientIP(r *http.Request, trusted TrustedProxies) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !trusted.trusts(peer) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		a, err := netip.ParseAddr(hop)
		if err != nil {
			// header basura: quedarse con el último hop confiable
			return peer.String()
		}
		if !trusted.trusts(a) {
			return a.Unmap().String()
		}
		peer = a
	}
	return peer.Unmap().String()
}

// WithRateLimit limita por IP + path. Si el limiter falla se deja pasar el
// request (fail-open) y se loguea.
func WithRateLimit(limiter rate.Limiter, trusted TrustedProxies) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), ClientIP(r, trusted)+"|"+r.URL.Path)
			if err != nil {
				logger.From(r.Context()).Warn("rate limit check failed", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
				httperrors.WriteError(w, httperrors.ErrTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

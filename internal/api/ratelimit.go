package api

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mindtrap/maze-server/internal/config"
)

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	name   string
	limit  rate.Limit
	burst  int
	window time.Duration

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter returns nil when the limit is disabled.
func newIPLimiter(name string, l config.Limit) *ipLimiter {
	if l.Requests <= 0 || l.Window <= 0 {
		return nil
	}
	return &ipLimiter{
		name:     name,
		limit:    rate.Every(l.Window / time.Duration(l.Requests)),
		burst:    l.Requests,
		window:   l.Window,
		visitors: make(map[string]*visitor),
	}
}

func (l *ipLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.window {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.window {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// retryAfter is the whole seconds until one more token is available.
func (l *ipLimiter) retryAfter() int {
	return int(math.Ceil(float64(l.window) / float64(l.burst) / float64(time.Second)))
}

// RateLimit rejects clients that exceed l with 429.
func (s *Server) RateLimit(l *ipLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r), s.now()) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				s.errorHandler.HandleAccessError(w, r, http.StatusTooManyRequests, ErrTypeRateLimit,
					"Too many requests, please try again later ("+l.name+")")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	return peerHost(r.RemoteAddr)
}

func peerHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// TrustedRealIP takes the client address from X-Forwarded-For or X-Real-IP
// only when the socket peer is a trusted proxy. Anyone else is keyed on the
// peer address, so rotating the headers cannot dodge a limit.
func (s *Server) TrustedRealIP(next http.Handler) http.Handler {
	forwarded := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trustedPeer(r.RemoteAddr) {
			forwarded.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trustedPeer(remoteAddr string) bool {
	if len(s.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peerHost(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

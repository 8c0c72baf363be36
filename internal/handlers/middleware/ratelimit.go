package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nkiryanov/agonauth/internal/handlers/render"
)

// Limiters idle for that long are forgotten
const idleClientWindow = 5 * time.Minute

// RateLimiter throttles requests per client IP
// nil RateLimiter lets everything through
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Create limiter for requests-per-minute budget. Non-positive budget disables limiting
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}

	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   max(requestsPerMinute/10, 1),
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[key]
	if !ok {
		rl.cleanupLocked(now)
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range rl.clients {
		if now.Sub(entry.lastSeen) > idleClientWindow {
			delete(rl.clients, key)
		}
	}
}

// Forwarded headers are not trusted: anyone could set them to dodge the limit
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

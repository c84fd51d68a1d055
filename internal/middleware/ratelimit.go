package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	lastGC   time.Time
	now      func() time.Time
}

func newKeyedLimiter(r rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

func (kl *keyedLimiter) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	if now.Sub(kl.lastGC) > limiterIdleTTL {
		for k, cl := range kl.limiters {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(kl.limiters, k)
			}
		}
		kl.lastGC = now
	}

	cl, ok := kl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(kl.rate, kl.burst)}
		kl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// ClientIP keys requests by remote IP. Run chi's RealIP first when behind a
// proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientUserOrIP keys authenticated requests by user and falls back to IP.
func ClientUserOrIP(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + ClientIP(r)
}

// RateLimit allows r events per second with the given burst per client IP.
func RateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	return RateLimitBy(ClientIP, r, burst)
}

// RateLimitBy is RateLimit with a custom client key.
func RateLimitBy(key func(*http.Request) string, r rate.Limit, burst int) func(http.Handler) http.Handler {
	kl := newKeyedLimiter(r, burst)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !kl.get(key(req)).Allow() {
				retry := 1
				if r > 0 {
					retry = int(math.Ceil(1/float64(r) - 1e-9))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
			h.ServeHTTP(w, req)
		})
	}
}

package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per caller.
type KeyedLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyedLimiter allows perMinute events per key with a burst of the same
// size spread over a minute.
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	burst := perMinute / 4
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter).Allow()
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	return actual.(*rate.Limiter).Allow()
}

// RateLimit rejects requests over the limit with 429. Authenticated callers
// are keyed by profile, others by remote address.
func RateLimit(limiter *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(rateKey(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if profile, ok := GetProfile(r.Context()); ok {
		return "profile:" + profile.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

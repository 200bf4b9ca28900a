package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SendLimiter throttles message sends per user. Each send costs one remote
// provider call, so this is the only endpoint that needs it.
type SendLimiter struct {
	perMinute int
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSendLimiter returns nil when perMinute is not positive, which disables
// limiting.
func NewSendLimiter(perMinute, burst int) *SendLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{
		perMinute: perMinute,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *SendLimiter) limiterFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.burst)
		l.limiters[userID] = limiter
	}
	return limiter
}

func (l *SendLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(userID).Allow()
}

// Middleware must run after JWTAuthMiddleware.
func (l *SendLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r)
		if !l.Allow(userID) {
			log.Printf("Send rate limit exceeded for user %s (%d/min)", userID, l.perMinute)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middlewares

import (
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/infrastructure/metrics"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// RateLimiter hands out one token bucket per user. Buckets of idle users are
// evicted by the LRU.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache
	rps      rate.Limit
	burst    int
}

// NewRateLimiter returns nil when rps is zero, which disables limiting.
func NewRateLimiter(rps float64, burst, cacheSize int) (*RateLimiter, error) {
	if rps <= 0 {
		return nil, nil
	}
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limiters: cache, rps: rate.Limit(rps), burst: burst}, nil
}

// Allow reports whether key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	var limiter *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware limits by authenticated user, falling back to client IP. It
// must run after the auth middleware.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		key := auth.UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			metrics.RateLimitedTotal.Inc()
			platformerrors.WriteRateLimited(c, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

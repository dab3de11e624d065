package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client address. Idle buckets
// expire from the cache.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: cache.New(10*time.Minute, 20*time.Minute),
		limit:    rate.Limit(reqPerSec),
		burst:    burst,
	}
}

func (r *RateLimiter) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters.Get(key); ok {
		r.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters.SetDefault(key, l)
	return l
}

// Allow reports whether the client identified by key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	return r.limiter(key).Allow()
}

// RateLimit rejects clients over their budget with 429. A nil limiter
// disables the check.
func RateLimit(r *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r != nil && !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Request was throttled"})
			return
		}
		c.Next()
	}
}

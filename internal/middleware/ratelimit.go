package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"travelchat-backend/pkg/response"
)

// RateLimiter applies a token bucket per caller: the authenticated user when
// known, the client IP otherwise
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window with the given burst
func NewRateLimiter(requests int, window time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			identifier = fmt.Sprintf("user:%s", userID)
		}

		limiter := rl.get(identifier)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) get(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.limiters[identifier]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[identifier] = v
		if len(rl.limiters)%1024 == 0 {
			rl.evict(now)
		}
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) evict(now time.Time) {
	for k, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.limiters, k)
		}
	}
}

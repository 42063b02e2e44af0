package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/rentaltax/internal/models"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused limiter is kept before cleanup.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter applies a token bucket per requester.
type RateLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

// limiterEntry holds a rate limiter and its last access time.
type limiterEntry struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst to each requester.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

// Run removes idle limiters every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Cleanup drops limiters not used within limiterIdleTTL.
func (rl *RateLimiter) Cleanup() {
	now := rl.now()
	rl.limiters.Range(func(key, value interface{}) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		idle := now.Sub(entry.lastAccess) > limiterIdleTTL
		entry.mu.Unlock()
		if idle {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// allow reports whether key may make a request now, and the tokens left.
func (rl *RateLimiter) allow(key string) (bool, int) {
	fresh := &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
	v, _ := rl.limiters.LoadOrStore(key, fresh)
	entry := v.(*limiterEntry)

	now := rl.now()
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastAccess = now
	ok := entry.limiter.AllowN(now, 1)
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return ok, remaining
}

// requesterKey identifies the bucket of a request: its resolved identity, or
// its source address when there is none or when the anonymous ID was only
// just issued. A client discarding cookies would otherwise get a fresh bucket
// on every request.
func requesterKey(c *gin.Context) string {
	identity, ok := GetIdentity(c)
	if !ok || (identity.Kind == models.IdentityAnonymous && IdentityIssued(c)) {
		return "ip:" + ClientOrigin(c).SourceAddr
	}
	return string(identity.Kind) + ":" + identity.Value
}

// Middleware returns a Gin middleware enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	limit := strconv.Itoa(rl.burst)

	return func(c *gin.Context) {
		key := requesterKey(c)
		ok, remaining := rl.allow(key)

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !ok {
			if log := GetLogger(c); log != nil {
				log.Warn("Rate limit exceeded", map[string]interface{}{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})
			}

			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 1,
				"error": gin.H{
					"code":       "RATE_LIMITED",
					"message":    "Too many requests. Please try again later.",
					"request_id": GetRequestID(c),
				},
			})
			return
		}

		c.Next()
	}
}

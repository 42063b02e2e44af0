package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.Use(Identity(testIdentityConfig()))
	router.POST("/calc", rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func postAs(router *gin.Engine, openID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calc", nil)
	req.Header.Set("X-WX-OpenID", openID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_RejectsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, postAs(router, "user-a").Code)
	assert.Equal(t, http.StatusOK, postAs(router, "user-a").Code)

	w := postAs(router, "user-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), `"RATE_LIMITED"`)
	assert.Contains(t, w.Body.String(), `"code":1`)
}

func TestRateLimiter_SeparateBucketsPerIdentity(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, postAs(router, "user-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, postAs(router, "user-a").Code)
	assert.Equal(t, http.StatusOK, postAs(router, "user-b").Code)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, postAs(router, "user-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, postAs(router, "user-a").Code)

	now = now.Add(1100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, postAs(router, "user-a").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.allow("authenticated:idle")
	now = now.Add(limiterIdleTTL + time.Minute)
	rl.allow("authenticated:active")
	rl.Cleanup()

	_, idleKept := rl.limiters.Load("authenticated:idle")
	_, activeKept := rl.limiters.Load("authenticated:active")
	assert.False(t, idleKept)
	assert.True(t, activeKept)
}

func postFrom(router *gin.Engine, remoteAddr string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calc", nil)
	req.RemoteAddr = remoteAddr
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_CookielessClientsShareAddressBucket(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }
	router := rateLimitedRouter(rl)

	// Each request is issued a new client ID; the address still limits it
	assert.Equal(t, http.StatusOK, postFrom(router, "203.0.113.7:5000", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, postFrom(router, "203.0.113.7:5001", nil).Code)
	assert.Equal(t, http.StatusOK, postFrom(router, "203.0.113.8:5000", nil).Code)
}

func TestRateLimiter_ReturningClientUsesCookieBucket(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, postFrom(router, "203.0.113.7:5000", nil).Code)

	// Same address, but a client ID it already holds
	cookie := &http.Cookie{Name: "tc_client_id", Value: "client-returning"}
	assert.Equal(t, http.StatusOK, postFrom(router, "203.0.113.7:5000", cookie).Code)
	assert.Equal(t, http.StatusTooManyRequests, postFrom(router, "203.0.113.7:5000", cookie).Code)
}

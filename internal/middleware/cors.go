package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the credential of administrative requests.
const AdminTokenHeader = "X-Admin-Token"

// CORS creates a middleware that handles Cross-Origin Resource Sharing (CORS).
// Credentials are allowed so browsers send the identity cookie; extraHeaders
// lists additional request headers clients may set, such as the
// authenticated identity header.
func CORS(allowedOrigins []string, extraHeaders ...string) gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "X-Request-ID", AdminTokenHeader}
	allowHeaders = append(allowHeaders, extraHeaders...)

	config := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}

	return cors.New(config)
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stwalsh4118/rentaltax/internal/config"
	"github.com/stwalsh4118/rentaltax/internal/models"
)

// IdentityKey is the context key for the resolved requester identity
const IdentityKey = "identity"

// identityIssuedKey marks requests whose anonymous client ID was minted by
// this request rather than sent by the client.
const identityIssuedKey = "identity_issued"

// Identity resolves who a request is attributed to and stores it in the
// context. Requests without the anonymous cookie are issued a fresh UUID
// client ID, which is used immediately for the current request.
func Identity(cfg config.IdentityConfig) gin.HandlerFunc {
	maxAge := int(cfg.CookieMaxAge.Seconds())

	return func(c *gin.Context) {
		clientID, err := c.Cookie(cfg.CookieName)
		if err != nil || strings.TrimSpace(clientID) == "" {
			clientID = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, clientID, maxAge, "/", "", cfg.CookieSecure, true)
			c.Set(identityIssuedKey, true)
		}

		identity := models.ResolveIdentity(c.GetHeader(cfg.Header), clientID)
		c.Set(IdentityKey, identity)

		c.Next()
	}
}

// GetIdentity retrieves the resolved identity from the Gin context.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	if v, exists := c.Get(IdentityKey); exists {
		if identity, ok := v.(models.Identity); ok && !identity.IsZero() {
			return identity, true
		}
	}
	return models.Identity{}, false
}

// IdentityIssued reports whether the anonymous client ID of this request was
// issued by the request itself.
func IdentityIssued(c *gin.Context) bool {
	return c.GetBool(identityIssuedKey)
}

// ClientOrigin extracts the advisory origin of a request. The source address
// is the first entry of X-Real-IP, then X-Forwarded-For, then the peer.
func ClientOrigin(c *gin.Context) models.RequestOrigin {
	addr := c.GetHeader("X-Real-IP")
	if addr == "" {
		addr = c.GetHeader("X-Forwarded-For")
	}
	if addr == "" {
		addr = c.RemoteIP()
	}
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = addr[:i]
	}

	return models.RequestOrigin{
		UserAgent:  c.Request.UserAgent(),
		SourceAddr: strings.TrimSpace(addr),
	}.Capped()
}

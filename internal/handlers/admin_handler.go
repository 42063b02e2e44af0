package handlers

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/rentaltax/internal/errors"
	"github.com/stwalsh4118/rentaltax/internal/middleware"
	"github.com/stwalsh4118/rentaltax/internal/services"
)

// AdminHandler serves administrative operations guarded by a shared token.
type AdminHandler struct {
	service services.TaxService
	token   string
}

// NewAdminHandler creates a new AdminHandler. An empty token disables every
// administrative route.
func NewAdminHandler(service services.TaxService, token string) *AdminHandler {
	return &AdminHandler{
		service: service,
		token:   token,
	}
}

// authorize reports whether the request carries the admin token, writing the
// error response when it does not.
func (h *AdminHandler) authorize(c *gin.Context) bool {
	if h.token == "" {
		apierrors.Forbidden(c, "Administrative operations are disabled")
		return false
	}

	given := c.GetHeader(middleware.AdminTokenHeader)
	if given == "" {
		apierrors.Unauthorized(c, "Admin token required")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
		apierrors.Forbidden(c, "Invalid admin token")
		return false
	}
	return true
}

// ResetRecords handles DELETE /api/admin/records.
func (h *AdminHandler) ResetRecords(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	if err := h.service.ResetRecords(c.Request.Context()); err != nil {
		respondServiceError(c, err, "Failed to reset records")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Records reset by administrator", map[string]interface{}{
			"source": middleware.ClientOrigin(c).SourceAddr,
		})
	}

	respondOK(c, gin.H{"reset": true})
}

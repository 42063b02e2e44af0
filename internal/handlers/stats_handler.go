package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/rentaltax/internal/config"
	apierrors "github.com/stwalsh4118/rentaltax/internal/errors"
	"github.com/stwalsh4118/rentaltax/internal/services"
)

// StatsHandler serves aggregate statistics over all records.
type StatsHandler struct {
	service services.TaxService
}

// NewStatsHandler creates a new StatsHandler instance.
func NewStatsHandler(service services.TaxService) *StatsHandler {
	return &StatsHandler{service: service}
}

// BucketsRequest represents the query parameters of GET /api/stats/buckets.
type BucketsRequest struct {
	Edges string `form:"edges"`
}

// Count handles GET /api/count. It always answers 200; the count is 0 when
// the store cannot be reached.
func (h *StatsHandler) Count(c *gin.Context) {
	respondOK(c, h.service.CountRecords(c.Request.Context()))
}

// Overview handles GET /api/stats/overview.
func (h *StatsHandler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "Failed to aggregate records")
		return
	}

	respondOK(c, mapOverviewToDTO(overview))
}

// Buckets handles GET /api/stats/buckets. Custom breakpoints may be passed as
// ?edges=0,1000,2000; without them the configured defaults apply.
func (h *StatsHandler) Buckets(c *gin.Context) {
	var req BucketsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	var edges []float64
	if req.Edges != "" {
		parsed, err := config.ParseEdges(req.Edges)
		if err != nil {
			apierrors.BadRequest(c, "Invalid histogram edges", map[string]interface{}{
				"edges":  req.Edges,
				"reason": err.Error(),
			})
			return
		}
		edges = parsed
	}

	hist, err := h.service.RentHistogram(c.Request.Context(), edges)
	if err != nil {
		respondServiceError(c, err, "Failed to build rent histogram")
		return
	}

	respondOK(c, hist)
}

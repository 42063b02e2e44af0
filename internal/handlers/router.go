package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stwalsh4118/rentaltax/internal/config"
	apierrors "github.com/stwalsh4118/rentaltax/internal/errors"
	"github.com/stwalsh4118/rentaltax/internal/logger"
	"github.com/stwalsh4118/rentaltax/internal/middleware"
	"github.com/stwalsh4118/rentaltax/internal/services"
)

// RouterDeps holds what the HTTP layer needs from the rest of the process.
type RouterDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Service     services.TaxService
	Store       Pinger
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	// Middleware order: RequestID -> Logger -> Recovery -> CORS -> Identity
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Log))
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.CORS(cfg.CORS.Origins, cfg.Identity.Header))
	router.Use(middleware.Identity(cfg.Identity))

	healthHandler := NewHealthHandler(deps.Store, cfg.Server.Env, cfg.Store.Driver)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	taxHandler := NewTaxHandler(deps.Service)
	statsHandler := NewStatsHandler(deps.Service)
	adminHandler := NewAdminHandler(deps.Service, cfg.Admin.Token)

	calculate := []gin.HandlerFunc{taxHandler.Calculate}
	if deps.RateLimiter != nil {
		calculate = append([]gin.HandlerFunc{deps.RateLimiter.Middleware()}, calculate...)
	}

	api := router.Group("/api")
	{
		api.GET("/ping", healthHandler.Ping)
		api.GET("/count", statsHandler.Count)
		api.GET("/v1/info", healthHandler.Info)

		api.POST("/tax/calc-simple", calculate...)
		api.GET("/my/records", taxHandler.MyRecords)

		stats := api.Group("/stats")
		{
			stats.GET("/overview", statsHandler.Overview)
			stats.GET("/buckets", statsHandler.Buckets)
		}

		api.DELETE("/admin/records", adminHandler.ResetRecords)
	}

	router.NoRoute(func(c *gin.Context) {
		apierrors.NotFound(c, "Route not found")
	})

	return router
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stwalsh4118/rentaltax/internal/config"
	"github.com/stwalsh4118/rentaltax/internal/database"
	"github.com/stwalsh4118/rentaltax/internal/handlers"
	"github.com/stwalsh4118/rentaltax/internal/logger"
	"github.com/stwalsh4118/rentaltax/internal/metrics"
	"github.com/stwalsh4118/rentaltax/internal/middleware"
	"github.com/stwalsh4118/rentaltax/internal/repository"
	"github.com/stwalsh4118/rentaltax/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	connectTimeout     = 10 * time.Second
	rateLimiterCleanup = time.Minute
)

func main() {
	// A missing .env is normal outside local development
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	if envErr != nil {
		log.Debug("No .env file loaded", map[string]interface{}{"reason": envErr.Error()})
	}
	log.Info("Starting rental tax API", map[string]interface{}{
		"version":      handlers.APIVersion,
		"environment":  cfg.Server.Env,
		"port":         cfg.Server.Port,
		"store_driver": cfg.Store.Driver,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo, db := openStore(ctx, cfg, log)
	if db != nil {
		defer func() {
			if stats := db.Stats(); stats != nil {
				log.Info("Closing database pool", map[string]interface{}{
					"total_conns":    stats.TotalConns(),
					"acquired_conns": stats.AcquiredConns(),
					"acquire_count":  stats.AcquireCount(),
				})
			}
			db.Close()
		}()
	}

	// Metrics are exposed on their own registry
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := services.NewTaxService(repo, collector, log, cfg.Stats.HistogramEdges)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.Run(ctx, rateLimiterCleanup)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterDeps{
		Config:      cfg,
		Log:         log,
		Service:     service,
		Store:       repo,
		Gatherer:    registry,
		RateLimiter: limiter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// openStore returns the configured record store. When PostgreSQL cannot be
// reached the server still starts: calculations are answered unpersisted and
// the store-backed endpoints report 503 until restart.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.RecordRepository, *database.Database) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Using in-memory record store; records are lost on restart", nil)
		return repository.NewMemoryRecordRepository(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := database.NewPostgresPool(connectCtx, cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
		return repository.NewUnavailableRecordRepository(err), nil
	}

	if err := db.EnsureSchema(connectCtx); err != nil {
		log.Error("Failed to ensure database schema", err, map[string]interface{}{
			"database": cfg.Database.Name,
		})
		db.Close()
		return repository.NewUnavailableRecordRepository(err), nil
	}

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	return repository.NewPostgresRecordRepository(db, cfg.Database.QueryTimeout), db
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stwalsh4118/rentaltax/internal/models"
)

// Store drivers selectable through STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Stats     StatsConfig
	Admin     AdminConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	PoolMin      int
	PoolMax      int
	QueryTimeout time.Duration
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// IdentityConfig controls how requesters are identified.
type IdentityConfig struct {
	// CookieName holds the durable anonymous client identifier.
	CookieName string
	// Header carries an identity asserted by the hosting platform.
	Header string
	// CookieSecure marks the identity cookie as HTTPS-only.
	CookieSecure bool
	CookieMaxAge time.Duration
}

// RateLimitConfig bounds calculations per identity. A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// StatsConfig holds defaults for the statistics endpoints.
type StatsConfig struct {
	HistogramEdges []float64
}

// AdminConfig guards administrative endpoints. An empty token disables them.
type AdminConfig struct {
	Token string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "taxcalc")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 1)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("DB_QUERY_TIMEOUT", "3s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080")
	v.SetDefault("IDENTITY_COOKIE", "tc_client_id")
	v.SetDefault("IDENTITY_HEADER", "X-WX-OpenID")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_MAX_AGE", "8760h")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("HISTOGRAM_EDGES", "0,1000,2000,3000,5000,8000,10000")

	v.AutomaticEnv()

	edges, err := ParseEdges(v.GetString("HISTOGRAM_EDGES"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTOGRAM_EDGES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		},
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetString("DB_PORT"),
			Name:         v.GetString("DB_NAME"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			PoolMin:      v.GetInt("DB_POOL_MIN"),
			PoolMax:      v.GetInt("DB_POOL_MAX"),
			QueryTimeout: v.GetDuration("DB_QUERY_TIMEOUT"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Identity: IdentityConfig{
			CookieName:   v.GetString("IDENTITY_COOKIE"),
			Header:       v.GetString("IDENTITY_HEADER"),
			CookieSecure: v.GetBool("COOKIE_SECURE"),
			CookieMaxAge: v.GetDuration("COOKIE_MAX_AGE"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Stats: StatsConfig{
			HistogramEdges: edges,
		},
		Admin: AdminConfig{
			Token: v.GetString("ADMIN_TOKEN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	if c.Identity.CookieName == "" {
		return fmt.Errorf("IDENTITY_COOKIE is required")
	}
	if c.Identity.Header == "" {
		return fmt.Errorf("IDENTITY_HEADER is required")
	}
	if c.Identity.CookieMaxAge <= 0 {
		return fmt.Errorf("COOKIE_MAX_AGE must be positive")
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be non-negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	if len(c.Stats.HistogramEdges) == 0 {
		return fmt.Errorf("HISTOGRAM_EDGES is required")
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	if d.QueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be positive")
	}
	return nil
}

// ParseEdges parses a comma-separated list of histogram breakpoints.
// Edges must be finite, start at zero and be strictly ascending.
func ParseEdges(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	edges := make([]float64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		e, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("edge %q is not a number", trimmed)
		}
		edges = append(edges, e)
	}
	if err := models.ValidateEdges(edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

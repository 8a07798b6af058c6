// Package api wires together all HTTP routes for the contract factory.
//
// Route grouping:
//   - Reads under /api/v1 are public. A bearer token, when present, is still
//     validated so rate limits key by caller.
//   - POST /api/v1/contracts requires a caller token; the token subject is the
//     creating account.
//   - /api/v1/dev/* only answers in dev mode.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/contract-factory/contract-factory/internal/api/contracts"
	"github.com/contract-factory/contract-factory/internal/api/dev"
	"github.com/contract-factory/contract-factory/internal/config"
	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/middleware"
	"github.com/contract-factory/contract-factory/internal/storage"
)

// Version is reported by /version; cmd/server overrides it at link time.
var Version = "0.1.0"

// readinessProbePath is a key that is never written; Exists on it exercises
// backend credentials and connectivity without creating state.
const readinessProbePath = ".readiness-probe"

// Dependencies are the collaborators the router serves. DB, Storage and
// Documents are nil when the corresponding feature is disabled.
type Dependencies struct {
	Registry  *factory.Registry
	DB        *sql.DB
	Storage   storage.Storage
	Documents contracts.DocumentLoader
}

// BackgroundServices holds resources created by NewRouter that must be
// released during graceful shutdown. The caller (cmd/server) is responsible
// for calling Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	memoryLimiter *middleware.MemoryLimiter
	redisClient   *redis.Client
}

// Shutdown stops all background goroutines and closes shared clients.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.memoryLimiter != nil {
		bg.memoryLimiter.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// newLimiter builds the configured rate limiter, or nil when rate limiting
// is disabled.
func newLimiter(cfg *config.Config, bg *BackgroundServices) middleware.Limiter {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil
	}
	limits := middleware.DefaultRateLimitConfig()
	limits.RequestsPerMinute = rl.RequestsPerMinute
	limits.BurstSize = rl.Burst

	if rl.Backend == "redis" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("rate limiting enabled", "backend", "redis", "addr", cfg.Redis.Addr, "rpm", limits.RequestsPerMinute)
		return middleware.NewRedisLimiter(bg.redisClient, limits, "factory:ratelimit:")
	}

	bg.memoryLimiter = middleware.NewMemoryLimiter(limits)
	slog.Info("rate limiting enabled", "backend", "memory", "rpm", limits.RequestsPerMinute)
	return bg.memoryLimiter
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.Registry, deps.DB, deps.Storage))
	router.GET("/version", versionHandler())

	h := contracts.NewContractHandlers(deps.Registry, deps.Documents)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalCallerMiddleware())
	if limiter := newLimiter(cfg, bg); limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter))
	}
	{
		v1.POST("/contracts", middleware.CallerMiddleware(), h.CreateHandler())
		v1.GET("/contracts", h.ListAllHandler())
		v1.GET("/contracts/:address", h.GetHandler())
		v1.GET("/contracts/:address/name", h.NameHandler())
		v1.GET("/contracts/:address/symbol", h.SymbolHandler())
		v1.GET("/contracts/:address/owner", h.OwnerHandler())
		v1.GET("/contracts/:address/metadata", h.MetadataHandler())
		v1.GET("/owners/:address/contracts", h.ListForOwnerHandler())
		v1.GET("/events", h.EventsHandler())
	}

	devGroup := v1.Group("/dev", dev.DevModeMiddleware())
	{
		devGroup.POST("/token", dev.IssueTokenHandler())
		devGroup.GET("/status", dev.StatusHandler())
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router, bg
}

// @Summary      Health check
// @Description  Liveness probe. Checks database connectivity when a database is configured.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the contract store, the database and the document storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the store and the
// storage backend so a readiness gate fails when requests would error.
func readinessHandler(registry *factory.Registry, db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		notReady := func(check, msg string) {
			checks[check] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				notReady("database", "database not ready")
				return
			}
			checks["database"] = "healthy"
		}

		count, err := registry.Count(ctx)
		if err != nil {
			notReady("store", "contract store not ready")
			return
		}
		checks["store"] = "healthy"

		if storageBackend != nil {
			if _, err := storageBackend.Exists(ctx, readinessProbePath); err != nil {
				notReady("storage", "storage backend not ready")
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"checks":    checks,
			"contracts": count,
			"time":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The output format
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits the access log record. 5xx responses log at error level
// and 4xx at warn.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	status := c.Writer.Status()
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", status),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.GetRequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if caller, ok := middleware.GetCaller(c); ok {
		attrs = append(attrs, slog.String("caller", caller.Hex()))
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, slog.String("errors", c.Errors.String()))
	}

	slog.LogAttrs(context.WithoutCancel(c.Request.Context()), level, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" || wildcard {
				// credentials are never allowed with a wildcard origin
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", fmt.Sprintf("%s, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After", middleware.RequestIDHeader))
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Package api assembles the Gin engine of the user management API: global middleware,
// system endpoints and the /api resource routes.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/usermanagement/usermanagement/internal/api/admin"
	"github.com/usermanagement/usermanagement/internal/audit"
	"github.com/usermanagement/usermanagement/internal/auth"
	"github.com/usermanagement/usermanagement/internal/config"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
	"github.com/usermanagement/usermanagement/internal/middleware"
)

// Version is stamped at build time with -ldflags "-X .../internal/api.Version=..."
var Version = "dev"

// APIVersion is the version of the HTTP contract
const APIVersion = "v1"

// readinessTimeout bounds each dependency check of /ready
const readinessTimeout = 2 * time.Second

// BackgroundServices holds references to resources started alongside the router so
// they can be released on shutdown.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	shipper      *audit.MultiShipper
	redis        *redis.Client
}

// Shutdown stops in-memory limiter cleanup, flushes audit shippers and closes the
// Redis connection.
func (bs *BackgroundServices) Shutdown() {
	for _, rl := range bs.rateLimiters {
		rl.Stop()
	}
	if bs.shipper != nil {
		if err := bs.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bs.redis != nil {
		if err := bs.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	return newRouter(cfg, db, auditStore(cfg, db))
}

// auditStore returns the store selected by audit.store. The memory store does not see
// usernames, so listings from it name every actor "Unknown".
func auditStore(cfg *config.Config, db *sql.DB) audit.Store {
	if cfg.Audit.Store == config.AuditStoreMemory {
		slog.Warn("audit records are kept in memory and lost on restart")
		return audit.NewMemoryStore()
	}
	return repositories.NewAuditRepository(db)
}

// newRouter builds the engine over an explicit audit store
func newRouter(cfg *config.Config, db *sql.DB, store audit.Store) (*gin.Engine, *BackgroundServices, error) {
	if !cfg.Server.DevMode && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	bg := &BackgroundServices{}

	shipper, err := audit.NewMultiShipper(shipperConfigs(cfg.Audit.Shippers))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	bg.shipper = shipper
	auditService := audit.NewService(store, shipper, nil)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware("/health", "/ready"))
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: cfg.Security.CORS.AllowedMethods,
		MaxAgeSeconds:  cfg.Security.CORS.MaxAgeSecs,
	}))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, bg))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")
	if cfg.Security.RateLimiting.Enabled {
		read, write := newLimiters(cfg, bg)
		apiGroup.Use(middleware.RateLimitMiddleware(read, "default"))
		apiGroup.Use(writesOnly(middleware.RateLimitMiddleware(write, "write")))
	}

	resources := middleware.NewRouteResources()
	if cfg.Audit.Enabled {
		apiGroup.Use(middleware.AuditMiddleware(auditService, resources, actorProvider(cfg)))
	}

	sqlxDB := sqlx.NewDb(db, "postgres")

	// Users
	{
		h := admin.NewUsersHandler(sqlxDB)
		r := resourceRoutes{group: apiGroup.Group("/users"), resources: resources, resource: "UsersHandler"}
		r.handle(http.MethodGet, "", h.ListUsers())
		r.handle(http.MethodPost, "", h.CreateUser())
		r.handle(http.MethodPost, "/with-details", h.CreateUserWithDetails())
		r.handle(http.MethodGet, "/:id", h.GetUser())
		r.handle(http.MethodPut, "/:id", h.UpdateUser())
		r.handle(http.MethodDelete, "/:id", h.DeleteUser())
	}

	// Roles
	{
		h := admin.NewRolesHandler(sqlxDB)
		r := resourceRoutes{group: apiGroup.Group("/roles"), resources: resources, resource: "RolesHandler"}
		r.handle(http.MethodGet, "", h.ListRoles())
		r.handle(http.MethodPost, "", h.CreateRole())
		r.handle(http.MethodGet, "/:id", h.GetRole())
		r.handle(http.MethodPut, "/:id", h.UpdateRole())
		r.handle(http.MethodDelete, "/:id", h.DeleteRole())
	}

	// Access rights
	{
		h := admin.NewAccessRightsHandler(sqlxDB)
		r := resourceRoutes{group: apiGroup.Group("/access-rights"), resources: resources, resource: "AccessRightsHandler"}
		r.handle(http.MethodGet, "", h.ListAccessRights())
		r.handle(http.MethodPost, "", h.CreateAccessRight())
		r.handle(http.MethodGet, "/:id", h.GetAccessRight())
		r.handle(http.MethodPut, "/:id", h.UpdateAccessRight())
		r.handle(http.MethodDelete, "/:id", h.DeleteAccessRight())
	}

	// Addresses
	{
		h := admin.NewAddressesHandler(sqlxDB)
		r := resourceRoutes{group: apiGroup.Group("/addresses"), resources: resources, resource: "AddressesHandler"}
		r.handle(http.MethodGet, "", h.ListAddresses())
		r.handle(http.MethodPost, "", h.CreateAddress())
		r.handle(http.MethodGet, "/:id", h.GetAddress())
		r.handle(http.MethodPut, "/:id", h.UpdateAddress())
		r.handle(http.MethodDelete, "/:id", h.DeleteAddress())
	}

	// Audit logs are read-only over HTTP and not registered as an audited resource
	{
		h := admin.NewAuditLogsHandler(auditService, cfg.Audit.DefaultLimit)
		logs := apiGroup.Group("/audit-logs")
		logs.GET("", h.ListAuditLogs())
		logs.GET("/by-user/:userId", h.ListByUser())
		logs.GET("/by-time-interval", h.ListByTimeInterval())
		logs.GET("/by-user-and-time-interval/:userId", h.ListByUserAndTimeInterval())
		logs.GET("/by-operation/:operation", h.ListByOperation())
		logs.GET("/by-table/:tableName", h.ListByTable())
		logs.GET("/:id", h.GetAuditLog())
	}

	return router, bg, nil
}

// resourceRoutes registers routes on a group and records which resource serves each
// route template, so the audit middleware can name the table a write touched.
type resourceRoutes struct {
	group     *gin.RouterGroup
	resources *middleware.RouteResources
	resource  string
}

func (r resourceRoutes) handle(method, relativePath string, h gin.HandlerFunc) {
	r.group.Handle(method, relativePath, h)
	r.resources.Register(r.group.BasePath()+relativePath, r.resource)
}

// writesOnly applies h to mutating requests and passes reads straight through
func writesOnly(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			h(c)
		}
	}
}

// newLimiters returns the read and write tier limiters for the configured backend
func newLimiters(cfg *config.Config, bg *BackgroundServices) (middleware.Limiter, middleware.Limiter) {
	rl := cfg.Security.RateLimiting

	readCfg := middleware.DefaultRateLimitConfig()
	readCfg.RequestsPerMinute = rl.RequestsPerMinute
	readCfg.BurstSize = rl.Burst

	writeCfg := middleware.WriteRateLimitConfig()
	writeCfg.RequestsPerMinute = rl.WriteRequestsPerMinute
	writeCfg.BurstSize = rl.WriteBurst

	if rl.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		bg.redis = client
		slog.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
		return middleware.NewRedisLimiter(client, readCfg), middleware.NewRedisLimiter(client, writeCfg)
	}

	read := middleware.NewRateLimiter(readCfg)
	write := middleware.NewRateLimiter(writeCfg)
	bg.rateLimiters = append(bg.rateLimiters, read, write)
	return read, write
}

// actorProvider attributes writes to the bearer token subject when tokens can be
// verified, and to the configured default actor otherwise.
func actorProvider(cfg *config.Config) middleware.ActorProvider {
	fallback := middleware.StaticActor{ID: cfg.Audit.DefaultActor()}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Server.DevMode)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSecret) {
			slog.Info("no jwt secret configured, audit records use the default actor")
		} else {
			slog.Warn("bearer tokens disabled", "error", err)
		}
		return fallback
	}
	return middleware.TokenActor{Tokens: tokens, Fallback: fallback}
}

// shipperConfigs converts the file/env representation into audit shipper settings
func shipperConfigs(in []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(in))
	for _, sc := range in {
		c := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}
		if sc.Webhook != nil {
			c.Webhook = &audit.WebhookConfig{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: time.Duration(sc.Webhook.FlushIntervalSecs) * time.Second,
			}
		}
		if sc.File != nil {
			c.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		out = append(out, c)
	}
	return out
}

// @Summary      Health check
// @Description  Returns 200 when the database answers a ping
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Checks the database and, when rate limiting uses it, Redis
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /ready [get]
func readinessHandler(db *sql.DB, bg *BackgroundServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Warn("readiness: database unavailable", "error", err)
			checks["database"] = "unavailable"
			ready = false
		} else {
			checks["database"] = "ok"
		}

		if bg.redis != nil {
			if err := bg.redis.Ping(ctx).Err(); err != nil {
				slog.Warn("readiness: redis unavailable", "error", err)
				checks["redis"] = "unavailable"
				ready = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": APIVersion,
		})
	}
}

// Package router wires HTTP middleware and routes into a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
)

// Handlers bundles every handler the router mounts
type Handlers struct {
	System   *handler.SystemHandler
	Auth     *handler.AuthHandler
	Accounts *handler.AccountHandler
	Sync     *handler.SyncHandler
	Errors   *handler.ErrorHandler
	Mappings *handler.MappingHandler
	Logs     *handler.LogHandler
	Webhooks *handler.WebhookHandler
}

// Config carries the router dependencies
type Config struct {
	Handlers       Handlers
	JWTService     *auth.JWTService
	WebhookSecret  string
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	TracingEnabled bool
	ServiceName    string
	Logger         *zap.Logger
}

// New builds the gin engine with the full middleware chain and all routes.
// Middleware order matters: the request id must exist before the access log
// runs, and tracing must wrap everything that should land in spans.
func New(cfg Config) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 << 20
	}

	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	if cfg.TracingEnabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(logger.AccessLog(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	registerPublicRoutes(engine, cfg)
	registerAPIRoutes(engine, cfg)

	return engine
}

// registerPublicRoutes mounts routes that never require an operator token
func registerPublicRoutes(engine *gin.Engine, cfg Config) {
	h := cfg.Handlers

	engine.GET("/health", h.System.Health)

	webhooks := engine.Group("/webhooks")
	webhooks.Use(middleware.WebhookAuth(cfg.WebhookSecret, cfg.Logger))
	webhooks.POST("/marketplace", h.Webhooks.Receive)
}

// registerAPIRoutes mounts the operator API under /api/v1. Everything except
// token issuance requires a valid operator token.
func registerAPIRoutes(engine *gin.Engine, cfg Config) {
	h := cfg.Handlers

	api := engine.Group("/api/v1")
	api.POST("/auth/token", h.Auth.IssueToken)

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(cfg.JWTService))
	if cfg.TracingEnabled {
		protected.Use(middleware.TracingAttributeInjector())
	}

	protected.GET("/system/info", h.System.Info)

	accounts := protected.Group("/accounts")
	{
		accounts.POST("", h.Accounts.Connect)
		accounts.GET("", h.Accounts.List)
		accounts.GET("/:id", h.Accounts.Get)
		accounts.POST("/:id/disconnect", h.Accounts.Disconnect)
		accounts.POST("/:id/sync", h.Sync.StartPass)
	}

	errorQueue := protected.Group("/errors")
	{
		errorQueue.GET("", h.Errors.List)
		errorQueue.GET("/stats", h.Errors.Stats)
		errorQueue.GET("/:id", h.Errors.Get)
		errorQueue.POST("/:id/retry", h.Errors.Retry)
		errorQueue.POST("/:id/ignore", h.Errors.Ignore)
		errorQueue.POST("/:id/resolve", h.Errors.Resolve)
	}

	mappings := protected.Group("/mappings")
	{
		mappings.GET("", h.Mappings.List)
		mappings.GET("/resolve", h.Mappings.Resolve)
	}

	protected.GET("/logs", h.Logs.List)
}

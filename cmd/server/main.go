package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	idMappingRepo := persistence.NewGormIDMappingRepository(db.DB)
	syncErrorRepo := persistence.NewGormSyncErrorRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	targetStore := persistence.NewGormTargetStore(db.DB)

	// Webhook dedupe store: Redis when reachable, in-memory otherwise
	eventStore, err := cache.NewEventStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		log.Fatal("Failed to create webhook event store", zap.Error(err))
	}

	// Marketplace provider access
	providerConfig := marketplace.NewProviderConfig(
		cfg.Marketplace.BaseURL,
		cfg.Marketplace.TokenURL,
		cfg.Marketplace.ClientID,
		cfg.Marketplace.ClientSecret,
	)
	providerConfig.TimeoutSeconds = cfg.Marketplace.TimeoutSeconds

	tokenSource, err := marketplace.NewTokenSource(providerConfig, accountRepo, log)
	if err != nil {
		log.Fatal("Failed to create token source", zap.Error(err))
	}
	gateway, err := marketplace.NewClient(providerConfig, tokenSource, log)
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}

	// Table mappings, validated at startup
	mappingSet, err := appsync.DefaultMappingSet()
	if err != nil {
		log.Fatal("Invalid table mappings", zap.Error(err))
	}

	// Application services
	accountService := appsync.NewAccountService(accountRepo, tokenSource, log)
	reconciler := appsync.NewReconciler(mappingSet, idMappingRepo, targetStore, log)
	errorQueue := appsync.NewErrorQueue(syncErrorRepo, reconciler, syncLogRepo, log)
	orchestrator := appsync.NewOrchestrator(
		accountRepo, gateway, reconciler, syncErrorRepo, syncLogRepo, mappingSet,
		appsync.Config{
			PageSize:     cfg.Sync.PageSize,
			MaxRetries:   cfg.Sync.MaxRetries,
			LogRetention: cfg.Sync.LogRetention,
		},
		log,
	)
	eventProcessor := appsync.NewEventProcessor(
		accountRepo, idMappingRepo, syncErrorRepo, syncLogRepo, eventStore,
		cfg.Sync.MaxRetries, log,
	)

	jwtService := auth.NewJWTService(cfg.JWT)

	// Background sync scheduler
	schedulerConfig := scheduler.DefaultConfig()
	schedulerConfig.Enabled = cfg.Scheduler.Enabled
	schedulerConfig.SyncInterval = cfg.Scheduler.SyncInterval
	schedulerConfig.SyncJitter = cfg.Scheduler.SyncJitter
	schedulerConfig.GCInterval = cfg.Scheduler.GCInterval
	schedulerConfig.LogRetention = cfg.Sync.LogRetention

	syncScheduler, err := scheduler.NewSyncScheduler(schedulerConfig, accountRepo, orchestrator, syncLogRepo, log)
	if err != nil {
		log.Fatal("Invalid scheduler configuration", zap.Error(err))
	}
	if err := syncScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := syncScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping sync scheduler", zap.Error(err))
		}
	}()

	// HTTP layer
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := router.New(router.Config{
		Handlers: router.Handlers{
			System:   handler.NewSystemHandler(db),
			Auth:     handler.NewAuthHandler(jwtService, cfg.JWT.BootstrapSecret),
			Accounts: handler.NewAccountHandler(accountService),
			Sync:     handler.NewSyncHandler(orchestrator),
			Errors:   handler.NewErrorHandler(errorQueue),
			Mappings: handler.NewMappingHandler(idMappingRepo),
			Logs:     handler.NewLogHandler(syncLogRepo),
			Webhooks: handler.NewWebhookHandler(eventProcessor),
		},
		JWTService:     jwtService,
		WebhookSecret:  cfg.Webhook.Secret,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		CORS:           middleware.DefaultCORSConfig(),
		TracingEnabled: cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         log,
	})

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

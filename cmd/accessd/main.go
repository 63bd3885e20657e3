package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/itellico/mono-access/pkg/api"
	"github.com/itellico/mono-access/pkg/audit"
	"github.com/itellico/mono-access/pkg/cache"
	"github.com/itellico/mono-access/pkg/config"
	"github.com/itellico/mono-access/pkg/engine"
	"github.com/itellico/mono-access/pkg/middleware"
	"github.com/itellico/mono-access/pkg/observability"
	"github.com/itellico/mono-access/pkg/permissions"
	"github.com/itellico/mono-access/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides MONO_ACCESS_CONFIG_FILE)")
	flag.Parse()
	if *configPath != "" {
		os.Setenv("MONO_ACCESS_CONFIG_FILE", *configPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Database, with migrations applied on startup.
	openCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	st, err := store.Open(openCtx, cfg.Database.URL, cfg.Database.MaxConns)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db := st.DB()

	// Permission cache: in-process L1 over a shared Redis L2. A Redis
	// that is down at startup is not fatal; the service degrades to the
	// L1 tier and the health endpoint reports it.
	var permCache cache.Cache
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		l1 := cache.NewMemoryCache(cfg.Cache.L1Size, cfg.Cache.TTL)
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, running with in-process cache only")
			permCache = l1
		} else {
			redisClient = rc.Client()
			permCache = cache.NewTieredCache(l1, rc).WithMetrics(metrics)
		}
	}

	perms := permissions.NewService(st, permCache, cfg.Cache.TTL, logger)

	auditLogger, auditStore, err := buildAuditSink(cfg, db)
	if err != nil {
		log.Fatalf("Failed to initialize audit sink: %v", err)
	}

	eng := engine.New(perms, auditLogger, logger, metrics)

	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient).Handler
	} else {
		rateLimit = middleware.NewRateLimitMiddleware().Handler
	}

	apiServer := api.NewServer(api.Options{
		Engine:     eng,
		Identity:   engine.NewStoreIdentity(st),
		Perms:      perms,
		AuditLog:   auditLogger,
		AuditStore: auditStore,
		Logger:     logger,
		RateLimit:  rateLimit,
	})

	handler := apiServer.Router()
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port, never rate limited.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if metrics != nil {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.HealthAddr(),
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	var sweeper *audit.RetentionSweeper
	if auditStore != nil && cfg.Audit.RetentionDays > 0 {
		sweeper = audit.NewRetentionSweeper(auditStore, audit.RetentionPolicy{
			RetentionDays: cfg.Audit.RetentionDays,
			Schedule:      cfg.Audit.RetentionSchedule,
		}, logger)
		if err := sweeper.Start(); err != nil {
			log.Fatalf("Failed to start audit retention sweeper: %v", err)
		}
	}

	stopStats := make(chan struct{})
	if metrics != nil {
		go collectDBStats(db, metrics, logger, stopStats)
	}

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		close(stopStats)
		if sweeper != nil {
			sweeper.Stop()
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		if permCache != nil {
			return permCache.Close()
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":        server.Addr,
			"health_addr": healthServer.Addr,
		}).Info("access service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// buildAuditSink wires the configured audit backend. The queryable
// store exists only when the database backend is part of the sink.
func buildAuditSink(cfg *config.Config, db *sql.DB) (audit.Logger, audit.Store, error) {
	fileConfig := audit.DefaultFileLoggerConfig()
	if cfg.Audit.FilePath != "" {
		fileConfig.BasePath = cfg.Audit.FilePath
	}

	switch cfg.Audit.Backend {
	case "db":
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		return dbLogger, audit.NewDBStore(dbLogger), nil
	case "file":
		fileLogger, err := audit.NewFileLogger(fileConfig)
		if err != nil {
			return nil, nil, err
		}
		return fileLogger, nil, nil
	case "both":
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		fileLogger, err := audit.NewFileLogger(fileConfig)
		if err != nil {
			return nil, nil, err
		}
		return audit.NewMultiLogger(dbLogger, fileLogger), audit.NewDBStore(dbLogger), nil
	case "none":
		return audit.NewNoopLogger(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
	}
}

// collectDBStats samples connection pool gauges until stop is closed.
func collectDBStats(db *sql.DB, metrics *observability.Metrics, logger *observability.Logger, stop <-chan struct{}) {
	defer observability.RecoverPanic(logger, "db stats collector")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.CollectDBStats(db)
		case <-stop:
			return
		}
	}
}

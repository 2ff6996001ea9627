package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/seed"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Gatehouse stopped with error")
	}
	logger.Info("Gatehouse stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
		ExportInterval: cfg.Observability.OTelExportInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("Connected to database")

	if cfg.Database.MigrateOnStart {
		if err := rbac.RunMigrations(ctx, db, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store := rbac.NewStore(db)
	if cfg.Database.SeedFile != "" {
		doc, err := seed.Load(cfg.Database.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, store, doc, logger); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	metrics.RegisterDBStats(db, "gatehouse")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		logger.Info("Connected to Redis")
	}

	roles, invalidator, err := buildRoleResolver(cfg.Authz, store, redisClient, metrics, logger)
	if err != nil {
		return err
	}

	auditLogger, err := buildAuditLogger(ctx, cfg.Audit, db, logger)
	if err != nil {
		return err
	}

	evaluator := rbac.NewEvaluator(auth.ContextIdentity{}, roles, store,
		rbac.WithAdminRoleID(cfg.Authz.AdminRoleID),
		rbac.WithLogger(logger),
		rbac.WithDecisionRecorder(metrics),
		rbac.WithTracer(providers.Tracer(rbac.TracerName)),
		rbac.WithFilterConcurrency(cfg.Authz.FilterConcurrency),
	)

	apiServer := api.NewServer(api.Config{
		Store:       store,
		Evaluator:   evaluator,
		Invalidator: invalidator,
		Audit:       auditLogger,
		Metrics:     metrics,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(apiServer, "gatehouse"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	checker := observability.NewHealthChecker(db, redisClient).
		WithVersion(version).
		WithSchemaVersion(rbac.MigrationsTable, rbac.LatestMigrationVersion())
	observability.RegisterHealthRoutes(healthRouter, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("health-server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		// The database audit sink writes through db, so flush the sinks first.
		if err := auditLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close audit log")
		}
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
			return providers.Shutdown(ctx, logger)
		})
	}

	serve := func(name string, srv *http.Server) {
		logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).WithField("server", name).Fatal("Server failed")
		}
	}
	go serve("health", healthServer)
	go serve("api", httpServer)

	logger.WithField("version", version).Info("Gatehouse started")
	return shutdown.WaitForShutdown()
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// buildRoleResolver puts the configured role cache in front of the store. The
// invalidator is nil when nothing is cached.
func buildRoleResolver(cfg config.AuthzConfig, store *rbac.Store, redisClient *redis.Client, recorder rbac.CacheRecorder, logger *logrus.Logger) (rbac.RoleResolver, api.RoleCacheInvalidator, error) {
	var cache rbac.RoleCache
	switch cfg.CacheBackend {
	case config.CacheMemory:
		cache = rbac.NewLRURoleCache(cfg.CacheSize, cfg.CacheTTL)
	case config.CacheRedis:
		if redisClient == nil {
			return nil, nil, errors.New("redis role cache configured without a redis client")
		}
		cache = rbac.NewRedisRoleCache(redisClient, "", cfg.CacheTTL)
	default:
		return store, nil, nil
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.CacheBackend,
		"ttl":     cfg.CacheTTL.String(),
	}).Info("Role cache enabled")
	cached := rbac.NewCachingRoleResolver(store, cache, cfg.CacheBackend, logger, recorder)
	return cached, cached, nil
}

// buildAuditLogger opens every configured sink. No sinks means audit events are dropped.
func buildAuditLogger(ctx context.Context, cfg config.AuditConfig, db *sql.DB, logger *logrus.Logger) (audit.Logger, error) {
	var sinks []audit.Logger
	for _, name := range cfg.Sinks {
		switch name {
		case config.AuditSinkLog:
			sinks = append(sinks, audit.NewLogrusLogger(logger))
		case config.AuditSinkFile:
			l, err := audit.NewFileLogger(audit.FileLoggerConfig{Dir: cfg.Dir, MaxSize: cfg.MaxSize, MaxFiles: cfg.MaxFiles})
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, l)
		case config.AuditSinkDatabase:
			l, err := audit.NewDBLogger(ctx, db)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, l)
		}
	}

	switch len(sinks) {
	case 0:
		return audit.NopLogger{}, nil
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiLogger(sinks...), nil
	}
}

// Package observability provides structured logging, Prometheus metrics, health
// checks, OpenTelemetry tracing and graceful shutdown for the gatehouse server.
//
// # Structured Logging
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	observability.WithTraceContext(ctx, logger).Info("Evaluating request")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	ev := rbac.NewEvaluator(identity, roles, perms, rbac.WithDecisionRecorder(metrics))
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(router, registry)
//
// Metrics implements rbac.DecisionRecorder and rbac.CacheRecorder.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required; Redis only degrades the status when it is down.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gatehouse",
//	}, logger)
//	defer providers.Shutdown(ctx, logger)
package observability

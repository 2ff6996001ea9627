package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Config holds the collaborators of the API server
type Config struct {
	Store     Store
	Evaluator *rbac.Evaluator

	// Optional
	Invalidator RoleCacheInvalidator
	Audit       audit.Logger
	Metrics     *observability.Metrics
	Logger      *logrus.Logger
}

// Server is the HTTP API server
type Server struct {
	router   *mux.Router
	handlers *AuthzHandlers
	logger   *logrus.Logger
}

// NewServer creates a new API server with all routes registered
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewAuthzHandlers(cfg.Store, cfg.Evaluator, cfg.Invalidator, cfg.Audit, logger),
		logger:   logger,
	}

	s.router.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	)
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	s.router.Use(auth.ActorMiddleware(logger))

	s.handlers.RegisterRoutes(s.router.PathPrefix("/api/v1").Subrouter())
	return s
}

// Router exposes the underlying router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

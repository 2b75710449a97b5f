package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/merchant-sync-backend/internal/api/dto"
	"github.com/eshaffer321/merchant-sync-backend/internal/api/handlers"
	"github.com/eshaffer321/merchant-sync-backend/internal/api/middleware"
	"github.com/eshaffer321/merchant-sync-backend/internal/application/service"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// StorageDriver is reported by the health endpoints
	StorageDriver string
	// PrivvyConfigured is reported on the dashboard
	PrivvyConfigured bool
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		StorageDriver:  "sqlite",
	}
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Repo      storage.Repository
	Merchants *service.MerchantService
	// Syncs may be nil, in which case sync endpoints are not available
	Syncs *service.SyncService
	// Metrics is mounted on /metrics when non-nil
	Metrics http.Handler
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	deps       Deps
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Merchants == nil && deps.Repo != nil {
		deps.Merchants = service.NewMerchantService(deps.Repo, logger)
	}

	s := &Server{
		config: cfg,
		router: gin.New(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.Fail(dto.InternalError()))
	}))

	s.router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
	}))

	// Health checks from load balancers would drown everything else
	s.router.Use(middleware.Logging(s.logger, "/health"))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.deps.Repo, s.config.StorageDriver, s.logger)
	s.router.GET("/health", health.Health)

	dashboard := s.router.Group("/dashboard")
	{
		stats := handlers.NewDashboardHandler(health, s.deps.Merchants, s.config.PrivvyConfigured)
		dashboard.GET("/health", health.Health)
		dashboard.GET("/stats", stats.Stats)
	}

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	{
		merchants := handlers.NewMerchantsHandler(s.deps.Merchants, s.deps.Syncs, s.logger)
		api.GET("/merchants", merchants.List)
		api.GET("/merchants/stats", merchants.Stats)
		api.GET("/merchants/:mid", merchants.Get)
		api.PUT("/merchants/:mid", merchants.Update)
		api.POST("/merchants/sync", merchants.Sync)

		// Sync runs (historical)
		runs := handlers.NewRunsHandler(s.deps.Repo, s.logger)
		api.GET("/runs", runs.List)
		api.GET("/runs/:id", runs.Get)

		// Sync operations (live sync jobs)
		if s.deps.Syncs != nil {
			syncs := handlers.NewSyncHandler(s.deps.Syncs, s.logger)
			api.POST("/sync", syncs.StartSync)
			api.GET("/sync", syncs.ListAllSyncs)
			api.GET("/sync/active", syncs.ListActiveSyncs)
			api.GET("/sync/:jobId", syncs.GetSyncStatus)
			api.DELETE("/sync/:jobId", syncs.CancelSync)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.Fail(dto.NotFoundError("route")))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // POST /api/merchants/sync waits for the whole run
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

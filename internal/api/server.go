// Package api provides the HTTP API server for Dockyard.
// It uses the Echo framework to serve REST endpoints for hosts, their
// containers and images, and the multi-host views.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"evalgo.org/dockyard/internal/config"
	"evalgo.org/dockyard/internal/metrics"
	"evalgo.org/dockyard/internal/orchestration"
	"evalgo.org/dockyard/internal/registry"
	"evalgo.org/dockyard/internal/storage"
	"evalgo.org/dockyard/internal/validation"
	"evalgo.org/dockyard/internal/version"
)

// Server represents the Dockyard API server.
type Server struct {
	echo      *echo.Echo
	storage   *storage.Storage
	manager   *orchestration.Manager
	validator *validation.Validator
	config    *config.Config
	logger    zerolog.Logger
}

// New creates a new API server instance.
func New(cfg *config.Config, store *storage.Storage, manager *orchestration.Manager, logger zerolog.Logger) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	// Set custom error handler
	e.HTTPErrorHandler = HTTPErrorHandler

	server := &Server{
		echo:      e,
		storage:   store,
		manager:   manager,
		validator: validation.New(),
		config:    cfg,
		logger:    logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Request logging and metrics
	s.echo.Use(RequestLogger(s.logger))
	s.echo.Use(RequestMetrics)

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderUserID, HeaderUserStaff},
		}))
	}

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)

	// Accept header validation middleware
	s.echo.Use(ValidateAcceptHeader)

	// Caller identity from the fronting proxy
	s.echo.Use(Identity)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API v1 group
	v1 := s.echo.Group("/api/v1")
	v1.Use(ValidateQueryParams)

	// Multi-host views
	v1.GET("/containers", s.listRunningContainers)
	v1.GET("/images", s.listImagesByHost)

	// Host routes
	hosts := v1.Group("/hosts")
	hosts.GET("", s.listHosts)
	hosts.POST("", s.createHost, RequireStaff)
	hosts.GET("/:id", s.getHost, ValidateIDFormat)
	hosts.PUT("/:id", s.updateHost, ValidateIDFormat, RequireStaff)
	hosts.DELETE("/:id", s.deleteHost, ValidateIDFormat, RequireStaff)

	// Container routes on a host
	containers := hosts.Group("/:id/containers", ValidateIDFormat)
	containers.GET("", s.listHostContainers)
	containers.POST("", s.createContainer)
	containers.GET("/:cid", s.getContainer)
	containers.DELETE("/:cid", s.containerAction("destroyed", (*registry.Registry).DestroyContainer))
	containers.POST("/:cid/start", s.containerAction("started", (*registry.Registry).StartContainer))
	containers.POST("/:cid/stop", s.containerAction("stopped", (*registry.Registry).StopContainer))
	containers.POST("/:cid/restart", s.containerAction("restarted", (*registry.Registry).RestartContainer))
	containers.POST("/:cid/kill", s.containerAction("killed", (*registry.Registry).KillContainer))
	containers.GET("/:cid/logs", s.getContainerLogs)

	// Image routes on a host
	images := hosts.Group("/:id/images", ValidateIDFormat)
	images.GET("", s.listHostImages)
	images.POST("/pull", s.pullImage, RequireStaff)
	images.POST("/build", s.buildImage, RequireStaff)
	images.DELETE("/:iid", s.removeImage, RequireStaff)

	// Validation routes
	validate := v1.Group("/validate")
	validate.POST("/host", s.validateHost)
	validate.POST("/container", s.validateContainer)
}

// ServeHTTP lets the server be mounted or exercised as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.logger.Info().
		Str("address", addr).
		Str("storage", s.config.Storage.Path).
		Str("cache", s.config.Cache.Backend).
		Bool("debug", s.config.Server.Debug).
		Msg("starting Dockyard API server")

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	var err error
	if s.config.Server.TLSEnabled {
		err = s.echo.StartTLS(addr, s.config.Server.TLSCert, s.config.Server.TLSKey)
	} else {
		err = s.echo.Start(addr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down Dockyard API server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	s.logger.Info().Msg("server shutdown complete")
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	// Listing hosts verifies the metadata store
	hosts, err := s.storage.ListHosts(false)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   "storage unavailable",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "dockyard",
		"version": version.Get().Version,
		"hosts":   len(hosts),
		"pooled":  s.manager.Count(),
	})
}

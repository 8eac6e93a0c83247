package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/birdlens/birdlens/internal/api/middleware"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability"
	"github.com/birdlens/birdlens/internal/pipeline"
)

// Runner executes identification runs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// CollectionReader reads back an owner's collection.
type CollectionReader interface {
	List(ctx context.Context, ownerID string, limit int) ([]collection.Entry, error)
	Count(ctx context.Context, ownerID string) (int64, error)
}

// Server is the HTTP API server. It manages the Echo instance, middleware and routes.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	runner     Runner
	registry   pipeline.Registry
	collection CollectionReader
	metrics    *observability.Metrics
	build      *buildinfo.Context

	wg        sync.WaitGroup
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version details reported by /health.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// New creates a new HTTP server with the given configuration and options.
func New(config *Config, runner Runner, registry pipeline.Registry, entries CollectionReader, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:     config,
		runner:     runner,
		registry:   registry,
		collection: entries,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	if s.build == nil {
		s.build = &buildinfo.Context{}
	}

	s.echo = echo.New()
	s.echo.Logger = logger.NewEchoAdapter(s.log.Module("echo"))
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("owner_header", config.OwnerHeader),
		logger.Bool("metrics", s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLogger(s.log, func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	securityConfig.OwnerHeader = s.config.OwnerHeader

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit()))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/identifications", s.identify)
	v1.GET("/collections/:owner", s.listCollection)
	v1.GET("/registry/:region", s.getRegistry)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.GetVersion(),
		"build_date":     s.build.GetBuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// httpErrorHandler renders framework errors (unknown routes, body limits, panics) in the
// same shape as handler errors.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}

	if code >= http.StatusInternalServerError {
		s.log.WithContext(c.Request().Context()).Error("unhandled request error",
			logger.Error(err),
			logger.String("path", c.Request().URL.Path))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{
			Error:   http.StatusText(code),
			Message: message,
			Code:    code,
		})
	}
	if writeErr != nil {
		s.log.Debug("failed to write error response", logger.Error(writeErr))
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	s.wg.Go(func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
		if err := s.echo.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		s.wg.Wait()
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.wg.Wait()

	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

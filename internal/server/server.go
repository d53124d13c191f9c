package server

import (
	"context"
	"net/http"
	"time"

	"supportcore/internal/auth"
	"supportcore/internal/config"
	"supportcore/internal/handlers"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Dependencies are the components the routes are served by
type Dependencies struct {
	DB          *sqlx.DB
	Platform    handlers.Pinger
	Automations handlers.Automations
	Assembler   handlers.ContextAssembler
	Analytics   handlers.Summarizer
	Validator   *auth.Validator
}

// Server represents the application server
type Server struct {
	echo   *echo.Echo
	deps   Dependencies
	config *config.Config
	logger zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	if deps.Validator == nil {
		deps.Validator = auth.NewValidator(cfg.EventSigningToken)
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints stay at root level for monitoring
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.deps.DB))
	s.echo.GET("/healthz/platform", handlers.PlatformHealthHandler(s.deps.Platform))

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version))

	protected := api.Group("", auth.Middleware(s.deps.Validator))
	protected.POST("/events", handlers.EventsHandler(s.deps.Automations, s.logger))
	if s.deps.Assembler != nil {
		protected.POST("/retrieval", handlers.RetrievalHandler(s.deps.Assembler, s.logger))
	}
	if s.deps.Analytics != nil {
		protected.GET("/analytics", handlers.AnalyticsHandler(s.deps.Analytics, s.logger))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

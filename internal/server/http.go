package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chainarena/config"
	"chainarena/internal/observability"
	"chainarena/internal/payout"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey          string   // Optional: Master key for authentication
	MetricsEnabled     bool     // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint    string   // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit      int64    // Max request body size in bytes (default: 10MB)
	CORSAllowOrigins   []string // Allowed CORS origins; empty disables CORS headers
	DefaultStreamModel string   // Model used by /llm_request_streaming when none is given
}

// Deps are the collaborators the handlers delegate to.
type Deps struct {
	Dispatcher Dispatcher
	Ranking    Ranking
	Rewarder   payout.Rewarder
	// Verifier may be nil when identity verification is not configured
	Verifier Verifier
}

// New creates a new HTTP server
func New(deps Deps, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(deps, cfg.DefaultStreamModel)

	// Build list of paths that skip authentication
	authSkipPaths := []string{"/health"}

	metricsPath := "/metrics"
	if cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	if cfg.MetricsEnabled {
		e.Use(observability.Middleware(metricsPath))
	}
	if len(cfg.CORSAllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSAllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		}))
	}

	// Body size limit (default: 10MB)
	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	// Authentication (skips public paths)
	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(observability.Handler()))
	}

	// Completion routes
	e.POST("/llm_request", handler.LLMRequest)
	e.POST("/llm_request_streaming", handler.LLMRequestStreaming)
	e.POST("/agent_request", handler.AgentRequest)
	e.POST("/criticize_user_request", handler.CriticizeUserRequest)

	// Arena routes
	e.GET("/random_models", handler.RandomModels)
	e.GET("/random_agents", handler.RandomAgents)
	e.POST("/vote", handler.Vote)
	e.POST("/vote_agents", handler.VoteAgents)
	e.GET("/leaderboard", handler.Leaderboard)
	e.GET("/leaderboard_agents", handler.LeaderboardAgents)

	e.POST("/verify", handler.Verify)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// requestLogger logs one line per request through slog so the request id is attached.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			ctx := c.Request().Context()
			if v.Error != nil {
				slog.ErrorContext(ctx, "request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.InfoContext(ctx, "request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
	"github.com/fyrsmithlabs/promptd/internal/secrets"
	"github.com/fyrsmithlabs/promptd/internal/services"
	"github.com/fyrsmithlabs/promptd/internal/session"
)

// Server provides the admin HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *zap.Logger
	config   *Config
}

// Config holds admin HTTP server configuration.
type Config struct {
	Addr string
}

// DefaultConfig returns the default listen address.
func DefaultConfig() *Config {
	return &Config{Addr: "127.0.0.1:9190"}
}

// NewServer creates the admin HTTP server over the service registry.
func NewServer(registry services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("service registry is required")
	}
	if registry.Sessions() == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if registry.Scrubber() == nil {
		return nil, fmt.Errorf("scrubber is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/prompts", s.handleListPrompts)
	v1.POST("/scrub", s.handleScrub)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports readiness: the catalog must be loaded before the
// daemon can serve prompt executions.
func (s *Server) handleReady(c echo.Context) error {
	if s.registry.Catalog() == nil || len(s.registry.Catalog().ListPrompts()) == 0 {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "catalog not loaded"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// SessionResponse is the response body for GET /v1/sessions/:id.
type SessionResponse struct {
	ID            string                `json:"id"`
	ChainID       string                `json:"chain_id"`
	Status        string                `json:"status"`
	CurrentStep   int                   `json:"current_step"`
	TotalSteps    int                   `json:"total_steps"`
	AttemptCount  int                   `json:"attempt_count"`
	MaxAttempts   int                   `json:"max_attempts"`
	ReviewPending bool                  `json:"review_pending"`
	ReviewGateIDs []string              `json:"review_gate_ids,omitempty"`
	GateHistory   []session.GateAttempt `json:"gate_history,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	LastActivity  time.Time             `json:"last_activity_at"`
}

func (s *Server) handleGetSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.registry.Sessions().Get(c.Request().Context(), id)
	if err != nil {
		if prompterr.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		}
		s.logger.Error("session lookup failed", zap.String("session_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
	}

	resp := SessionResponse{
		ID:           sess.ID,
		ChainID:      sess.ChainID,
		Status:       string(sess.Status),
		CurrentStep:  sess.CurrentStep,
		TotalSteps:   sess.TotalSteps,
		AttemptCount: sess.RetryState.AttemptCount,
		MaxAttempts:  sess.RetryState.MaxAttempts,
		GateHistory:  sess.RetryState.GateHistory,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivityAt,
	}
	if sess.PendingReview != nil {
		resp.ReviewPending = true
		resp.ReviewGateIDs = sess.PendingReview.GateIDs
	}
	return c.JSON(http.StatusOK, resp)
}

// PromptSummary is one entry of GET /v1/prompts.
type PromptSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	IsChain  bool   `json:"is_chain"`
	Steps    int    `json:"steps"`
}

// PromptListResponse is the response body for GET /v1/prompts.
type PromptListResponse struct {
	Prompts []PromptSummary `json:"prompts"`
	Count   int             `json:"count"`
}

func (s *Server) handleListPrompts(c echo.Context) error {
	if s.registry.Catalog() == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "catalog not loaded")
	}

	prompts := s.registry.Catalog().ListPrompts()
	summaries := make([]PromptSummary, 0, len(prompts))
	for _, p := range prompts {
		steps := 1
		if p.IsChain() {
			steps = len(p.Chain)
		}
		summaries = append(summaries, PromptSummary{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			IsChain:  p.IsChain(),
			Steps:    steps,
		})
	}
	return c.JSON(http.StatusOK, PromptListResponse{Prompts: summaries, Count: len(summaries)})
}

// ScrubRequest is the request body for POST /v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /v1/scrub. Findings are
// value-free: they name the rule, never the matched text.
type ScrubResponse struct {
	Content       string            `json:"content"`
	FindingsCount int               `json:"findings_count"`
	Findings      []secrets.Finding `json:"findings,omitempty"`
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.registry.Scrubber().Inspect(req.Content)

	s.logger.Debug("scrubbed content", zap.Int("findings", result.TotalFindings))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
		Findings:      result.Findings,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting admin http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin http server")
	return s.echo.Shutdown(ctx)
}

// Package httpapi provides the HTTP API for assistd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/pipeline"
)

// ChatHandler runs one chat turn. Implemented by pipeline.Pipeline.
type ChatHandler interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// FeedbackStore exposes the learning operations the API serves.
type FeedbackStore interface {
	BackfillRating(ctx context.Context, userID, messageID string, rating int) error
	Stats(ctx context.Context) (learning.Stats, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit throttles per-client request rates when enabled.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Server provides HTTP endpoints for the assistant.
type Server struct {
	echo     *echo.Echo
	chat     ChatHandler
	feedback FeedbackStore
	logger   *zap.Logger
	config   *Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer creates a new HTTP server.
func NewServer(chat ChatHandler, feedback FeedbackStore, logger *zap.Logger, cfg *Config) (*Server, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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
		chat:     chat,
		feedback: feedback,
		logger:   logger,
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
	}

	if cfg.RateLimitEnabled {
		e.Use(s.rateLimitMiddleware)
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/learning/stats", s.handleLearningStats)
}

// limiterFor returns the per-client limiter, keyed by user id when the
// request carries one and remote IP otherwise.
func (s *Server) limiterFor(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.config.RateLimitRPS), s.config.RateLimitBurst)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) rateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-User-ID")
		if key == "" {
			key = c.RealIP()
		}

		if !s.limiterFor(key).Allow() {
			s.logger.Warn("rate limit exceeded", zap.String("client", key))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}

		return next(c)
	}
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	Mode         string `json:"mode"`
	ForcedModel  string `json:"forced_model"`
	UseWebSearch bool   `json:"use_web_search"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
}

// FeedbackResponse is the response body for POST /api/v1/feedback.
type FeedbackResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	resp, err := s.chat.Handle(c.Request().Context(), pipeline.Request{
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Message:      req.Message,
		Mode:         classify.ParseMode(req.Mode),
		ForcedModel:  req.ForcedModel,
		UseWebSearch: req.UseWebSearch,
	})
	if err != nil {
		s.logger.Error("chat request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat request failed")
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFeedback(c echo.Context) error {
	if s.feedback == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "feedback learning is disabled")
	}

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.UserID == "" || req.MessageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and message_id fields are required")
	}

	err := s.feedback.BackfillRating(c.Request().Context(), req.UserID, req.MessageID, req.Rating)
	switch {
	case errors.Is(err, learning.ErrEventNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	case errors.Is(err, learning.ErrInvalidRating):
		return echo.NewHTTPError(http.StatusBadRequest, "rating must be between 1 and 5")
	case err != nil:
		s.logger.Error("feedback request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "feedback request failed")
	}

	return c.JSON(http.StatusOK, FeedbackResponse{Status: "recorded"})
}

func (s *Server) handleLearningStats(c echo.Context) error {
	if s.feedback == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "feedback learning is disabled")
	}

	stats, err := s.feedback.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats request failed")
	}

	return c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

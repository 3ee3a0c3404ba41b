// Package api exposes the ledger's read-only HTTP surface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"paper-ledger/internal/config"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

// Queries is the read side the server serves from.
type Queries interface {
	GetTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error)
	GetAnalytics(ctx context.Context, tradeID string) (*models.TradeAnalytics, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	GetLearningProgress(ctx context.Context, userID string, windowDays int) (*models.LearningProgress, error)
	DetectPatterns(ctx context.Context, userID string) (*models.PatternReport, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the read-only HTTP API.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	queries    Queries
	health     Pinger
	logger     zerolog.Logger
}

// NewServer creates the API server. health may be nil.
func NewServer(cfg config.ServerConfig, queries Queries, health Pinger, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 || (len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		queries: queries,
		health:  health,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	router.Use(s.requestLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/trades", s.handleListTrades)
		api.GET("/trades/:id/analytics", s.handleTradeAnalytics)
		api.GET("/sessions/:id/summary", s.handleSessionSummary)
		api.GET("/users/:id/progress", s.handleLearningProgress)
		api.GET("/users/:id/patterns", s.handlePatterns)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTrades(c *gin.Context) {
	filter := models.TradeFilter{
		UserID:    c.Query("user_id"),
		SessionID: c.Query("session_id"),
		Symbol:    c.Query("symbol"),
		Status:    models.TradeStatus(c.Query("status")),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.StartDate}, {"to", &filter.EndDate}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, p.name+" must be an RFC3339 timestamp")
			return
		}
		*p.dst = t
	}

	trades, err := s.queries.GetTrades(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleTradeAnalytics(c *gin.Context) {
	a, err := s.queries.GetAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, a)
}

func (s *Server) handleSessionSummary(c *gin.Context) {
	summary, err := s.queries.GetSessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, summary)
}

func (s *Server) handleLearningProgress(c *gin.Context) {
	windowDays := 30
	if v := c.Query("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "window_days must be an integer")
			return
		}
		windowDays = n
	}
	progress, err := s.queries.GetLearningProgress(c.Request.Context(), c.Param("id"), windowDays)
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, progress)
}

func (s *Server) handlePatterns(c *gin.Context) {
	report, err := s.queries.DetectPatterns(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	successResponse(c, report)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	errorResponse(c, status, err.Error())
}

// StatusFor maps ledger errors to HTTP status codes.
func StatusFor(err error) int {
	var validation *errors.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrNoQuote):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errors.ErrInvalidOrder),
		errors.Is(err, errors.ErrNotOpen),
		errors.Is(err, errors.ErrNotClosed),
		errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrNotQualified):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

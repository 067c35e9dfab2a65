// Package api exposes the stockwatch HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stockwatch/internal/explore"
	"stockwatch/internal/llm"
	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/news"
	"stockwatch/internal/resilience"
)

// QuoteReader reads the explore cache.
type QuoteReader interface {
	PageQuotes(ctx context.Context, limit, offset int) (int, []models.CachedQuote, error)
	GetQuote(ctx context.Context, symbol string) (*models.CachedQuote, error)
}

// Favorites pins, unpins and lists symbols per user.
type Favorites interface {
	Add(ctx context.Context, userID, symbol string) (*models.Favorite, error)
	Remove(ctx context.Context, userID, symbol string) error
	List(ctx context.Context, userID string) ([]models.FavoriteQuote, error)
}

// RefreshStatus reports the explore refresher state.
type RefreshStatus interface {
	Status() explore.Status
}

// HealthReporter reports system health.
type HealthReporter interface {
	GetHealth() resilience.SystemHealth
}

// Deps are the collaborators the handlers use. News and Summarizer may be
// nil when their providers are not configured.
type Deps struct {
	Quotes     QuoteReader
	Favorites  Favorites
	History    market.HistoryProvider
	News       news.Provider
	Summarizer llm.Summarizer
	Refresher  RefreshStatus
	Health     HealthReporter
}

// Config holds HTTP server configuration.
type Config struct {
	Port            string
	AllowedOrigins  []string
	DefaultUser     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	NewsDays        int
	DefaultCategory string
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router *gin.Engine
}

// NewServer builds the router and registers all routes.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = "default"
	}
	if cfg.NewsDays <= 0 {
		cfg.NewsDays = 7
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "general"
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}

	r := gin.New()
	r.Use(s.requestID(), s.accessLog(), s.recovery())
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", headerUserID, headerRequestID},
			ExposeHeaders: []string{headerRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/", s.root)
	r.GET("/health", s.health)

	r.GET("/explore", s.getExplore)
	r.GET("/explore/status", s.getExploreStatus)

	r.GET("/pinned", s.getPinned)
	r.POST("/pinned", s.postPinned)
	r.DELETE("/pinned/:symbol", s.deletePinned)

	r.GET("/stock/:ticker", s.getStock)

	r.GET("/news/market", s.getMarketNews)
	r.GET("/news/market/summary", s.getMarketSummary)
	r.GET("/news/:ticker", s.getCompanyNews)
	r.GET("/news/:ticker/summary", s.getCompanySummary)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Strs("origins", s.cfg.AllowedOrigins).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Server running"})
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": resilience.HealthStatusUnknown})
		return
	}
	h := s.deps.Health.GetHealth()
	status := http.StatusOK
	if h.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

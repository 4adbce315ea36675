// Package api exposes the coordinator's operator surface over HTTP:
// status, mirrors, gate diagnostics, the rolling event log, settings
// and the manual close/cancel escape hatches.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/auth"
	"bybit-trading-bot/internal/coordinator"
	"bybit-trading-bot/internal/database"
	"bybit-trading-bot/internal/logging"
)

// Server serves the operator API
type Server struct {
	cfg    *config.Config
	coord  *coordinator.Coordinator
	repo   *database.Repository
	jwt    *auth.JWTManager
	logger *logging.Logger
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the router. repo may be nil when persistence is
// disabled; the history endpoints then return 503.
func NewServer(cfg *config.Config, coord *coordinator.Coordinator, repo *database.Repository, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		coord:  coord,
		repo:   repo,
		logger: logger.WithComponent("API"),
	}

	if cfg.AuthConfig.Enabled {
		s.jwt = auth.NewJWTManager(cfg.AuthConfig.JWTSecret,
			time.Duration(cfg.AuthConfig.TokenTTLHours)*time.Hour)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.ServerConfig.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.ServerConfig.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s.router = router
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.jwt != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	if s.jwt != nil {
		api.Use(auth.Middleware(s.jwt))
	}
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/orders", s.handleOrders)
		api.GET("/executions", s.handleExecutions)
		api.GET("/events", s.handleEvents)
		api.GET("/errors", s.handleErrors)
		api.GET("/gates", s.handleGates)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
		api.PUT("/gates/:id/override", s.handleGateOverride)

		api.POST("/positions/:symbol/close", s.handleClosePosition)
		api.POST("/orders/:symbol/:orderId/cancel", s.handleCancelOrder)
		api.POST("/refresh", s.handleRefresh)

		api.GET("/history/intents", s.handleIntentHistory)
		api.GET("/history/pnl", s.handlePnlHistory)
	}
}

// Start begins serving in a background goroutine
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.cfg.ServerConfig.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("api server listening", "addr", addr, "auth", s.jwt != nil)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bybit-trading-bot/internal/auth"
	"bybit-trading-bot/internal/coordinator"
)

func (s *Server) handleHealth(c *gin.Context) {
	fast, slow := s.coord.LoopHealth()
	status := http.StatusOK
	if !s.coord.IsRunning() || (!fast && !slow) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"running":      s.coord.IsRunning(),
		"fast_healthy": fast,
		"slow_healthy": slow,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	cfg := s.cfg.AuthConfig
	if req.Username != cfg.Username || !auth.VerifyPassword(cfg.PasswordHash, req.Password) {
		s.logger.Warn("login rejected", "username", req.Username, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.jwt.Issue(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	fast, slow := s.coord.LoopHealth()
	feedAge := s.coord.FeedAge()

	status := gin.H{
		"running":          s.coord.IsRunning(),
		"fast_healthy":     fast,
		"slow_healthy":     slow,
		"system_error":     s.coord.SystemError(),
		"open_positions":   len(s.coord.PositionsMap()),
		"open_orders":      len(s.coord.OrdersMap()),
		"pending_intents":  s.coord.PendingIntents(),
		"daily_pnl":        s.coord.DailyPnl(),
		"phases":           s.coord.Phases(),
		"venue_latency_ms": s.coord.VenueLatency().Milliseconds(),
		"feed_age_seconds": int64(feedAge / time.Second),
	}

	if wallet := s.coord.Wallet(); wallet != nil {
		status["equity"] = wallet.TotalEquity
		status["available_balance"] = wallet.AvailableBalance
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.coord.PositionsMap()})
}

func (s *Server) handleOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.coord.OrdersMap()})
}

func (s *Server) handleExecutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executions": s.coord.Executions()})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": s.coord.Events(limit)})
}

func (s *Server) handleErrors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"errors": s.coord.Errors()})
}

func (s *Server) handleGates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"gates": s.coord.GateReports()})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.GetSettings())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var set coordinator.Settings
	if err := c.ShouldBindJSON(&set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}
	if len(set.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols must not be empty"})
		return
	}

	s.coord.UpdateSettings(set)
	c.JSON(http.StatusOK, s.coord.GetSettings())
}

type overrideRequest struct {
	Disabled bool `json:"disabled"`
}

func (s *Server) handleGateOverride(c *gin.Context) {
	id := coordinator.GateID(c.Param("id"))
	known := false
	for _, gate := range coordinator.HardGateIDs {
		if gate == id {
			known = true
			break
		}
	}
	if !known && id != coordinator.GateSoftScore {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown gate id"})
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid override payload"})
		return
	}

	s.coord.SetGateOverride(id, req.Disabled)
	c.JSON(http.StatusOK, gin.H{"gate": id, "disabled": req.Disabled})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.coord.ClosePosition(symbol); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("manual position close", "symbol", symbol)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "closed": true})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	symbol := c.Param("symbol")
	orderID := c.Param("orderId")
	if err := s.coord.CancelOrder(symbol, orderID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("manual order cancel", "symbol", symbol, "order_id", orderID)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "order_id": orderID, "cancelled": true})
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.coord.RequestRefresh()
	c.JSON(http.StatusAccepted, gin.H{"refresh": "scheduled"})
}

func (s *Server) handleIntentHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	records, err := s.repo.GetRecentIntents(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load intents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": records})
}

func (s *Server) handlePnlHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	since := time.Now().AddDate(0, 0, -7)
	records, err := s.repo.GetClosedPnlSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load pnl"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pnl": records})
}

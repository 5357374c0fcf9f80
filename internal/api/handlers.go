package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coinbase-trading-bot/internal/auth"
	"coinbase-trading-bot/internal/events"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.authSvc.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}

	var body struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	token, err := s.authSvc.Login(body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"bot":             s.engine.Status(),
		"mode":            s.modeMgr.Status(),
		"circuit_breaker": s.breaker.Status(),
		"strategies":      s.registry.Status(),
		"ws_clients":      s.hub.clientCount(),
		"cache_enabled":   s.cacheSvc.Enabled(),
		"db_persistent":   s.repository.Persistent(),
	}

	stopped, reason := s.riskMgr.IsEmergencyStopped()
	status["emergency_stop"] = gin.H{"active": stopped, "reason": reason}

	if last := s.tracker.Last(); last != nil {
		status["portfolio"] = gin.H{
			"total_value_usd": last.TotalValueUSD,
			"priced_at":       last.PricedAt.Format(time.RFC3339),
			"stale":           last.Stale,
		}
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handleToggleBot(c *gin.Context) {
	running, err := s.engine.Toggle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": running})
}

func (s *Server) handleGetCapital(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"capital_usd": s.engine.Capital()})
}

func (s *Server) handleSetCapital(c *gin.Context) {
	var body struct {
		CapitalUSD float64 `json:"capital_usd" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "capital_usd required"})
		return
	}

	if err := s.engine.SetCapital(body.CapitalUSD); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"capital_usd": s.engine.Capital()})
}

func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.registry.Status()})
}

func (s *Server) handleStrategyStart(c *gin.Context) {
	s.setStrategyEnabled(c, true)
}

func (s *Server) handleStrategyStop(c *gin.Context) {
	s.setStrategyEnabled(c, false)
}

func (s *Server) setStrategyEnabled(c *gin.Context, enabled bool) {
	name := c.Param("name")
	if err := s.registry.SetEnabled(name, enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": name, "enabled": enabled})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	snapshot, err := s.tracker.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.positions.List()})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	trades, err := s.repository.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "persistent": s.repository.Persistent()})
}

func (s *Server) handleMetrics(c *gin.Context) {
	metrics, err := s.repository.MetricsByStrategy(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": metrics})
}

func (s *Server) handleListModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"modes":  s.modeMgr.List(),
		"active": s.modeMgr.ActiveName(),
	})
}

func (s *Server) handleGetMode(c *gin.Context) {
	c.JSON(http.StatusOK, s.modeMgr.Active())
}

func (s *Server) handleSetMode(c *gin.Context) {
	var body struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode required"})
		return
	}

	previous, err := s.modeMgr.Set(body.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.eventBus.Publish(events.EventModeChanged, map[string]interface{}{
		"previous": previous,
		"current":  s.modeMgr.ActiveName(),
	})
	c.JSON(http.StatusOK, gin.H{"previous": previous, "active": s.modeMgr.ActiveName()})
}

func (s *Server) handleRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.riskMgr.GetMetrics())
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "manual operator stop"
	}

	s.engine.Stop()
	result := s.guard.Trigger(c.Request.Context(), body.Reason)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEmergencyReset(c *gin.Context) {
	s.riskMgr.ResetEmergencyStop()
	c.JSON(http.StatusOK, gin.H{"emergency_stop": false})
}

func (s *Server) handleCircuitBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, s.breaker.Status())
}

func (s *Server) handleCircuitBreakerReset(c *gin.Context) {
	s.breaker.ForceReset()
	c.JSON(http.StatusOK, s.breaker.Status())
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"coinbase-trading-bot/internal/auth"
	"coinbase-trading-bot/internal/bot"
	"coinbase-trading-bot/internal/cache"
	"coinbase-trading-bot/internal/circuit"
	"coinbase-trading-bot/internal/database"
	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
	"coinbase-trading-bot/internal/modes"
	"coinbase-trading-bot/internal/orders"
	"coinbase-trading-bot/internal/portfolio"
	"coinbase-trading-bot/internal/risk"
	"coinbase-trading-bot/internal/strategy"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Config holds HTTP server settings
type Config struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ShutdownTimeout int      `json:"shutdown_timeout_seconds"`
}

// Server is the operator-facing control API
type Server struct {
	config     Config
	engine     *bot.Engine
	registry   *strategy.Registry
	modeMgr    *modes.Manager
	riskMgr    *risk.Manager
	guard      *risk.EmergencyGuard
	breaker    *circuit.Breaker
	tracker    *portfolio.Tracker
	positions  *orders.Tracker
	repository *database.Repository
	cacheSvc   *cache.Service
	authSvc    *auth.Service
	eventBus   *events.EventBus
	logger     *logging.Logger

	hub         *wsHub
	rateLimiter *RateLimiter
	httpServer  *http.Server
	startedAt   time.Time
}

// Deps bundles the server's collaborators
type Deps struct {
	Engine     *bot.Engine
	Registry   *strategy.Registry
	ModeMgr    *modes.Manager
	RiskMgr    *risk.Manager
	Guard      *risk.EmergencyGuard
	Breaker    *circuit.Breaker
	Portfolio  *portfolio.Tracker
	Positions  *orders.Tracker
	Repository *database.Repository
	Cache      *cache.Service
	Auth       *auth.Service
	EventBus   *events.EventBus
}

// NewServer builds the server and its routes
func NewServer(config Config, deps Deps) *Server {
	server := &Server{
		config:      config,
		engine:      deps.Engine,
		registry:    deps.Registry,
		modeMgr:     deps.ModeMgr,
		riskMgr:     deps.RiskMgr,
		guard:       deps.Guard,
		breaker:     deps.Breaker,
		tracker:     deps.Portfolio,
		positions:   deps.Positions,
		repository:  deps.Repository,
		cacheSvc:    deps.Cache,
		authSvc:     deps.Auth,
		eventBus:    deps.EventBus,
		logger:      logging.WithComponent("api"),
		hub:         newWSHub(),
		rateLimiter: NewRateLimiter(120, time.Minute),
		startedAt:   time.Now(),
	}
	server.hub.attach(deps.EventBus)
	return server
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.POST("/api/login", s.handleLogin)
	router.GET("/ws", s.hub.handleConnection)

	api := router.Group("/api")
	api.Use(s.rateLimitMiddleware(), s.authSvc.Middleware())
	{
		api.GET("/status", s.handleStatus)
		api.POST("/toggle-bot", s.handleToggleBot)
		api.GET("/capital", s.handleGetCapital)
		api.POST("/capital", s.handleSetCapital)

		api.GET("/strategies", s.handleListStrategies)
		api.POST("/strategies/:name/start", s.handleStrategyStart)
		api.POST("/strategies/:name/stop", s.handleStrategyStop)

		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/metrics", s.handleMetrics)

		api.GET("/modes", s.handleListModes)
		api.GET("/mode", s.handleGetMode)
		api.POST("/mode", s.handleSetMode)

		api.GET("/risk/metrics", s.handleRiskMetrics)
		api.POST("/emergency-stop", s.handleEmergencyStop)
		api.POST("/emergency-stop/reset", s.handleEmergencyReset)

		api.GET("/circuit-breaker", s.handleCircuitBreaker)
		api.POST("/circuit-breaker/reset", s.handleCircuitBreakerReset)
	}

	return router
}

// rateLimitMiddleware rate limits requests by endpoint so a runaway
// dashboard cannot hammer the exchange through the proxy endpoints
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + c.FullPath()
		if !s.rateLimiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again shortly",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		s.logger.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.config.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/auth"
	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/database"
	"cryptosim-bot/internal/events"
	"cryptosim-bot/internal/logging"
)

// BotAPI is what the API needs from the controller
type BotAPI interface {
	State() bot.State
}

// Store serves the read-only history endpoints
type Store interface {
	ListTrades(ctx context.Context, limit int) ([]bot.Trade, error)
	ListLogs(ctx context.Context, limit int) ([]database.LogEntry, error)
	HealthCheck(ctx context.Context) error
}

// WakeFunc tells the command poller a new command is waiting
type WakeFunc func(ctx context.Context, commandID string)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// Dependencies wires the server to the bot. Auth, Events and Wake may be nil.
type Dependencies struct {
	Bot      BotAPI
	Store    Store
	Commands commands.Sink
	Wake     WakeFunc
	Auth     *auth.Service
	Events   *events.EventBus
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	deps       Dependencies
	hub        *Hub
	startedAt  time.Time
	logger     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Dependencies, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(logging.GinMiddleware(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		config:    config,
		deps:      deps,
		hub:       NewHub(logger),
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}

	if deps.Events != nil {
		deps.Events.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.deps.Auth != nil})
	})
	if s.deps.Auth != nil {
		s.router.POST("/api/login", s.deps.Auth.LoginHandler)
	}

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/position", s.handlePosition)
		api.GET("/balance", s.handleBalance)
		api.GET("/trades", s.handleTrades)
		api.GET("/logs", s.handleLogs)
	}

	protected := s.router.Group("/api")
	if s.deps.Auth != nil {
		protected.Use(auth.Middleware(s.deps.Auth.JWT()))
	}
	protected.POST("/commands", s.handleEnqueueCommand)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the dashboard websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and serves HTTP until Shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDuration(s.config.ReadTimeout, 15*time.Second),
		WriteTimeout: orDuration(s.config.WriteTimeout, 15*time.Second),
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run(ctx)

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Store != nil {
		if err := s.deps.Store.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"database":   "healthy",
		"started_at": s.startedAt.Format(time.RFC3339),
		"ws_clients": s.hub.ClientCount(),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

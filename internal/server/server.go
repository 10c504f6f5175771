package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley-chat/config"
	"parley-chat/internal/handler"
	"parley-chat/internal/middleware"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	"parley-chat/internal/websocket"
	"parley-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	checks     map[string]HealthCheck
	onShutdown []func(ctx context.Context)
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	Messages  *handler.MessageHandler
	Uploads   *handler.UploadHandler
	Presence  *handler.PresenceHandler
	WebSocket *websocket.Handler
}

// RouteOptions carries the optional pieces of the HTTP surface.
type RouteOptions struct {
	MessageLimiter middleware.MessageLimiter
	Gatherer       prometheus.Gatherer
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
		checks: make(map[string]HealthCheck),
	}
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// OnShutdown registers fn to run after the HTTP server has stopped.
func (s *Server) OnShutdown(fn func(ctx context.Context)) {
	s.onShutdown = append(s.onShutdown, fn)
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, opts RouteOptions) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health)
	if opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if handlers.WebSocket != nil {
		s.engine.GET("/v1/ws", handlers.WebSocket.Connect)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))

	send := []gin.HandlerFunc{handlers.Messages.Send}
	if opts.MessageLimiter != nil {
		send = append([]gin.HandlerFunc{middleware.MessageRateLimitMiddleware(opts.MessageLimiter, s.logger)}, send...)
	}

	messages := v1.Group("/messages")
	{
		messages.POST("", send...)
		messages.POST("/:id/seen", handlers.Messages.MarkSeen)
		messages.POST("/:id/reactions", handlers.Messages.AddReaction)
		messages.DELETE("/:id/reactions", handlers.Messages.RemoveReaction)
		messages.POST("/:id/recall", handlers.Messages.Recall)
		messages.DELETE("/:id", handlers.Messages.DeleteForMe)
	}

	conversations := v1.Group("/conversations/:key")
	{
		conversations.GET("/messages", handlers.Messages.History)
		conversations.GET("/search", handlers.Messages.Search)
		conversations.POST("/seen", handlers.Messages.MarkConversationSeen)
		conversations.GET("/pin", handlers.Messages.GetPin)
		conversations.PUT("/pin", handlers.Messages.SetPin)
	}

	if handlers.Uploads != nil {
		v1.POST("/uploads", handlers.Uploads.Create)
		v1.GET("/uploads", handlers.Uploads.List)
	}
	if handlers.Presence != nil {
		v1.GET("/presence/:user_id", handlers.Presence.Get)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := gin.H{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, httpdto.Response[gin.H]{Success: false, Data: status, Code: "UNHEALTHY"})
		return
	}
	status["status"] = "healthy"
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil && s.logger != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
	}

	for _, fn := range s.onShutdown {
		fn(ctx)
	}

	if err == nil && s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return err
}

package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/bot"
	"github.com/quricedev/alice-ai/internal/config"
	"github.com/quricedev/alice-ai/internal/handler"
	"github.com/quricedev/alice-ai/internal/middleware"
	"github.com/quricedev/alice-ai/internal/repository"
	"github.com/quricedev/alice-ai/internal/service"
	"github.com/quricedev/alice-ai/internal/storage"
	"github.com/quricedev/alice-ai/internal/upstream"
)

type Server struct {
	router           *gin.Engine
	config           *config.Config
	redis            *storage.RedisClient
	postgres         *storage.Postgres
	aiHandler        *handler.AIHandler
	keyHandler       *handler.KeyHandler
	authHandler      *handler.AuthHandler
	analyticsHandler *handler.AnalyticsHandler
	telegramHandler  *handler.TelegramHandler
	authService      *service.AuthService
	httpServer       *http.Server
}

func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient, keys *service.KeyService, completer *upstream.Client, b *bot.Bot) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	guard := service.NewGuard(keys)
	authService := service.NewAuthService(cfg.Admin.PasswordHash, cfg.Admin.JWTSecret, cfg.Admin.JWTExpiry)

	logRepo := repository.NewRequestLogRepository(postgres)
	analyticsService := service.NewAnalyticsService(logRepo)

	s := &Server{
		router:           router,
		config:           cfg,
		redis:            redis,
		postgres:         postgres,
		aiHandler:        handler.NewAIHandler(guard, keys, completer),
		keyHandler:       handler.NewKeyHandler(keys),
		authHandler:      handler.NewAuthHandler(authService),
		analyticsHandler: handler.NewAnalyticsHandler(analyticsService),
		telegramHandler:  handler.NewTelegramHandler(b),
		authService:      authService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	s.router.GET("/ai", s.aiHandler.Proxy)
	s.router.POST("/telegram", s.telegramHandler.Webhook)

	s.router.POST("/admin/login", s.authHandler.Login)

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.POST("/keys", s.keyHandler.Create)
		admin.GET("/keys", s.keyHandler.List)
		admin.GET("/keys/usage/:token", s.keyHandler.Usage)
		admin.POST("/keys/rotate/:name", s.keyHandler.Rotate)
		admin.DELETE("/keys/:token", s.keyHandler.Delete)
		admin.GET("/analytics/summary", s.analyticsHandler.Summary)
		admin.GET("/analytics/keys/:name", s.analyticsHandler.KeyLogs)
		admin.DELETE("/logs", s.analyticsHandler.Cleanup)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true

	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "alice-ai",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting Alice AI gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
